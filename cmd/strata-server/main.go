// Package main provides the strata-server entrypoint.
//
// Usage:
//
//	strata-server serve [options]
//
// SIGINT or SIGTERM drains in-flight sessions for --shutdown-timeout
// before the remaining connections are closed.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/cmd"
	"github.com/pithecene-io/strata/types"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "strata-server",
		Usage:          "Networked file archive with streaming search",
		Version:        fmt.Sprintf("%s (protocol %s, commit: %s)", types.Version, types.ProtocolVersion, cmd.Commit),
		ExitErrHandler: cmd.ExitErrHandler,
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.VersionCommand(),
		},
	}
}
