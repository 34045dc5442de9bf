// Package main provides the strata client CLI.
//
// Usage:
//
//	strata <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: local, connection, or protocol failure
//   - 2: the server rejected the request (error event)
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
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "strata",
		Usage:          "Upload, search, and manage files on a strata server",
		Version:        fmt.Sprintf("%s (protocol %s, commit: %s)", types.Version, types.ProtocolVersion, cmd.Commit),
		ExitErrHandler: cmd.ExitErrHandler,
		Commands: []*cli.Command{
			cmd.UploadCommand(),
			cmd.SearchCommand(),
			cmd.DeleteCommand(),
			cmd.ListCommand(),
			cmd.BenchCommand(),
			cmd.StatsCommand(),
			cmd.VersionCommand(),
		},
	}
}
