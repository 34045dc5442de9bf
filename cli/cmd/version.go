package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/types"
)

// Commit is the source revision, set at build time via
// -ldflags "-X github.com/pithecene-io/strata/cli/cmd.Commit=...".
var Commit = "unknown"

// VersionResponse is the version command payload.
type VersionResponse struct {
	Version         string `json:"version" yaml:"version"`
	ProtocolVersion string `json:"protocol_version" yaml:"protocol_version"`
	Commit          string `json:"commit" yaml:"commit"`
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  OutputFlags(),
		Action: versionAction,
	}
}

func versionAction(c *cli.Context) error {
	if err := rejectTUI(c); err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(VersionResponse{
		Version:         types.Version,
		ProtocolVersion: types.ProtocolVersion,
		Commit:          Commit,
	})
}
