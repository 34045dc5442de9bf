// Package cmd provides the commands of the strata and strata-server binaries.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
)

// Defaults shared by client and server commands.
const (
	DefaultListen = ":5000"
	DefaultServer = "127.0.0.1:5000"
)

// Exit codes.
const (
	exitFailure  = 1
	exitRejected = 2 // the server answered with an error event
)

// ConfigFlag names a strata.yaml file. Without it ./strata.yaml is read when
// present.
var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to strata.yaml (default ./strata.yaml if present)",
	EnvVars: []string{"STRATA_CONFIG"},
}

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode (search, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (search, stats only)",
	}
)

// OutputFlags returns the flags shared by every command that renders output.
// --tui is present everywhere so unsupported commands can say so explicitly.
func OutputFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag, TUIFlag}
}

// ClientFlags returns the flags of commands that talk to a server.
func ClientFlags() []cli.Flag {
	return append([]cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Server address host:port (default " + DefaultServer + ")",
			EnvVars: []string{"STRATA_SERVER"},
		},
		&cli.DurationFlag{
			Name:  "dial-timeout",
			Usage: "Connection timeout",
		},
	}, OutputFlags()...)
}

// rejectTUI fails commands that have no TUI.
func rejectTUI(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for "+c.Command.Name+" command", exitFailure)
	}
	return nil
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
