package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/cli/tui"
	"github.com/pithecene-io/strata/journal"
	"github.com/pithecene-io/strata/types"
)

// statsReadTimeout bounds a journal query.
const statsReadTimeout = 30 * time.Second

// StatsCommand returns the stats command with subcommands.
// Stats are derived from the session journal written by strata-server.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show statistics from the session journal",
		Subcommands: []*cli.Command{
			statsSessionsCommand(),
			statsMetricsCommand(),
		},
	}
}

func journalFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:     "journal",
			Aliases:  []string{"j"},
			Usage:    "Journal location: a directory or s3://bucket/prefix",
			EnvVars:  []string{"STRATA_JOURNAL"},
			Required: true,
		},
		&cli.StringFlag{Name: "dataset", Usage: "Journal dataset ID", Value: journal.DefaultDataset},
		&cli.StringFlag{Name: "s3-region", Usage: "AWS region for s3 journals"},
		&cli.StringFlag{Name: "s3-endpoint", Usage: "Custom S3 endpoint (e.g. MinIO)"},
		&cli.BoolFlag{Name: "s3-path-style", Usage: "Use path-style S3 addressing"},
	}, OutputFlags()...)
}

func statsSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Show per-command session statistics",
		Flags: append(journalFlags(),
			&cli.StringFlag{Name: "day", Usage: "Only sessions of this UTC day (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "command", Usage: "Only sessions of this command (upload, search, delete, list)"},
		),
		Action: statsSessionsAction,
	}
}

func statsSessionsAction(c *cli.Context) error {
	if day := c.String("day"); day != "" {
		if _, err := time.Parse(time.DateOnly, day); err != nil {
			return cli.Exit(fmt.Sprintf("invalid --day %q (want YYYY-MM-DD)", day), exitFailure)
		}
	}
	if cmd := c.String("command"); cmd != "" {
		if _, ok := types.ParseCommand(cmd); !ok {
			return cli.Exit(fmt.Sprintf("invalid --command %q", cmd), exitFailure)
		}
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, statsReadTimeout)
	defer cancel()

	jr, err := openJournalReader(ctx, c)
	if err != nil {
		return err
	}
	records, err := jr.Sessions(ctx, journal.Filter{Day: c.String("day"), Command: c.String("command")})
	if err != nil {
		return cli.Exit(fmt.Sprintf("read journal: %v", err), exitFailure)
	}
	stats := journal.Aggregate(records)

	if c.Bool("tui") {
		return tui.Run(tui.ViewStats, stats)
	}
	return r.Render(stats)
}

func statsMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:   "metrics",
		Usage:  "Show the server metrics recorded at the last shutdown",
		Flags:  journalFlags(),
		Action: statsMetricsAction,
	}
}

func statsMetricsAction(c *cli.Context) error {
	if err := rejectTUI(c); err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, statsReadTimeout)
	defer cancel()

	jr, err := openJournalReader(ctx, c)
	if err != nil {
		return err
	}
	record, err := jr.LatestMetrics(ctx)
	if errors.Is(err, journal.ErrNoMetricsFound) {
		return cli.Exit("no metrics recorded yet", exitFailure)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("read journal: %v", err), exitFailure)
	}
	return r.Render(record)
}

func openJournalReader(ctx context.Context, c *cli.Context) (*journal.Reader, error) {
	jr, err := journal.OpenReader(ctx, c.String("dataset"), c.String("journal"), journal.Options{
		Region:       c.String("s3-region"),
		Endpoint:     c.String("s3-endpoint"),
		UsePathStyle: c.Bool("s3-path-style"),
	})
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("open journal: %v", err), exitFailure)
	}
	return jr, nil
}
