package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/render"
	"github.com/pithecene-io/strata/cli/tui"
	"github.com/pithecene-io/strata/client"
	"github.com/pithecene-io/strata/transfer"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// UploadResponse is the result of an upload.
type UploadResponse struct {
	Name  string `json:"name" yaml:"name"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

// UploadCommand returns the upload command.
func UploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a local file to the archive",
		ArgsUsage: "<file>",
		Flags: append(ClientFlags(),
			&cli.StringFlag{
				Name:  "name",
				Usage: "Name to store the file under (default: base name of <file>)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress progress output",
			},
		),
		Action: uploadAction,
	}
}

func uploadAction(c *cli.Context) error {
	if err := rejectTUI(c); err != nil {
		return err
	}
	if c.NArg() != 1 {
		return cli.Exit("upload requires exactly one <file>", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	var progress transfer.ProgressFunc
	if !c.Bool("quiet") && isStderrTTY() {
		progress = func(sent, total int64) {
			fmt.Fprintf(os.Stderr, "\ruploading: %6.2f%%", transfer.Percent(sent, total))
		}
	}
	path := c.Args().First()
	n, err := cl.Upload(ctx, path, c.String("name"), progress)
	if progress != nil {
		fmt.Fprint(os.Stderr, "\r\033[K")
	}
	if err != nil {
		return commandError("upload "+path, err)
	}

	name := c.String("name")
	if name == "" {
		name = baseName(path)
	}
	return r.Render(UploadResponse{Name: name, Bytes: n})
}

// SearchCommand returns the search command.
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search every stored file for a term (case-insensitive)",
		ArgsUsage: "<term...>",
		Flags:     ClientFlags(),
		Action:    searchAction,
	}
}

func searchAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("search requires a <term>", exitFailure)
	}
	// Words are joined so that unquoted multi-word terms work.
	term := joinArgs(c.Args().Slice())

	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	if c.Bool("tui") {
		err := tui.RunSearch(ctx, term, func(ctx context.Context, fn client.EventHandler) (time.Duration, error) {
			return cl.Search(ctx, term, fn)
		})
		return commandError("search", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	var progress io.Writer
	if r.Format() == render.FormatTable && isStderrTTY() {
		progress = os.Stderr
	}
	printer := render.NewSearchPrinter(r, progress)
	_, err = cl.Search(ctx, term, printer.Observe)
	if cerr := printer.Close(); err == nil {
		err = cerr
	}
	return commandError("search", err)
}

// DeleteResponse is the result of a delete.
type DeleteResponse struct {
	Name    string `json:"name" yaml:"name"`
	Deleted bool   `json:"deleted" yaml:"deleted"`
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a file from the archive",
		ArgsUsage: "<name>",
		Flags:     ClientFlags(),
		Action:    deleteAction,
	}
}

func deleteAction(c *cli.Context) error {
	if err := rejectTUI(c); err != nil {
		return err
	}
	if c.NArg() != 1 {
		return cli.Exit("delete requires exactly one <name>", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	name := c.Args().First()
	if err := cl.Delete(ctx, name); err != nil {
		return commandError("delete "+name, err)
	}
	return r.Render(DeleteResponse{Name: name, Deleted: true})
}

// ListCommand returns the list command.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List stored files",
		Flags:  ClientFlags(),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	if err := rejectTUI(c); err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	names, err := cl.List(ctx)
	if err != nil {
		return commandError("list", err)
	}
	if names == nil {
		names = []string{}
	}
	return r.Render(names)
}

// BenchRequest is one request of a bench run.
type BenchRequest struct {
	Index     int     `json:"index" yaml:"index"`
	LatencyMs float64 `json:"latency_ms" yaml:"latency_ms"`
	Error     string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// BenchResponse summarizes a bench run.
type BenchResponse struct {
	Term      string  `json:"term" yaml:"term"`
	Requests  int     `json:"requests" yaml:"requests"`
	Failed    int     `json:"failed" yaml:"failed"`
	AverageMs float64 `json:"average_ms" yaml:"average_ms"`
	MinMs     float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs     float64 `json:"max_ms" yaml:"max_ms"`
	WallMs    float64 `json:"wall_ms" yaml:"wall_ms"`
}

// BenchCommand returns the bench command.
func BenchCommand() *cli.Command {
	return &cli.Command{
		Name:      "bench",
		Usage:     "Fire concurrent searches and report latency",
		ArgsUsage: "<term...>",
		Flags: append(ClientFlags(),
			&cli.IntFlag{
				Name:    "requests",
				Aliases: []string{"n"},
				Usage:   "Number of searches to fire",
				Value:   10,
			},
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Usage:   "Span over which launches are spread evenly",
				Value:   time.Second,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				Usage:   "Print each request as it completes (stderr)",
			},
		),
		Action: benchAction,
	}
}

func benchAction(c *cli.Context) error {
	if err := rejectTUI(c); err != nil {
		return err
	}
	if c.NArg() == 0 {
		return cli.Exit("bench requires a <term>", exitFailure)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c.Context)
	defer cancel()

	cfg := client.BenchConfig{
		Term:     joinArgs(c.Args().Slice()),
		Requests: c.Int("requests"),
		Duration: c.Duration("duration"),
	}
	if c.Bool("verbose") {
		cfg.OnResult = func(i int, latency time.Duration, err error) {
			req := BenchRequest{Index: i, LatencyMs: ms(latency)}
			if err != nil {
				req.Error = err.Error()
			}
			fmt.Fprintf(os.Stderr, "request %d: %.2fms %s\n", req.Index, req.LatencyMs, req.Error)
		}
	}

	res, err := cl.Bench(ctx, cfg)
	if err != nil {
		return commandError("bench", err)
	}
	return r.Render(BenchResponse{
		Term:      cfg.Term,
		Requests:  res.Requests,
		Failed:    res.Failed,
		AverageMs: ms(res.Average),
		MinMs:     ms(res.Min),
		MaxMs:     ms(res.Max),
		WallMs:    ms(res.Wall),
	})
}

func baseName(path string) string { return filepath.Base(path) }

// joinArgs rebuilds a term split by the shell.
func joinArgs(args []string) string { return strings.Join(args, " ") }

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
