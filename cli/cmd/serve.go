package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/adapter"
	redisadapter "github.com/pithecene-io/strata/adapter/redis"
	"github.com/pithecene-io/strata/adapter/webhook"
	"github.com/pithecene-io/strata/cli/config"
	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/journal"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/search"
	"github.com/pithecene-io/strata/session"
	"github.com/pithecene-io/strata/store"
	"github.com/pithecene-io/strata/types"
)

// DefaultShutdownTimeout bounds the graceful drain on SIGINT/SIGTERM.
const DefaultShutdownTimeout = 10 * time.Second

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the archive server",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "Listen address (default " + DefaultListen + ")", EnvVars: []string{"STRATA_LISTEN"}},
			&cli.StringFlag{Name: "storage-dir", Usage: "Directory holding stored files (default ./data)", EnvVars: []string{"STRATA_STORAGE_DIR"}},
			&cli.IntFlag{Name: "workers", Usage: "Concurrent session limit; 0 means unbounded (default 4)"},
			&cli.StringFlag{Name: "max-file-size", Usage: "Largest accepted upload, e.g. 2GiB (default unlimited)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, error", EnvVars: []string{"STRATA_LOG_LEVEL"}},
			&cli.DurationFlag{Name: "shutdown-timeout", Usage: "Graceful drain before in-flight sessions are cut", Value: DefaultShutdownTimeout},

			// Metadata store
			&cli.StringFlag{Name: "store-backend", Usage: "Metadata store: file, memory, redis (default file)"},
			&cli.StringFlag{Name: "store-path", Usage: "Snapshot file for the file store (default <storage-dir>.index)"},
			&cli.StringFlag{Name: "store-url", Usage: "Redis URL for the redis store", EnvVars: []string{"STRATA_STORE_URL"}},
			&cli.StringFlag{Name: "store-prefix", Usage: "Redis key prefix (default strata)"},

			// Search engine
			&cli.StringFlag{Name: "window-floor", Usage: "Minimum search window, e.g. 512KiB"},
			&cli.IntFlag{Name: "context-bytes", Usage: "Bytes after a match included in its snippet"},
			&cli.DurationFlag{Name: "progress-interval", Usage: "Minimum gap between progress updates"},

			// Journal
			&cli.StringFlag{Name: "journal-backend", Usage: "Session journal: none, fs, s3 (default none)"},
			&cli.StringFlag{Name: "journal-path", Usage: "Journal location (fs: directory, s3: bucket/prefix)"},
			&cli.StringFlag{Name: "journal-dataset", Usage: "Journal dataset ID (default strata)"},
			&cli.StringFlag{Name: "journal-s3-region", Usage: "AWS region for the s3 journal"},
			&cli.StringFlag{Name: "journal-s3-endpoint", Usage: "Custom S3 endpoint (e.g. MinIO)"},
			&cli.BoolFlag{Name: "journal-s3-path-style", Usage: "Use path-style S3 addressing"},

			// Notifications
			&cli.StringFlag{Name: "notify", Usage: "Change notifications: none, redis, webhook (default none)"},
			&cli.StringFlag{Name: "notify-url", Usage: "Redis URL or webhook endpoint", EnvVars: []string{"STRATA_NOTIFY_URL"}},
			&cli.StringFlag{Name: "notify-channel", Usage: "Redis pub/sub channel (default " + redisadapter.DefaultChannel + ")"},
			&cli.StringFlag{Name: "notify-stream", Usage: "Redis stream that also records every event"},
			&cli.StringFlag{Name: "notify-secret", Usage: "HMAC secret signing webhook bodies", EnvVars: []string{"STRATA_NOTIFY_SECRET"}},
			&cli.DurationFlag{Name: "notify-timeout", Usage: "Per-publish timeout"},
			&cli.IntFlag{Name: "notify-retries", Usage: "Publish retry attempts (default 3)"},
		},
		Action: serveAction,
	}
}

// serverSettings is the fully resolved server configuration.
type serverSettings struct {
	listen          string
	storageDir      string
	workers         int
	maxFileSize     int64
	logLevel        string
	shutdownTimeout time.Duration

	store   store.Options
	search  search.Config
	journal journal.Options
	notify  config.NotifyConfig
}

// resolveServer merges flags over the config file over defaults.
func resolveServer(c *cli.Context, cfg *config.Config) (serverSettings, error) {
	s := serverSettings{
		listen:          pick(c, "listen", cfg.Listen, DefaultListen),
		storageDir:      pick(c, "storage-dir", cfg.StorageDir, "data"),
		workers:         pickInt(c, "workers", cfg.Workers, session.DefaultWorkers),
		logLevel:        pick(c, "log-level", cfg.LogLevel, "info"),
		shutdownTimeout: c.Duration("shutdown-timeout"),
	}
	var err error
	if s.maxFileSize, err = pickSize(c, "max-file-size", cfg.MaxFileSize); err != nil {
		return s, err
	}
	if _, err := log.ParseLevel(s.logLevel); err != nil {
		return s, err
	}

	s.store = store.Options{
		Backend: pick(c, "store-backend", cfg.Store.Backend, store.BackendFile),
		Path:    pick(c, "store-path", cfg.Store.Path, filepath.Clean(s.storageDir)+".index"),
		URL:     pick(c, "store-url", cfg.Store.URL, ""),
		Prefix:  pick(c, "store-prefix", cfg.Store.Prefix, ""),
	}

	floor, err := pickSize(c, "window-floor", cfg.Search.WindowFloor)
	if err != nil {
		return s, err
	}
	s.search = search.Config{
		WindowFloor:      int(floor),
		ProgressInterval: pickDuration(c, "progress-interval", cfg.Search.ProgressInterval, 0),
	}
	if c.IsSet("context-bytes") || cfg.Search.ContextBytes != nil {
		// An explicit zero means no context, which the engine spells as negative.
		if n := pickInt(c, "context-bytes", cfg.Search.ContextBytes, 0); n > 0 {
			s.search.ContextBytes = n
		} else {
			s.search.ContextBytes = -1
		}
	}

	s.journal = journal.Options{
		Backend:      pick(c, "journal-backend", cfg.Journal.Backend, journal.BackendNone),
		Path:         pick(c, "journal-path", cfg.Journal.Path, ""),
		Dataset:      pick(c, "journal-dataset", cfg.Journal.Dataset, journal.DefaultDataset),
		Region:       pick(c, "journal-s3-region", cfg.Journal.Region, ""),
		Endpoint:     pick(c, "journal-s3-endpoint", cfg.Journal.Endpoint, ""),
		UsePathStyle: c.Bool("journal-s3-path-style") || cfg.Journal.S3PathStyle,
	}

	s.notify = cfg.Notify
	s.notify.Type = pick(c, "notify", cfg.Notify.Type, "none")
	s.notify.URL = pick(c, "notify-url", cfg.Notify.URL, "")
	s.notify.Channel = pick(c, "notify-channel", cfg.Notify.Channel, "")
	s.notify.Stream = pick(c, "notify-stream", cfg.Notify.Stream, "")
	s.notify.Secret = pick(c, "notify-secret", cfg.Notify.Secret, "")
	s.notify.Timeout = config.Duration{Duration: pickDuration(c, "notify-timeout", cfg.Notify.Timeout, 0)}
	if c.IsSet("notify-retries") {
		n := c.Int("notify-retries")
		s.notify.Retries = &n
	}
	return s, nil
}

// buildNotifier creates the change notification adapter.
func buildNotifier(n config.NotifyConfig) (adapter.Adapter, error) {
	retries := redisadapter.DefaultRetries
	if n.Retries != nil {
		retries = *n.Retries
	}
	switch strings.ToLower(n.Type) {
	case "", "none":
		return adapter.Nop{}, nil
	case "redis":
		return redisadapter.New(redisadapter.Config{
			URL:          n.URL,
			Channel:      n.Channel,
			Stream:       n.Stream,
			StreamMaxLen: n.StreamMaxLen,
			Timeout:      n.Timeout.Duration,
			Retries:      retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     n.URL,
			Headers: n.Headers,
			Secret:  n.Secret,
			Timeout: n.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown notify type %q (must be none, redis, or webhook)", n.Type)
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	s, err := resolveServer(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	logger, err := log.New(log.Options{Component: "server", Level: s.logLevel})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer iox.DiscardErr(logger.Sync)

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	if err := os.MkdirAll(s.storageDir, 0o755); err != nil {
		return cli.Exit(fmt.Sprintf("storage dir: %v", err), exitFailure)
	}

	var resources iox.Stack
	defer func() {
		if err := resources.Close(); err != nil {
			logger.Warn("close failed", map[string]any{"error": err.Error()})
		}
	}()

	st, err := store.Open(s.store)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	resources.Push(st)

	jr, err := journal.Open(ctx, s.journal)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	resources.Push(jr)

	notifier, err := buildNotifier(s.notify)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	resources.Push(notifier)

	s.search.Logger = logger
	srv, err := session.NewServer(session.Config{
		Store:       st,
		StorageDir:  s.storageDir,
		Engine:      search.NewEngine(s.search),
		Scheduler:   session.NewScheduler(s.workers),
		Logger:      logger,
		Metrics:     metrics.NewCollector(strings.ToLower(s.store.Backend), strings.ToLower(s.journal.Backend)),
		Journal:     jr,
		Notifier:    notifier,
		MaxFileSize: s.maxFileSize,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return cli.Exit(fmt.Sprintf("listen %s: %v", s.listen, err), exitFailure)
	}
	logger.Info("server starting", map[string]any{
		"version":       types.Version,
		"storage_dir":   srv.StorageDir(),
		"workers":       s.workers,
		"store":         s.store.Backend,
		"journal":       s.journal.Backend,
		"notify":        s.notify.Type,
		"max_file_size": s.maxFileSize,
	})

	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.WithoutCancel(ctx), ln) }()

	select {
	case err := <-served:
		// Listener failed on its own.
		if !errors.Is(err, session.ErrServerClosed) {
			logger.Error("serve failed", map[string]any{"error": err.Error()})
		}
		shutdown(srv, logger, s.shutdownTimeout)
		return cli.Exit(fmt.Sprintf("serve: %v", err), exitFailure)
	case <-ctx.Done():
	}

	logger.Info("shutting down", map[string]any{"timeout": s.shutdownTimeout.String()})
	shutdown(srv, logger, s.shutdownTimeout)
	<-served
	return nil
}

func shutdown(srv *session.Server, logger *log.Logger, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("forced shutdown", map[string]any{"error": err.Error()})
	}
}
