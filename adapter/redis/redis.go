// Package redis publishes archive change events over Redis.
//
// Every event goes to a pub/sub channel. When a stream key is configured the
// same payload is also appended to a capped Redis stream, which gives
// consumers that were offline a replayable change feed.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/strata/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "strata:archive"

// DefaultTimeout bounds one publish attempt.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// DefaultStreamMaxLen caps the change feed when a stream is configured.
const DefaultStreamMaxLen = 10_000

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel (default strata:archive).
	Channel string
	// Stream, when set, also records every event with XADD.
	Stream string
	// StreamMaxLen trims the stream (default 10000).
	StreamMaxLen int64
	// Timeout bounds one attempt (default 5s).
	Timeout time.Duration
	// Retries is the number of extra attempts after a failure.
	Retries int
}

// Adapter publishes archive events to Redis.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

// New validates cfg and creates the client. No connection is made until
// the first publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Stream != "" && cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = DefaultStreamMaxLen
	}
	return &Adapter{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish sends the event to the channel and, if configured, the stream.
// Both commands travel in one pipeline per attempt.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ArchiveEvent) error {
	body, err := event.Encode()
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	err = adapter.Retry(ctx, a.cfg.Retries, nil, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
		_, err := a.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
			p.Publish(ctx, a.cfg.Channel, body)
			if a.cfg.Stream != "" {
				p.XAdd(ctx, &goredis.XAddArgs{
					Stream: a.cfg.Stream,
					MaxLen: a.cfg.StreamMaxLen,
					Values: map[string]any{
						"event_type": event.EventType,
						"name":       event.Name,
						"payload":    body,
					},
				})
			}
			return nil
		})
		if errors.Is(err, goredis.ErrClosed) {
			return adapter.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
