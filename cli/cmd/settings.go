package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/strata/cli/config"
	"github.com/pithecene-io/strata/client"
)

// loadConfig reads the --config file, or ./strata.yaml when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitFailure)
	}
	return cfg, nil
}

// pick returns the flag value when the flag was given, else the config value,
// else def.
func pick(c *cli.Context, flag, fromConfig, def string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	if fromConfig != "" {
		return fromConfig
	}
	return def
}

func pickDuration(c *cli.Context, flag string, fromConfig config.Duration, def time.Duration) time.Duration {
	if c.IsSet(flag) {
		return c.Duration(flag)
	}
	if fromConfig.Duration > 0 {
		return fromConfig.Duration
	}
	return def
}

// pickSize resolves a byte size flag given as text, e.g. "16MiB".
func pickSize(c *cli.Context, flag string, fromConfig config.ByteSize) (int64, error) {
	if c.IsSet(flag) {
		size, err := config.ParseByteSize(c.String(flag))
		if err != nil {
			return 0, fmt.Errorf("--%s: %w", flag, err)
		}
		return size.Int64(), nil
	}
	return fromConfig.Int64(), nil
}

func pickInt(c *cli.Context, flag string, fromConfig *int, def int) int {
	if c.IsSet(flag) {
		return c.Int(flag)
	}
	if fromConfig != nil {
		return *fromConfig
	}
	return def
}

// newClient builds a protocol client from flags and config.
func newClient(c *cli.Context) (*client.Client, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	cl, err := client.New(client.Config{
		Addr:        pick(c, "server", cfg.Server, DefaultServer),
		DialTimeout: c.Duration("dial-timeout"),
	})
	if err != nil {
		return nil, cli.Exit(err.Error(), exitFailure)
	}
	return cl, nil
}

// commandError maps a client error to an exit error.
func commandError(what string, err error) error {
	if err == nil {
		return nil
	}
	if client.IsServerError(err) {
		return cli.Exit(fmt.Sprintf("%s: %v", what, err), exitRejected)
	}
	return cli.Exit(fmt.Sprintf("%s: %v", what, err), exitFailure)
}
