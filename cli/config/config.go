package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents a strata.yaml file. Every value is optional and acts as
// a default for the matching command-line flag; flags always win.
type Config struct {
	// Listen is the server bind address.
	Listen string `yaml:"listen"`
	// Server is the address the client commands connect to.
	Server      string   `yaml:"server"`
	StorageDir  string   `yaml:"storage_dir"`
	Workers     *int     `yaml:"workers,omitempty"`
	MaxFileSize ByteSize `yaml:"max_file_size"`
	LogLevel    string   `yaml:"log_level"`

	Store   StoreConfig   `yaml:"store"`
	Search  SearchConfig  `yaml:"search"`
	Journal JournalConfig `yaml:"journal"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// StoreConfig selects the metadata store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	URL     string `yaml:"url"`
	Prefix  string `yaml:"prefix"`
}

// SearchConfig tunes the search engine.
type SearchConfig struct {
	WindowFloor      ByteSize `yaml:"window_floor"`
	ContextBytes     *int     `yaml:"context_bytes,omitempty"`
	ProgressInterval Duration `yaml:"progress_interval"`
}

// JournalConfig holds session journal defaults.
type JournalConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Dataset     string `yaml:"dataset"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// NotifyConfig holds change notification defaults.
type NotifyConfig struct {
	Type    string   `yaml:"type"`
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`

	// redis
	Channel      string `yaml:"channel,omitempty"`
	Stream       string `yaml:"stream,omitempty"`
	StreamMaxLen int64  `yaml:"stream_max_len,omitempty"`

	// webhook
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
}

// Validate checks enumerated values. Empty values are allowed and mean
// "use the default".
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		if value == "" {
			return
		}
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, value, strings.Join(allowed, ", ")))
	}
	check("log_level", c.LogLevel, "debug", "info", "warn", "error")
	check("store.backend", c.Store.Backend, "file", "memory", "redis")
	check("journal.backend", c.Journal.Backend, "none", "fs", "s3")
	check("notify.type", c.Notify.Type, "none", "redis", "webhook")

	if c.Workers != nil && *c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers: must not be negative, got %d", *c.Workers))
	}
	if c.MaxFileSize < 0 {
		errs = append(errs, errors.New("max_file_size: must not be negative"))
	}
	if c.Notify.StreamMaxLen < 0 {
		errs = append(errs, fmt.Errorf("notify.stream_max_len: must not be negative, got %d", c.Notify.StreamMaxLen))
	}
	if c.Notify.Retries != nil && *c.Notify.Retries < 0 {
		errs = append(errs, fmt.Errorf("notify.retries: must not be negative, got %d", *c.Notify.Retries))
	}
	return errors.Join(errs...)
}

// Duration wraps time.Duration for YAML string parsing (e.g. "200ms", "5s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string. An empty string leaves zero.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ByteSize is a byte count written as a plain integer or with a unit suffix:
// B, KB, MB, GB (powers of 1000) or K, KiB, M, MiB, G, GiB (powers of 1024).
type ByteSize int64

var byteUnits = map[string]int64{
	"":    1,
	"b":   1,
	"kb":  1000,
	"mb":  1000 * 1000,
	"gb":  1000 * 1000 * 1000,
	"k":   1 << 10,
	"kib": 1 << 10,
	"m":   1 << 20,
	"mib": 1 << 20,
	"g":   1 << 30,
	"gib": 1 << 30,
}

// ParseByteSize parses a size such as "512KiB", "16MB" or "1048576".
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	i := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	num, unit := s, ""
	if i >= 0 {
		num, unit = s[:i], strings.ToLower(strings.TrimSpace(s[i:]))
	}
	mult, ok := byteUnits[unit]
	if !ok || num == "" {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		return ByteSize(n * mult), nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(f * float64(mult)), nil
}

// UnmarshalYAML accepts an integer or a suffixed string.
func (b *ByteSize) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Int64 returns the size as an int64.
func (b ByteSize) Int64() int64 { return int64(b) }
