// Package config loads harvestgraph settings from flags, HARVESTGRAPH_*
// environment variables and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keilerkonzept/harvestgraph/internal/ramp"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "HARVESTGRAPH"

// Config is the complete runtime configuration.
type Config struct {
	// input
	LogName     string        `mapstructure:"log_name"`
	MaxLogFiles int           `mapstructure:"max_logfiles"`
	Process     string        `mapstructure:"process"`
	Family      string        `mapstructure:"family"`
	MaxLine     int           `mapstructure:"max_line"`
	Poll        time.Duration `mapstructure:"poll"`

	// window
	BucketWidth    time.Duration `mapstructure:"bucket_width"`
	Window         time.Duration `mapstructure:"window"`
	BucketCapacity int           `mapstructure:"bucket_capacity"`

	// render
	Ramp      string  `mapstructure:"ramp"`
	Rate      float64 `mapstructure:"rate"`
	Smoothing float64 `mapstructure:"smoothing"`
	BandWidth int     `mapstructure:"band_width"`
	AltScreen bool    `mapstructure:"alt_screen"`
	Stats     bool    `mapstructure:"stats"`
	Trace     bool    `mapstructure:"trace"`

	// logging
	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`
}

// Buckets is the number of buckets in the window.
func (c *Config) Buckets() int { return int(c.Window / c.BucketWidth) }

// AddFlags registers every setting on fs with its default.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Read settings from this file (yaml, toml or json)")

	fs.String("log-name", "debug.log", "Log file name inside the watched directory")
	fs.Int("max-logfiles", 7, "Rotated siblings (name.1 .. name.N) to read at startup")
	fs.String("process", "harvester", "Process tag of check lines")
	fs.String("family", "", "Only count this logger family (e.g. chia); empty counts all")
	fs.Int("max-line", 4096, "Skip log lines longer than this many bytes")
	fs.Duration("poll", time.Second, "Poll the log at least this often")

	fs.Duration("bucket-width", 15*time.Minute, "Time covered by one column")
	fs.Duration("window", 7*24*time.Hour, "Total history kept in memory")
	fs.Int("bucket-capacity", 180, "Maximum checks per bucket")

	fs.String("ramp", ramp.Default, fmt.Sprintf("Colour ramp %v", ramp.Names()))
	fs.Float64("rate", 0.1, "Nominal checks per second (full colour)")
	fs.Float64("smoothing", 1.0, "Widen each cell's counting window by this fraction")
	fs.Int("band-width", 4, "Columns per alternating dimmed band (0 disables)")
	fs.Bool("alt-screen", true, "Use the terminal alternate screen buffer")
	fs.Bool("stats", false, "Show runtime stats")
	fs.Bool("trace", false, "Show the per-bucket trace pane")

	fs.String("log-file", "", "Write diagnostics to this file")
	fs.String("log-level", "info", "Diagnostics level (debug, info, warn, error)")
}

// Load merges defaults, the optional config file, environment and flags.
// Flags win over environment, environment over the file.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if bindErr := v.BindPFlag(key, f); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to bind flags")
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &cfg, nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.LogName == "" {
		return errors.New("log_name is required")
	}
	if c.MaxLogFiles < 0 {
		return errors.New("max_logfiles must be >= 0")
	}
	if c.Process == "" {
		return errors.New("process is required")
	}
	if c.MaxLine < 128 {
		return errors.New("max_line must be at least 128")
	}
	if c.Poll <= 0 {
		return errors.New("poll must be > 0")
	}
	if c.BucketWidth < time.Second || c.BucketWidth%time.Second != 0 {
		return errors.Errorf("bucket_width must be a whole number of seconds (got %s)", c.BucketWidth)
	}
	if c.Window < c.BucketWidth {
		return errors.New("window must be >= bucket_width")
	}
	if c.Window%c.BucketWidth != 0 {
		return errors.Errorf("window must be a multiple of bucket_width (got window=%s bucket_width=%s)", c.Window, c.BucketWidth)
	}
	if c.BucketCapacity < 1 {
		return errors.New("bucket_capacity must be >= 1")
	}
	if _, err := ramp.Named(c.Ramp); err != nil {
		return err
	}
	if c.Rate <= 0 {
		return errors.New("rate must be > 0")
	}
	if c.Smoothing < 0 {
		return errors.New("smoothing must be >= 0")
	}
	if c.BandWidth < 0 {
		return errors.New("band_width must be >= 0")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return errors.New("log_level must be one of: debug, info, warn, error")
	}
	return nil
}
