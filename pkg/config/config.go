// Package config loads service settings from defaults, an optional YAML file, PIXELWAR_*
// environment variables and command line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/astromechza/pixelwar/pkg/render"
)

type CanvasConfig struct {
	Name     string        `mapstructure:"name"`
	Width    int           `mapstructure:"width"`
	Height   int           `mapstructure:"height"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

type Config struct {
	Addr     string `mapstructure:"addr"`
	MaxConns int    `mapstructure:"max_conns"`
	LogLevel string `mapstructure:"log_level"`
	DumpDir  string `mapstructure:"dump_dir"`

	Canvases []CanvasConfig `mapstructure:"canvases"`

	Cookie struct {
		Secure bool `mapstructure:"secure"`
		MaxAge int  `mapstructure:"max_age"`
	} `mapstructure:"cookie"`

	Stream struct {
		SendBuffer   int           `mapstructure:"send_buffer"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"stream"`

	Preinit struct {
		Rate  float64 `mapstructure:"rate"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"preinit"`

	Journal struct {
		Path          string        `mapstructure:"path"`
		Buffer        int           `mapstructure:"buffer"`
		FlushInterval time.Duration `mapstructure:"flush_interval"`
	} `mapstructure:"journal"`

	Archive struct {
		Bucket    string        `mapstructure:"bucket"`
		Prefix    string        `mapstructure:"prefix"`
		Region    string        `mapstructure:"region"`
		Endpoint  string        `mapstructure:"endpoint"`
		AccessKey string        `mapstructure:"access_key"`
		SecretKey string        `mapstructure:"secret_key"`
		PathStyle bool          `mapstructure:"path_style"`
		Interval  time.Duration `mapstructure:"interval"`
		Scale     int           `mapstructure:"scale"`
	} `mapstructure:"archive"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "localhost:8080")
	v.SetDefault("max_conns", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("dump_dir", "")
	v.SetDefault("canvases", []map[string]interface{}{
		{"name": "0000", "width": 100, "height": 100, "cooldown": "10s"},
	})
	v.SetDefault("cookie.secure", true)
	v.SetDefault("cookie.max_age", 3600)
	v.SetDefault("stream.send_buffer", 64)
	v.SetDefault("stream.write_timeout", "10s")
	v.SetDefault("preinit.rate", 1.0)
	v.SetDefault("preinit.burst", 10)
	v.SetDefault("journal.path", ":memory:")
	v.SetDefault("journal.buffer", 4096)
	v.SetDefault("journal.flush_interval", "1s")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "snapshots/")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("archive.path_style", false)
	v.SetDefault("archive.interval", "1m")
	v.SetDefault("archive.scale", 4)
}

// Load reads the configuration. path may be empty; flags may be nil. Flag names use dashes
// for underscores and dots (journal-path sets journal.path).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("PIXELWAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || bindErr != nil {
				return
			}
			key := strings.NewReplacer("-", "_").Replace(f.Name)
			if i := strings.Index(key, "_"); i > 0 && isSection(key[:i]) {
				key = key[:i] + "." + key[i+1:]
			}
			bindErr = v.BindPFlag(key, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func isSection(s string) bool {
	switch s {
	case "cookie", "stream", "preinit", "journal", "archive":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must be set")
	}
	if len(c.Canvases) == 0 {
		return fmt.Errorf("at least one canvas must be configured")
	}
	seen := make(map[string]bool, len(c.Canvases))
	for i, cv := range c.Canvases {
		if cv.Name == "" {
			return fmt.Errorf("canvas %d: name must be set", i)
		}
		if seen[cv.Name] {
			return fmt.Errorf("canvas %q: duplicate name", cv.Name)
		}
		seen[cv.Name] = true
		if cv.Width <= 0 || cv.Height <= 0 {
			return fmt.Errorf("canvas %q: invalid dimensions %dx%d", cv.Name, cv.Width, cv.Height)
		}
		if cv.Cooldown < 0 {
			return fmt.Errorf("canvas %q: negative cooldown", cv.Name)
		}
	}
	if c.Preinit.Rate < 0 || c.Preinit.Burst < 0 {
		return fmt.Errorf("preinit rate and burst must not be negative")
	}
	if c.Archive.Scale < 0 || c.Archive.Scale > render.MaxScale {
		return fmt.Errorf("archive scale %d outside 0..%d", c.Archive.Scale, render.MaxScale)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
