// Package config loads the explorer configuration from defaults, an optional
// YAML or TOML file and MANDEL_* environment variables, in increasing order
// of priority.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/palette"
	"github.com/marben/mandel_explorer/scheduler"
)

// EnvPrefix prefixes environment overrides: MANDEL_WIDTH, MANDEL_PIXELGROUP_MIN, ...
const EnvPrefix = "MANDEL"

// Config represents the complete explorer configuration
type Config struct {
	Width   int           `mapstructure:"width" yaml:"width"`
	Height  int           `mapstructure:"height" yaml:"height"`
	Workers int           `mapstructure:"workers" yaml:"workers"` // 0 is one per CPU
	Tick    time.Duration `mapstructure:"tick" yaml:"tick"`

	PixelGroup PixelGroupConfig `mapstructure:"pixelgroup" yaml:"pixelgroup"`

	MaxIteration int `mapstructure:"maxiteration" yaml:"maxiteration"`
	ColorCount   int `mapstructure:"colorcount" yaml:"colorcount"`
	ColorShift   int `mapstructure:"colorshift" yaml:"colorshift"`

	Frame    FrameConfig   `mapstructure:"frame" yaml:"frame"`
	Landmark string        `mapstructure:"landmark" yaml:"landmark,omitempty"` // overrides Frame
	Palette  PaletteConfig `mapstructure:"palette" yaml:"palette"`

	Addr     string `mapstructure:"addr" yaml:"addr"`
	LogLevel string `mapstructure:"loglevel" yaml:"loglevel"`
}

// PixelGroupConfig bounds the progressive refinement
type PixelGroupConfig struct {
	Initial float64 `mapstructure:"initial" yaml:"initial"`
	Min     float64 `mapstructure:"min" yaml:"min"`
}

// FrameConfig is the start view. Values are decimal strings, parsed at full precision.
type FrameConfig struct {
	X      string `mapstructure:"x" yaml:"x"`
	Y      string `mapstructure:"y" yaml:"y"`
	Width  string `mapstructure:"width" yaml:"width"`
	Height string `mapstructure:"height" yaml:"height"`
}

// PaletteConfig is the control ring of the palette
type PaletteConfig struct {
	Ring    []string  `mapstructure:"ring" yaml:"ring"` // hex colors
	Weights []float64 `mapstructure:"weights" yaml:"weights"`
}

// New returns a viper instance carrying the defaults and environment bindings.
// Command line flags may be bound onto it before calling FromViper.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("width", 1920)
	v.SetDefault("height", 1080)
	v.SetDefault("workers", 0)
	v.SetDefault("tick", 50*time.Millisecond)
	v.SetDefault("pixelgroup.initial", 8.0)
	v.SetDefault("pixelgroup.min", 0.25)
	v.SetDefault("maxiteration", 1000)
	v.SetDefault("colorcount", 500)
	v.SetDefault("colorshift", 0)
	v.SetDefault("frame.x", "-2.75")
	v.SetDefault("frame.y", "1.125")
	v.SetDefault("frame.width", "4")
	v.SetDefault("frame.height", "-2.25")
	v.SetDefault("landmark", "")
	v.SetDefault("palette.ring", []string{"#000764", "#206bcb", "#edffff", "#ffaa00", "#000200"})
	v.SetDefault("palette.weights", palette.DefaultWeights)
	v.SetDefault("addr", ":8080")
	v.SetDefault("loglevel", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration, with the file at path if it is not empty.
func Load(path string) (Config, error) {
	return FromViper(New(), path)
}

// FromViper reads the configuration from v, merging in the file at path if
// it is not empty.
func FromViper(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that cannot be clamped.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers %d is negative", c.Workers))
	}
	if err := scheduler.CheckPixelGroups(c.PixelGroup.Initial, c.PixelGroup.Min); err != nil {
		errs = append(errs, err)
	}
	if c.Landmark != "" {
		if _, ok := mandel.Landmark(c.Landmark); !ok {
			errs = append(errs, fmt.Errorf("unknown landmark %q, known: %s", c.Landmark, strings.Join(mandel.LandmarkNames(), ", ")))
		}
	} else if _, err := c.frame(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scheduler(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) frame() (mandel.Frame, error) {
	if c.Landmark != "" {
		r, ok := mandel.Landmark(c.Landmark)
		if !ok {
			return mandel.Frame{}, fmt.Errorf("unknown landmark %q", c.Landmark)
		}
		return r.Frame(), nil
	}
	return mandel.ParseFrame(c.Frame.X, c.Frame.Y, c.Frame.Width, c.Frame.Height)
}

// Request is the configured start view, normalized.
func (c Config) Request() (mandel.Request, error) {
	f, err := c.frame()
	if err != nil {
		return mandel.Request{}, err
	}
	req := mandel.Request{
		Frame:        f,
		MaxIteration: c.MaxIteration,
		ColorCount:   c.ColorCount,
		ColorShift:   c.ColorShift,
		Width:        c.Width,
		Height:       c.Height,
	}
	n := req.Normalize()
	if !n.Equal(req) {
		mandel.Logger().Warn("configured view clamped", "configured", req, "used", n)
	}
	return n, nil
}

// Scheduler returns the scheduler configuration. The palette ring and
// weights are validated here.
func (c Config) Scheduler() (scheduler.Config, error) {
	ring, err := palette.ParseRing(c.Palette.Ring)
	if err != nil {
		return scheduler.Config{}, err
	}
	// generating a tiny palette checks ring and weights together
	if _, err := palette.Generate(len(ring), ring, c.Palette.Weights); err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Workers:           c.Workers,
		TickInterval:      c.Tick,
		InitialPixelGroup: c.PixelGroup.Initial,
		MinPixelGroup:     c.PixelGroup.Min,
		Ring:              ring,
		Weights:           c.Palette.Weights,
	}, nil
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}

// Logger returns a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	l, err := c.level()
	if err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// YAML returns the configuration as a YAML document loadable by Load.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
