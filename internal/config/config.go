package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

type Screen struct {
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

// Queues are channel capacities.
type Queues struct {
	Render int `yaml:"render"` // script -> render commands
	State  int `yaml:"state"`  // render -> script updates
}

type Config struct {
	ShaderPath    string        `yaml:"shader_path"`
	ReplAddr      string        `yaml:"repl_addr"`
	StatusAddr    string        `yaml:"status_addr"` // "-" disables the status server
	RefreshRate   string        `yaml:"refresh_rate"`
	DynamicPeriod time.Duration `yaml:"dynamic_period"`
	EvalTimeout   time.Duration `yaml:"eval_timeout"`
	Screen        Screen        `yaml:"screen"`
	Queues        Queues        `yaml:"queues"`
	Continuous    *bool         `yaml:"continuous,omitempty"`
	LogLevel      string        `yaml:"log_level"`
}

func Default() Config {
	continuous := true
	return Config{
		ShaderPath:    "shader.wgsl",
		ReplAddr:      "127.0.0.1:42069",
		StatusAddr:    "127.0.0.1:8080",
		RefreshRate:   "60Hz",
		DynamicPeriod: 50 * time.Millisecond,
		EvalTimeout:   5 * time.Second,
		Screen:        Screen{Width: 1280, Height: 720},
		Queues:        Queues{Render: 1024, State: 16},
		Continuous:    &continuous,
		LogLevel:      "info",
	}
}

// Load reads a config file. Keys missing from the file stay zero; use
// Overlay to combine it with defaults or flags.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Overlay returns c with every field that is set in o replacing c's.
func (c Config) Overlay(o *Config) Config {
	if o == nil {
		return c
	}
	c.ShaderPath = firstNonEmpty(o.ShaderPath, c.ShaderPath)
	c.ReplAddr = firstNonEmpty(o.ReplAddr, c.ReplAddr)
	c.StatusAddr = firstNonEmpty(o.StatusAddr, c.StatusAddr)
	c.RefreshRate = firstNonEmpty(o.RefreshRate, c.RefreshRate)
	c.LogLevel = firstNonEmpty(o.LogLevel, c.LogLevel)
	if o.DynamicPeriod > 0 {
		c.DynamicPeriod = o.DynamicPeriod
	}
	if o.EvalTimeout > 0 {
		c.EvalTimeout = o.EvalTimeout
	}
	if o.Screen.Width > 0 {
		c.Screen.Width = o.Screen.Width
	}
	if o.Screen.Height > 0 {
		c.Screen.Height = o.Screen.Height
	}
	if o.Queues.Render > 0 {
		c.Queues.Render = o.Queues.Render
	}
	if o.Queues.State > 0 {
		c.Queues.State = o.Queues.State
	}
	if o.Continuous != nil {
		v := *o.Continuous
		c.Continuous = &v
	}
	return c
}

// IsContinuous reports whether every tick should draw.
func (c Config) IsContinuous() bool { return c.Continuous == nil || *c.Continuous }

// FrameInterval converts the refresh rate into a tick period.
func (c Config) FrameInterval() (time.Duration, error) {
	var f physic.Frequency
	if err := f.Set(c.RefreshRate); err != nil {
		return 0, fmt.Errorf("refresh_rate %q: %w", c.RefreshRate, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("refresh_rate %q must be positive", c.RefreshRate)
	}
	p := f.Period()
	if p <= 0 {
		return 0, fmt.Errorf("refresh_rate %q is too high", c.RefreshRate)
	}
	return p, nil
}

// Validate checks the values the process cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.ShaderPath == "" {
		errs = append(errs, errors.New("shader_path is required"))
	}
	if c.ReplAddr == "" {
		errs = append(errs, errors.New("repl_addr is required"))
	}
	if c.Screen.Width == 0 || c.Screen.Height == 0 {
		errs = append(errs, errors.New("screen size must be non-zero"))
	}
	if c.Queues.Render <= 0 || c.Queues.State <= 0 {
		errs = append(errs, errors.New("queue sizes must be positive"))
	}
	if _, err := c.FrameInterval(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
