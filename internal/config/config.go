// Package config holds the harness settings: where the external tools
// live, how long to wait for them and where logs and the journal go.
//
// Settings come from Default, optionally overlaid by a YAML file that is
// validated against an embedded CUE schema before it is decoded. Command
// line flags are applied last by the caller.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSrc string

// Config is the full harness configuration.
type Config struct {
	LTTng        string        `yaml:"lttng"`
	Sessiond     string        `yaml:"sessiond"`
	Reader       string        `yaml:"reader"`
	ReaderArgs   []string      `yaml:"reader_args"`
	Subject      string        `yaml:"subject"`
	Timeout      time.Duration `yaml:"-"`
	PipeTimeout  time.Duration `yaml:"-"`
	EventPattern string        `yaml:"event_pattern"`
	Journal      string        `yaml:"journal"`
	LogLevel     string        `yaml:"log_level"`
}

// fileConfig mirrors the YAML document. Durations are strings there.
type fileConfig struct {
	Config      `yaml:",inline"`
	Timeout     string `yaml:"timeout"`
	PipeTimeout string `yaml:"pipe_timeout"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LTTng:        "lttng",
		Sessiond:     "lttng-sessiond",
		Reader:       "babeltrace",
		Subject:      "./daemon",
		Timeout:      5 * time.Second,
		PipeTimeout:  5 * time.Second,
		EventPattern: "*",
		LogLevel:     "info",
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes a YAML document over the defaults. An empty
// document yields Default.
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := validate(raw); err != nil {
		return Config{}, err
	}

	fc := fileConfig{Config: Default()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg := fc.Config
	var err error
	if fc.Timeout != "" {
		if cfg.Timeout, err = time.ParseDuration(fc.Timeout); err != nil {
			return Config{}, fmt.Errorf("timeout: %w", err)
		}
	}
	if fc.PipeTimeout != "" {
		if cfg.PipeTimeout, err = time.ParseDuration(fc.PipeTimeout); err != nil {
			return Config{}, fmt.Errorf("pipe_timeout: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks invariants that hold regardless of where values came
// from.
func (c Config) Validate() error {
	var errs []error
	if c.Subject == "" {
		errs = append(errs, errors.New("subject is required"))
	}
	if c.LTTng == "" {
		errs = append(errs, errors.New("lttng is required"))
	}
	if c.Reader == "" {
		errs = append(errs, errors.New("reader is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.PipeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipe_timeout must be positive, got %s", c.PipeTimeout))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

// validate checks the raw document against the #Config schema.
func validate(raw map[string]any) error {
	if raw == nil {
		return nil
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
