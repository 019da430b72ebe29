// Package config loads process configuration, from YAML, with environment
// variable overrides, see Load.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-synclane/channels"
	"github.com/joeycumines/go-synclane/drain"
	"github.com/joeycumines/go-synclane/focus"
	"github.com/joeycumines/go-synclane/syncstate"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		Mode     string   `yaml:"mode" validate:"required,oneof=production deterministic"`
		Channels []string `yaml:"channels" validate:"required,min=1,unique,dive,required"`
		Logging  Logging  `yaml:"logging"`
		Sync     Sync     `yaml:"sync"`
		Focus    Focus    `yaml:"focus"`
		Poller   Poller   `yaml:"poller"`
	}

	Logging struct {
		Level  string `yaml:"level" validate:"required,oneof=disabled emerg alert crit err warning notice info debug trace"`
		Output string `yaml:"output" validate:"required"`
	}

	Sync struct {
		Debounce     time.Duration `yaml:"debounce" validate:"gt=0"`
		MaxRetries   int           `yaml:"max_retries" validate:"min=1"`
		RetryBackoff time.Duration `yaml:"retry_backoff" validate:"gt=0"`
		RateLimits   []RateLimit   `yaml:"rate_limits" validate:"dive"`
	}

	// RateLimit allows at most Events sync calls per lane, within any
	// Window.
	RateLimit struct {
		Window time.Duration `yaml:"window" validate:"gt=0"`
		Events int           `yaml:"events" validate:"min=1"`
	}

	Focus struct {
		UnfocusedDelay time.Duration `yaml:"unfocused_delay" validate:"gt=0"`
	}

	Poller struct {
		Quantum time.Duration `yaml:"quantum" validate:"gt=0"`
	}

	// FieldError is a single validation failure.
	FieldError struct {
		// Field is the dotted YAML path, e.g. sync.debounce.
		Field   string
		Message string
	}

	// ValidationErrors is returned by Config.Validate.
	ValidationErrors struct {
		Errors []FieldError
	}
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get(`yaml`), `,`)
		if name == `-` {
			return ``
		}
		return name
	})
	return v
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Mode: channels.ModeProduction.String(),
		Channels: []string{
			string(syncstate.LanePush),
			string(syncstate.LaneEmail),
		},
		Logging: Logging{
			Level:  `info`,
			Output: `stderr`,
		},
		Sync: Sync{
			Debounce:     syncstate.DefaultDebounce,
			MaxRetries:   syncstate.DefaultMaxRetries,
			RetryBackoff: syncstate.DefaultRetryBackoff,
		},
		Focus: Focus{
			UnfocusedDelay: focus.DefaultUnfocusedDelay,
		},
		Poller: Poller{
			Quantum: drain.DefaultQuantum,
		},
	}
}

// Load reads configuration from path, on top of Default, then applies
// environment variable overrides (see Env), then validates the result. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != `` {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read file: %w", err)
		}
		err = Decode(f, cfg)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Decode parses YAML from r into cfg, rejecting unknown keys. Fields absent
// from the document are left unchanged. An empty document is valid.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: failed to parse: %w", err)
	}
	return nil
}

// Validate checks every field, returning *ValidationErrors on failure.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, e := range fieldErrs {
			errs.Errors = append(errs.Errors, FieldError{
				Field:   fieldPath(e),
				Message: formatValidationMessage(e),
			})
		}
	}

	if len(c.Sync.RateLimits) != 0 && len(errs.Errors) == 0 {
		if _, err := c.Sync.NewLimiter(); err != nil {
			errs.Errors = append(errs.Errors, FieldError{
				Field:   `sync.rate_limits`,
				Message: err.Error(),
			})
		}
	}

	if len(errs.Errors) != 0 {
		return errs
	}
	return nil
}

// ChannelMode returns the parsed Mode. The config must be valid.
func (c *Config) ChannelMode() channels.Mode {
	mode, err := channels.ParseMode(c.Mode)
	if err != nil {
		panic(err)
	}
	return mode
}

// Keys returns Channels as registry keys.
func (c *Config) Keys() []channels.Key {
	keys := make([]channels.Key, len(c.Channels))
	for i, v := range c.Channels {
		keys[i] = channels.Key(v)
	}
	return keys
}

// NewLimiter builds the sync rate limiter, which will be nil if no rate
// limits are configured.
func (s Sync) NewLimiter() (limiter *catrate.Limiter, err error) {
	if len(s.RateLimits) == 0 {
		return nil, nil
	}
	rates := make(map[time.Duration]int, len(s.RateLimits))
	for _, v := range s.RateLimits {
		if _, ok := rates[v.Window]; ok {
			return nil, fmt.Errorf("duplicate window %s", v.Window)
		}
		rates[v.Window] = v.Events
	}
	// catrate panics on rates that are inconsistent with each other
	defer func() {
		if r := recover(); r != nil {
			limiter, err = nil, fmt.Errorf("%v", r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}

// SyncConfig converts to the synchronizer configuration, sans logger and
// notifier.
func (s Sync) SyncConfig() (*syncstate.Config, error) {
	limiter, err := s.NewLimiter()
	if err != nil {
		return nil, fmt.Errorf("config: sync: %w", err)
	}
	return &syncstate.Config{
		Limiter:      limiter,
		Debounce:     s.Debounce,
		RetryBackoff: s.RetryBackoff,
		MaxRetries:   s.MaxRetries,
	}, nil
}

func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "config: validation failed"
	}
	messages := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config: validation failed: %s", strings.Join(messages, "; "))
}

func fieldPath(e validator.FieldError) string {
	_, path, _ := strings.Cut(e.Namespace(), `.`)
	return path
}

func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s entries", e.Param())
		}
		return fmt.Sprintf("must be at least %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "unique":
		return "must not contain duplicates"
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}
