package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = `SYNCLANE_`

// Env lists the supported environment variable overrides, sans EnvPrefix.
var Env = [...]string{
	`MODE`,
	`CHANNELS`,
	`LOG_LEVEL`,
	`LOG_OUTPUT`,
	`SYNC_DEBOUNCE`,
	`SYNC_MAX_RETRIES`,
	`SYNC_RETRY_BACKOFF`,
	`FOCUS_UNFOCUSED_DELAY`,
	`POLLER_QUANTUM`,
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, name := range Env {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == `` {
			continue
		}
		if err := setEnv(cfg, name, v); err != nil {
			return fmt.Errorf("config: invalid %s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}

func setEnv(cfg *Config, name, v string) (err error) {
	switch name {
	case `MODE`:
		cfg.Mode = v
	case `CHANNELS`:
		cfg.Channels = cfg.Channels[:0:0]
		for _, s := range strings.Split(v, `,`) {
			cfg.Channels = append(cfg.Channels, strings.TrimSpace(s))
		}
	case `LOG_LEVEL`:
		cfg.Logging.Level = v
	case `LOG_OUTPUT`:
		cfg.Logging.Output = v
	case `SYNC_DEBOUNCE`:
		cfg.Sync.Debounce, err = time.ParseDuration(v)
	case `SYNC_MAX_RETRIES`:
		cfg.Sync.MaxRetries, err = strconv.Atoi(v)
	case `SYNC_RETRY_BACKOFF`:
		cfg.Sync.RetryBackoff, err = time.ParseDuration(v)
	case `FOCUS_UNFOCUSED_DELAY`:
		cfg.Focus.UnfocusedDelay, err = time.ParseDuration(v)
	case `POLLER_QUANTUM`:
		cfg.Poller.Quantum, err = time.ParseDuration(v)
	default:
		panic(`unreachable`)
	}
	return err
}
