package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/go-synclane/channels"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), `synclane.yaml`)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load(``)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, channels.ModeProduction, cfg.ChannelMode())
	assert.Equal(t, []channels.Key{`push`, `email`}, cfg.Keys())
}

func TestLoad_file(t *testing.T) {
	path := writeFile(t, `
mode: deterministic
channels: [push, email, sms]
logging:
  level: debug
sync:
  debounce: 250ms
  max_retries: 5
  rate_limits:
    - window: 1m
      events: 10
    - window: 1h
      events: 100
focus:
  unfocused_delay: 3s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, channels.ModeDeterministic, cfg.ChannelMode())
	assert.Equal(t, []string{`push`, `email`, `sms`}, cfg.Channels)
	assert.Equal(t, `debug`, cfg.Logging.Level)
	assert.Equal(t, `stderr`, cfg.Logging.Output)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.Sync.RetryBackoff)
	assert.Equal(t, []RateLimit{{time.Minute, 10}, {time.Hour, 100}}, cfg.Sync.RateLimits)
	assert.Equal(t, 3*time.Second, cfg.Focus.UnfocusedDelay)
	assert.Equal(t, time.Millisecond, cfg.Poller.Quantum)

	sc, err := cfg.Sync.SyncConfig()
	require.NoError(t, err)
	assert.NotNil(t, sc.Limiter)
	assert.Equal(t, 5, sc.MaxRetries)
}

func TestLoad_errors(t *testing.T) {
	for _, tc := range [...]struct {
		name    string
		content string
		want    string
	}{
		{`unknown key`, "bogus: true\n", `config: failed to parse`},
		{`bad mode`, "mode: test\n", `mode: must be one of: production deterministic`},
		{`no channels`, "channels: []\n", `channels: must have at least 1 entries`},
		{`duplicate channels`, "channels: [push, push]\n", `channels: must not contain duplicates`},
		{`empty channel`, "channels: [push, '']\n", `channels[1]: is required`},
		{`bad level`, "logging: {level: loud}\n", `logging.level: must be one of`},
		{`zero debounce`, "sync: {debounce: 0s}\n", `sync.debounce: must be greater than 0`},
		{`bad duration`, "sync: {debounce: soon}\n", `config: failed to parse`},
		{`zero retries`, "sync: {max_retries: 0}\n", `sync.max_retries: must be at least 1`},
		{`zero events`, "sync: {rate_limits: [{window: 1m, events: 0}]}\n", `sync.rate_limits[0].events: must be at least 1`},
		{`duplicate window`, "sync: {rate_limits: [{window: 1m, events: 1}, {window: 1m, events: 2}]}\n", `sync.rate_limits: duplicate window 1m0s`},
		{`inconsistent rates`, "sync: {rate_limits: [{window: 1m, events: 10}, {window: 1h, events: 5}]}\n", `sync.rate_limits: catrate: invalid rates`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tc.content))
			require.Nil(t, cfg)
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), `missing.yaml`))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_validationErrorsType(t *testing.T) {
	_, err := Load(writeFile(t, "mode: test\nsync: {max_retries: -1}\n"))
	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs.Errors, 2)
	assert.Equal(t, `mode`, verrs.Errors[0].Field)
	assert.Equal(t, `sync.max_retries`, verrs.Errors[1].Field)
}

func TestLoad_env(t *testing.T) {
	t.Setenv(`SYNCLANE_MODE`, `deterministic`)
	t.Setenv(`SYNCLANE_CHANNELS`, `push, sms`)
	t.Setenv(`SYNCLANE_LOG_LEVEL`, `trace`)
	t.Setenv(`SYNCLANE_SYNC_DEBOUNCE`, `1s`)
	t.Setenv(`SYNCLANE_SYNC_MAX_RETRIES`, `7`)
	t.Setenv(`SYNCLANE_POLLER_QUANTUM`, `5ms`)

	cfg, err := Load(writeFile(t, "mode: production\nsync: {debounce: 2s}\n"))
	require.NoError(t, err)
	assert.Equal(t, `deterministic`, cfg.Mode)
	assert.Equal(t, []string{`push`, `sms`}, cfg.Channels)
	assert.Equal(t, `trace`, cfg.Logging.Level)
	assert.Equal(t, time.Second, cfg.Sync.Debounce)
	assert.Equal(t, 7, cfg.Sync.MaxRetries)
	assert.Equal(t, 5*time.Millisecond, cfg.Poller.Quantum)
}

func TestLoad_envInvalid(t *testing.T) {
	t.Setenv(`SYNCLANE_SYNC_MAX_RETRIES`, `many`)
	_, err := Load(``)
	require.ErrorContains(t, err, `config: invalid SYNCLANE_SYNC_MAX_RETRIES`)
}

func TestDumpExample(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DumpExample(&buf))
	out := buf.String()

	assert.Contains(t, out, "# stdout, stderr, or a file path\n  output: stderr\n")
	assert.Contains(t, out, `debounce: 5s`)
	assert.Contains(t, out, `# multiplied by the attempt number`)

	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(out), cfg))
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Sync.RateLimits)
	cfg.Sync.RateLimits = nil
	assert.Equal(t, Default(), cfg)
}

func TestDecode_empty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(``), cfg))
	require.Equal(t, Default(), cfg)
}

func TestParseLevel(t *testing.T) {
	for _, tc := range [...]struct {
		in   string
		want logiface.Level
	}{
		{`disabled`, logiface.LevelDisabled},
		{`err`, logiface.LevelError},
		{`info`, logiface.LevelInformational},
		{`trace`, logiface.LevelTrace},
	} {
		got, err := ParseLevel(tc.in)
		if err != nil || got != tc.want {
			t.Error(tc.in, got, err)
		}
	}
	if _, err := ParseLevel(`error`); err == nil {
		t.Error(`expected error`)
	}
}

func TestLogging_NewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), `out.log`)
	logger, closer, err := Logging{Level: `debug`, Output: path}.NewLogger()
	require.NoError(t, err)
	logger.Debug().Str(`channel`, `push`).Log(`hello`)
	logger.Trace().Log(`filtered`)
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"channel":"push"`)
	assert.Contains(t, string(b), `"msg":"hello"`)
	assert.NotContains(t, string(b), `filtered`)

	_, _, err = Logging{Level: `loud`, Output: `stdout`}.NewLogger()
	require.Error(t, err)
}
