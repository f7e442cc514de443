package config

import (
	"bytes"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/prefstore/internal/prefs"
	"github.com/dshills/prefstore/internal/prefs/storage"
)

type memFS map[string]string

func (m memFS) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(data), nil
}

func (m memFS) Stat(path string) (fs.FileInfo, error) {
	return nil, fs.ErrNotExist
}

func load(t *testing.T, file string, env ...string) (Config, error) {
	t.Helper()
	return Load(WithFS(memFS{"/etc/prefstore.toml": file}), WithFile("/etc/prefstore.toml"), WithEnv(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(WithFS(memFS{}), WithFile("/absent.toml"), WithEnv(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, prefs.DefaultKey, cfg.Store.Key)
	assert.True(t, cfg.Store.AutoSave)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := load(t, `
[storage]
backend = "sqlite"
path = "/var/lib/prefstore/prefs.db"

[store]
key = "user-7"
`)
	require.NoError(t, err)

	assert.Equal(t, storage.BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/prefstore/prefs.db", cfg.Storage.Path)
	assert.Equal(t, "user-7", cfg.Store.Key)
	assert.True(t, cfg.Store.AutoSave, "settings absent from the file keep their default")
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfg, err := load(t, `
[storage]
backend = "file"
path = "/srv/prefs"
`,
		"PREFSTORE_BACKEND=redis",
		"PREFSTORE_REDIS_URL=redis://cache:6379/2",
		"PREFSTORE_STORE_AUTO_SAVE=false",
		"PREFSTORE_KEY=42",
	)
	require.NoError(t, err)

	assert.Equal(t, storage.BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "redis://cache:6379/2", cfg.Storage.RedisURL)
	assert.Equal(t, "/srv/prefs", cfg.Storage.Path)
	assert.False(t, cfg.Store.AutoSave)
	assert.Equal(t, "42", cfg.Store.Key)

	opts := cfg.StorageOptions()
	assert.Equal(t, storage.Options{Backend: "redis", Path: "/srv/prefs", RedisURL: "redis://cache:6379/2"}, opts)
}

func TestLoad_UnknownSetting(t *testing.T) {
	_, err := load(t, `
[storage]
backend = "memory"
colour = "blue"
`)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "colour")
}

func TestLoad_ParseError(t *testing.T) {
	_, err := load(t, "[storage\n")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		path   string
		rule   string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, "storage.backend", "backend"},
		{"file needs path", func(c *Config) { c.Storage.Backend = "file" }, "storage.path", "required_for_backend"},
		{"sqlite needs path", func(c *Config) { c.Storage.Backend = "sqlite" }, "storage.path", "required_for_backend"},
		{"redis needs url", func(c *Config) { c.Storage.Backend = "redis" }, "storage.redisURL", "required_for_backend"},
		{"bad url", func(c *Config) { c.Storage.RedisURL = "not a url" }, "storage.redisURL", "url"},
		{"empty key", func(c *Config) { c.Store.Key = "" }, "store.key", "required"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level", "oneof"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format", "oneof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := Validate(cfg)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			require.Len(t, verr.Errors, 1)
			assert.Equal(t, tt.path, verr.Errors[0].Path)
			assert.Equal(t, tt.rule, verr.Errors[0].Rule)
		})
	}
}

func TestValidate_Default(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	log.Info("hidden")
	log.Warn("shown", "at", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	NewLogger(LoggingConfig{Level: "debug", Format: "text"}, &buf).Debug("details")
	assert.Contains(t, buf.String(), "msg=details")
}
