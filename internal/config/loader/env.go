package loader

import (
	"os"
	"strconv"
	"strings"

	"github.com/dshills/prefstore/internal/prefs/merge"
)

// DefaultEnvPrefix is the prefix of recognised environment variables.
const DefaultEnvPrefix = "PREFSTORE_"

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string
	mapping map[string]string // env var -> config path
	environ func() []string
}

// NewEnvLoader creates an environment loader. The prefix includes the
// trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(prefix),
		environ: os.Environ,
	}
}

// NewEnvLoaderFrom creates a loader that reads env instead of the process
// environment. Entries have the form NAME=value.
func NewEnvLoaderFrom(prefix string, env []string) *EnvLoader {
	l := NewEnvLoader(prefix)
	l.environ = func() []string { return env }
	return l
}

// defaultEnvMapping names the variables whose config path cannot be
// derived from the variable name.
func defaultEnvMapping(prefix string) map[string]string {
	return map[string]string{
		prefix + "BACKEND":   "storage.backend",
		prefix + "PATH":      "storage.path",
		prefix + "REDIS_URL": "storage.redisURL",
		prefix + "KEY":       "store.key",
		prefix + "LOG_LEVEL": "logging.level",
	}
}

// AddMapping adds a custom environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	l.mapping[envVar] = configPath
}

// Load reads prefixed variables and returns a configuration map. Empty
// values count as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for _, env := range l.environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}

		path, mapped := l.mapping[name]
		if !mapped {
			path = l.envToPath(name)
		}
		if path == "" {
			continue
		}
		merge.SetByPath(config, path, parseValue(value))
	}

	return config, nil
}

// envToPath converts PREFSTORE_STORE_AUTO_SAVE to store.autoSave.
func (l *EnvLoader) envToPath(env string) string {
	parts := strings.Split(strings.TrimPrefix(env, l.prefix), "_")
	if len(parts) < 2 || parts[0] == "" {
		return ""
	}

	setting := strings.ToLower(parts[1])
	for _, part := range parts[2:] {
		if part != "" {
			setting += strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		}
	}
	return strings.ToLower(parts[0]) + "." + setting
}

// parseValue converts booleans and integers; everything else stays a
// string.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}
