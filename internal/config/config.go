// Package config loads the configuration of prefstore hosts such as
// prefsctl.
//
// Sources are layered, later ones overriding earlier ones:
//
//  1. built-in defaults
//  2. a TOML file (optional)
//  3. PREFSTORE_ environment variables
//
// The merged result is decoded strictly, so unknown settings are errors,
// and then checked with struct validation rules.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/prefstore/internal/config/loader"
	"github.com/dshills/prefstore/internal/prefs"
	"github.com/dshills/prefstore/internal/prefs/merge"
	"github.com/dshills/prefstore/internal/prefs/storage"
)

// ErrInvalidConfig is matched by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the host configuration.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Store   StoreConfig   `toml:"store"`
	Logging LoggingConfig `toml:"logging"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend  string `toml:"backend" validate:"backend"`
	Path     string `toml:"path"`
	RedisURL string `toml:"redisURL" validate:"omitempty,url"`
	Prefix   string `toml:"prefix" validate:"max=64"`
}

// StoreConfig configures the preference store.
type StoreConfig struct {
	Key      string `toml:"key" validate:"required,max=200"`
	AutoSave bool   `toml:"autoSave"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration: in-memory storage, the
// default key, auto-save on, text logs at info.
func Default() Config {
	return Config{
		Storage: StorageConfig{Backend: storage.BackendMemory},
		Store:   StoreConfig{Key: prefs.DefaultKey, AutoSave: true},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// StorageOptions returns the options storage.Open takes.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:  c.Storage.Backend,
		Path:     c.Storage.Path,
		RedisURL: c.Storage.RedisURL,
		Prefix:   c.Storage.Prefix,
	}
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	path string
	fs   loader.FileSystem
	env  *loader.EnvLoader
}

// WithFile reads the given TOML file. A missing file is not an error.
func WithFile(path string) Option {
	return func(o *loadOptions) {
		o.path = path
	}
}

// WithFS reads the TOML file from fsys.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *loadOptions) {
		o.fs = fsys
	}
}

// WithEnv reads overrides from env instead of the process environment.
func WithEnv(env []string) Option {
	return func(o *loadOptions) {
		o.env = loader.NewEnvLoaderFrom(loader.DefaultEnvPrefix, env)
	}
}

// Load builds the configuration from its sources and validates it.
func Load(opts ...Option) (Config, error) {
	o := loadOptions{
		fs:  loader.DefaultFS(),
		env: loader.NewEnvLoader(loader.DefaultEnvPrefix),
	}
	for _, opt := range opts {
		opt(&o)
	}

	merged, err := toMap(Default())
	if err != nil {
		return Config{}, err
	}

	sources := []struct {
		name string
		l    loader.Loader
	}{
		{"file", loader.NewTOMLLoaderWithFS(o.fs, o.path)},
		{"environment", o.env},
	}
	for _, src := range sources {
		layer, err := src.l.Load()
		if err != nil {
			return Config{}, fmt.Errorf("%w: loading %s: %w", ErrInvalidConfig, src.name, err)
		}
		merged = merge.DeepMerge(merged, layer)
	}

	cfg, err := decode(merged)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// stringSettings are coerced to strings before decoding, since an
// environment value such as PREFSTORE_KEY=42 parses as a number.
var stringSettings = []string{
	"storage.backend", "storage.path", "storage.redisURL", "storage.prefix",
	"store.key", "logging.level", "logging.format",
}

func decode(m map[string]any) (Config, error) {
	for _, path := range stringSettings {
		if v, ok := merge.GetByPath(m, path); ok {
			if _, isString := v.(string); !isString {
				merge.SetByPath(m, path, fmt.Sprint(v))
			}
		}
	}

	data, err := toml.Marshal(m)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w: unknown setting: %s", ErrInvalidConfig, strings.TrimSpace(strict.String()))
		}
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func toMap(c Config) (map[string]any, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding defaults: %w", err)
	}
	return m, nil
}

// FieldError is one failed rule.
type FieldError struct {
	// Path is the setting path, e.g. "storage.path".
	Path string
	// Rule is the failed validation tag.
	Rule string
	// Value is the rejected value.
	Value any
}

// ValidationError lists every rule a configuration breaks.
type ValidationError struct {
	Errors []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fmt.Sprintf("%s: failed %q (value %v)", fe.Path, fe.Rule, fe.Value)
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrInvalidConfig.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		return name
	})
	_ = v.RegisterValidation("backend", validateBackend)
	v.RegisterStructValidation(validateStorage, StorageConfig{})
	return v
}

func validateBackend(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "", storage.BackendMemory, storage.BackendFile, storage.BackendBadger, storage.BackendSQLite, storage.BackendRedis:
		return true
	}
	return false
}

// validateStorage requires the location setting each backend needs.
func validateStorage(sl validator.StructLevel) {
	c := sl.Current().Interface().(StorageConfig)
	switch strings.ToLower(c.Backend) {
	case storage.BackendFile, storage.BackendBadger, storage.BackendSQLite:
		if c.Path == "" {
			sl.ReportError(c.Path, "path", "Path", "required_for_backend", c.Backend)
		}
	case storage.BackendRedis:
		if c.RedisURL == "" {
			sl.ReportError(c.RedisURL, "redisURL", "RedisURL", "required_for_backend", c.Backend)
		}
	}
}

// Validate checks c against the configuration rules.
func Validate(c Config) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		out.Errors = append(out.Errors, FieldError{Path: path, Rule: fe.Tag(), Value: fe.Value()})
	}
	return out
}
