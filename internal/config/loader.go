package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures the settings of the calendar sync service.
type Config struct {
	HTTPPort  int             `yaml:"http_port" validate:"min=1,max=65535"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Log       LogConfig       `yaml:"log"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// SQLiteConfig configures the database connection.
type SQLiteConfig struct {
	Path         string        `yaml:"path" validate:"required"`
	BusyTimeout  time.Duration `yaml:"busy_timeout" validate:"min=0"`
	MaxOpenConns int           `yaml:"max_open_conns" validate:"min=1"`
	Migrate      bool          `yaml:"migrate"`
}

// LogConfig selects the root logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// ReconcileConfig tunes calendar synchronization.
type ReconcileConfig struct {
	AsyncSync        bool          `yaml:"async_sync"`
	SyncTimeout      time.Duration `yaml:"sync_timeout" validate:"min=0"`
	ShiftConcurrency int           `yaml:"shift_concurrency" validate:"min=1,max=64"`
	DefaultTimezone  string        `yaml:"default_timezone" validate:"required,timezone"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTPPort: 8080,
		SQLite: SQLiteConfig{
			Path:         "calsync.db",
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 8,
			Migrate:      true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Reconcile: ReconcileConfig{
			AsyncSync:        true,
			SyncTimeout:      30 * time.Second,
			ShiftConcurrency: 4,
			DefaultTimezone:  "UTC",
		},
	}
}

// Load reads configuration in increasing precedence: defaults, the YAML file
// named by CALSYNC_CONFIG_FILE, then CALSYNC_* environment variables. A .env
// file in the working directory is loaded first and never overrides variables
// that are already set.
func Load() (Config, error) {
	return load(".env")
}

func load(dotenvPath string) (Config, error) {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotenvPath, err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CALSYNC_CONFIG_FILE")); path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	env := envReader{}
	env.setInt("CALSYNC_HTTP_PORT", &cfg.HTTPPort)
	env.setString("CALSYNC_SQLITE_PATH", &cfg.SQLite.Path)
	env.setDuration("CALSYNC_SQLITE_BUSY_TIMEOUT", &cfg.SQLite.BusyTimeout)
	env.setInt("CALSYNC_SQLITE_MAX_OPEN_CONNS", &cfg.SQLite.MaxOpenConns)
	env.setBool("CALSYNC_SQLITE_MIGRATE", &cfg.SQLite.Migrate)
	env.setString("CALSYNC_LOG_LEVEL", &cfg.Log.Level)
	env.setString("CALSYNC_LOG_FORMAT", &cfg.Log.Format)
	env.setBool("CALSYNC_SYNC_ASYNC", &cfg.Reconcile.AsyncSync)
	env.setDuration("CALSYNC_SYNC_TIMEOUT", &cfg.Reconcile.SyncTimeout)
	env.setInt("CALSYNC_SHIFT_CONCURRENCY", &cfg.Reconcile.ShiftConcurrency)
	env.setString("CALSYNC_DEFAULT_TIMEZONE", &cfg.Reconcile.DefaultTimezone)

	if len(env.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(env.invalid, ", "))
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks value ranges and reports every offending field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := strings.TrimPrefix(fe.Namespace(), "Config.")
		fields = append(fields, fmt.Sprintf("%s (%s)", name, fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
}

// envReader applies non-empty variables and remembers the malformed ones.
type envReader struct {
	invalid []string
}

func (r *envReader) lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func (r *envReader) setString(key string, dst *string) {
	if value, ok := r.lookup(key); ok {
		*dst = value
	}
}

func (r *envReader) setInt(key string, dst *int) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return
	}
	*dst = n
}

func (r *envReader) setBool(key string, dst *bool) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return
	}
	*dst = b
}

func (r *envReader) setDuration(key string, dst *time.Duration) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return
	}
	*dst = d
}
