package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	// DefaultFile is read from the working directory when no path is given.
	DefaultFile = "appsettings.json"

	// EnvPrefix marks environment overrides. Nested keys use a double
	// underscore: COOKBOOK_CONNECTIONSTRINGS__DEFAULTCONNECTION.
	EnvPrefix = "COOKBOOK_"

	delim = ":"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrMissingConnectionString = errors.New("ConnectionStrings:DefaultConnection is not set")
	ErrUnsupportedDriver       = errors.New("unsupported database driver")
	ErrFileNotFound            = errors.New("settings file not found")
)

// Config captures the runtime configuration for the application.
type Config struct {
	ConnectionStrings ConnectionStrings `koanf:"ConnectionStrings"`
	Database          DatabaseConfig    `koanf:"Database"`
	Logging           LoggingConfig     `koanf:"Logging"`

	// File is the settings file that was read, empty when none was found.
	File string `koanf:"-"`
}

type ConnectionStrings struct {
	DefaultConnection string `koanf:"DefaultConnection"`
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"-"`
	Driver          string        `koanf:"Driver"`
	MaxIdleConns    int           `koanf:"MaxIdleConns"`
	MaxOpenConns    int           `koanf:"MaxOpenConns"`
	ConnMaxLifetime time.Duration `koanf:"ConnMaxLifetime"`
	ConnMaxIdleTime time.Duration `koanf:"ConnMaxIdleTime"`
	UseMock         bool          `koanf:"UseMock"`
}

type LoggingConfig struct {
	Level  string `koanf:"Level"`
	Format string `koanf:"Format"`
	SQL    bool   `koanf:"SQL"`
}

// keys lists every setting Load understands, in canonical casing. Environment
// variables and flags are matched against it case-insensitively.
var keys = []string{
	"ConnectionStrings:DefaultConnection",
	"Database:Driver",
	"Database:MaxIdleConns",
	"Database:MaxOpenConns",
	"Database:ConnMaxLifetime",
	"Database:ConnMaxIdleTime",
	"Database:UseMock",
	"Logging:Level",
	"Logging:Format",
	"Logging:SQL",
}

// flagKeys binds CLI flag names to settings keys.
var flagKeys = map[string]string{
	"connection": "ConnectionStrings:DefaultConnection",
	"driver":     "Database:Driver",
	"mock":       "Database:UseMock",
	"log-level":  "Logging:Level",
	"log-format": "Logging:Format",
	"log-sql":    "Logging:SQL",
}

// Load builds a Config from defaults, the settings file, COOKBOOK_*
// environment variables and explicitly set flags, in increasing precedence.
// An explicit path must exist; the default file is optional.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(delim)

	if err := k.Load(confmap.Provider(map[string]any{
		"Logging:Level":  "info",
		"Logging:Format": "text",
		"Logging:SQL":    false,
	}, delim), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	settingsFile, err := resolveFile(path)
	if err != nil {
		return Config{}, err
	}
	if settingsFile != "" {
		if err := k.Load(file.Provider(settingsFile), json.Parser()); err != nil {
			return Config{}, fmt.Errorf("read settings file %s: %w", settingsFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, delim, envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, delim, k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode settings: %w", err)
	}
	cfg.File = settingsFile

	cfg.Database.URL = firstNonEmpty(
		cfg.ConnectionStrings.DefaultConnection,
		os.Getenv("DATABASE_URL"),
		os.Getenv("DB_URL"),
	)

	if cfg.Database.UseMock {
		return cfg, nil
	}

	if strings.TrimSpace(cfg.Database.URL) == "" {
		return Config{}, ErrMissingConnectionString
	}

	driver, err := cfg.Database.ResolveDriver()
	if err != nil {
		return Config{}, err
	}
	cfg.Database.Driver = driver

	return cfg, nil
}

// ResolveDriver normalizes Driver, inferring it from the connection string
// when it is empty.
func (c DatabaseConfig) ResolveDriver() (string, error) {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver)
	}

	url := strings.TrimSpace(c.URL)
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres, nil
	case strings.Contains(lower, "host=") || strings.Contains(lower, "dbname="):
		return DriverPostgres, nil
	case strings.HasPrefix(lower, "file:"), lower == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return DriverSQLite, nil
	}

	return "", fmt.Errorf("%w: cannot infer driver from connection string, set Database:Driver", ErrUnsupportedDriver)
}

func resolveFile(path string) (string, error) {
	if explicit := strings.TrimSpace(path); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, explicit)
		}
		return explicit, nil
	}

	candidate := firstNonEmpty(os.Getenv(EnvPrefix+"CONFIG"), DefaultFile)
	if _, err := os.Stat(candidate); err != nil {
		if candidate != DefaultFile {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, candidate)
		}
		return "", nil
	}
	return candidate, nil
}

func envKey(name string) string {
	key := strings.ReplaceAll(strings.TrimPrefix(name, EnvPrefix), "__", delim)
	return canonicalKey(key)
}

func canonicalKey(key string) string {
	for _, known := range keys {
		if strings.EqualFold(known, key) {
			return known
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
