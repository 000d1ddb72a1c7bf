package cookbook

import (
	"context"
	"errors"

	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"cookbook/internal/config"
	"cookbook/internal/db"
	"cookbook/internal/db/mock"
	applog "cookbook/internal/log"
)

// Factory builds a Context from the settings file, the environment and
// command-line arguments.
type Factory struct {
	flags   *pflag.FlagSet
	migrate bool

	loadConfig func(path string, flags *pflag.FlagSet) (config.Config, error)
	openDB     func(config.DatabaseConfig, ...db.Option) (*gorm.DB, error)
	openMock   func(context.Context) (*gorm.DB, error)
}

type Option func(*Factory)

// WithFlags reads settings from an already parsed flag set instead of
// parsing the args passed to CreateContext.
func WithFlags(flags *pflag.FlagSet) Option {
	return func(f *Factory) {
		f.flags = flags
	}
}

// WithMigrations applies pending schema migrations before returning a Context.
func WithMigrations(enabled bool) Option {
	return func(f *Factory) {
		f.migrate = enabled
	}
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		loadConfig: config.Load,
		openDB:     db.Initialize,
		openMock:   mock.New,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RegisterFlags adds the flags CreateContext understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "settings file (default ./"+config.DefaultFile+")")
	fs.String("connection", "", "connection string, overrides ConnectionStrings:DefaultConnection")
	fs.String("driver", "", "database driver: postgres or sqlite (inferred when empty)")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("log-format", "", "log format: text or json")
	fs.Bool("log-sql", false, "log every SQL statement")
	fs.Bool("mock", false, "use a seeded in-memory database")
}

func (f *Factory) flagSet(args []string) (*pflag.FlagSet, error) {
	if f.flags != nil {
		return f.flags, nil
	}

	fs := pflag.NewFlagSet("cookbook", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs, nil
}

// CreateContext loads configuration and returns a Context bound to the
// configured database. The store is not contacted unless migrations are
// enabled, so an unreachable server is reported by the first query or save.
func (f *Factory) CreateContext(ctx context.Context, args []string) (*Context, error) {
	cfg, err := f.Config(args)
	if err != nil {
		return nil, err
	}

	if cfg.Database.UseMock {
		database, err := f.openMock(ctx)
		if err != nil {
			return nil, wrap("open mock database", err)
		}
		applog.Info(ctx, "using mock database")
		return newContext(database, func() error { return db.Close(database) })
	}

	database, err := f.openDB(cfg.Database, db.WithSQLEcho(cfg.Logging.SQL))
	if err != nil {
		if errors.Is(err, config.ErrUnsupportedDriver) {
			return nil, &Error{Op: "open database", Kind: ErrConfiguration, Err: err}
		}
		return nil, wrap("open database", err)
	}

	if f.migrate {
		if err := db.Migrate(ctx, database, cfg.Database.Driver); err != nil {
			_ = db.Close(database)
			return nil, wrap("migrate database", err)
		}
	}

	applog.Debug(ctx, "context created", "driver", cfg.Database.Driver, "settings", cfg.File)
	return newContext(database, func() error { return db.Close(database) })
}

// Config resolves the settings CreateContext would use and configures the
// process logger from them.
func (f *Factory) Config(args []string) (config.Config, error) {
	const op = "load configuration"

	flags, err := f.flagSet(args)
	if err != nil {
		return config.Config{}, &Error{Op: op, Kind: ErrConfiguration, Err: err}
	}

	path, _ := flags.GetString("config")
	cfg, err := f.loadConfig(path, flags)
	if err != nil {
		return config.Config{}, &Error{Op: op, Kind: ErrConfiguration, Err: err}
	}

	if err := applog.Configure(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return config.Config{}, &Error{Op: op, Kind: ErrConfiguration, Err: err}
	}
	return cfg, nil
}
