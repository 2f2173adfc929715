// Package config holds the server configuration. Fields are parsed by kong
// from flags, with FLYWHEEL_* environment variables as overrides of the
// defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/warp/habit-flywheel/app"
	"github.com/warp/habit-flywheel/logger"
	"github.com/warp/habit-flywheel/secrets"
	"github.com/warp/habit-flywheel/store/sqldb"
)

// Config is embedded into the serve command.
type Config struct {
	Port int `help:"HTTP server port." default:"8080" env:"FLYWHEEL_PORT"`

	Driver         string `help:"Database driver: sqlite3 or postgres." default:"sqlite3" enum:"sqlite3,postgres" env:"FLYWHEEL_DB_DRIVER"`
	DSN            string `help:"Database path (sqlite3) or connection string (postgres)." default:"flywheel.db" env:"FLYWHEEL_DSN"`
	DSNFromKeyring bool   `name:"dsn-from-keyring" help:"Read the DSN from the OS keyring instead of --dsn." env:"FLYWHEEL_DSN_FROM_KEYRING"`

	LogLevel string `help:"Log level: debug, info, warn, error." default:"info" env:"FLYWHEEL_LOG_LEVEL"`
	LogDir   string `help:"Directory for the rotating log file. Empty logs to stderr only." env:"FLYWHEEL_LOG_DIR"`
	Debug    bool   `help:"Debug logging with caller info." env:"FLYWHEEL_DEBUG"`

	Freshness        time.Duration `help:"How long a loaded snapshot is served without reloading." default:"5s" env:"FLYWHEEL_FRESHNESS"`
	Debounce         time.Duration `help:"Coalescing window of reloads after writes." default:"300ms" env:"FLYWHEEL_DEBOUNCE"`
	RolloverInterval time.Duration `help:"How often to check for a new local day." default:"1m" env:"FLYWHEEL_ROLLOVER_INTERVAL"`

	CORSOrigins []string `name:"cors-origin" help:"Allowed CORS origins." env:"FLYWHEEL_CORS_ORIGINS"`
}

// Validate rejects settings the server cannot run with. kong calls it after
// parsing.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Driver != sqldb.DriverSQLite && c.Driver != sqldb.DriverPostgres {
		errs = append(errs, fmt.Errorf("unsupported driver %q", c.Driver))
	}
	if c.Freshness <= 0 {
		errs = append(errs, errors.New("freshness must be positive"))
	}
	if c.Debounce <= 0 {
		errs = append(errs, errors.New("debounce must be positive"))
	}
	if c.RolloverInterval <= 0 {
		errs = append(errs, errors.New("rollover interval must be positive"))
	}
	return errors.Join(errs...)
}

// Logger returns the logger settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{Level: c.LogLevel, Dir: c.LogDir, Debug: c.Debug}
}

// AppOptions returns the facade options for the cache windows.
func (c *Config) AppOptions() []app.Option {
	return []app.Option{
		app.WithFreshness(c.Freshness),
		app.WithDebounce(c.Debounce),
	}
}

// ResolveDSN returns the DSN, reading it from the OS keyring when asked to.
func (c *Config) ResolveDSN() (string, error) {
	if !c.DSNFromKeyring {
		return c.DSN, nil
	}
	dsn, err := secrets.GetDSN()
	if err != nil {
		return "", fmt.Errorf("reading dsn from keyring: %w", err)
	}
	return dsn, nil
}
