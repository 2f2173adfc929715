package config

import (
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/habit-flywheel/secrets"
	"github.com/zalando/go-keyring"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg Config
	parser, err := kong.New(&cfg, kong.Name("flywheel"))
	require.NoError(t, err)
	_, err = parser.Parse(args)
	return &cfg, err
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite3", cfg.Driver)
	assert.Equal(t, "flywheel.db", cfg.DSN)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Freshness)
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce)
	assert.Equal(t, time.Minute, cfg.RolloverInterval)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestParse_FlagsAndEnv(t *testing.T) {
	t.Setenv("FLYWHEEL_PORT", "9090")
	t.Setenv("FLYWHEEL_DEBOUNCE", "1s")
	t.Setenv("FLYWHEEL_CORS_ORIGINS", "http://a.test,http://b.test")

	cfg, err := parse(t, "--driver=postgres", "--dsn=postgres://app@db/flywheel", "--freshness=10s")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, 10*time.Second, cfg.Freshness)
	assert.Equal(t, time.Second, cfg.Debounce)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestParse_RejectsUnknownDriver(t *testing.T) {
	_, err := parse(t, "--driver=mysql")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{Port: 8080, Driver: "sqlite3", Freshness: time.Second, Debounce: time.Millisecond, RolloverInterval: time.Minute}
	}

	c := valid()
	assert.NoError(t, c.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"driver", func(c *Config) { c.Driver = "mysql" }},
		{"freshness", func(c *Config) { c.Freshness = 0 }},
		{"debounce", func(c *Config) { c.Debounce = -time.Second }},
		{"rollover", func(c *Config) { c.RolloverInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestResolveDSN(t *testing.T) {
	keyring.MockInit()

	c := Config{DSN: "flywheel.db"}
	dsn, err := c.ResolveDSN()
	require.NoError(t, err)
	assert.Equal(t, "flywheel.db", dsn)

	c.DSNFromKeyring = true
	_, err = c.ResolveDSN()
	assert.ErrorIs(t, err, secrets.ErrNotFound)

	require.NoError(t, secrets.SetDSN("postgres://app@db/flywheel"))
	dsn, err = c.ResolveDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@db/flywheel", dsn)
}

func TestLoggerAndAppOptions(t *testing.T) {
	c := Config{LogLevel: "warn", LogDir: "/tmp/x", Debug: true, Freshness: time.Second, Debounce: time.Second}
	lc := c.Logger()
	assert.Equal(t, "warn", lc.Level)
	assert.Equal(t, "/tmp/x", lc.Dir)
	assert.True(t, lc.Debug)
	assert.Len(t, c.AppOptions(), 2)
}
