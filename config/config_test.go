package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "streak-hub", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "valera_challenge", cfg.Store.Prefix)
	assert.Equal(t, 100, cfg.Store.EventCapacity)
	assert.Equal(t, 30*time.Second, cfg.Presence.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.Presence.OnlineThreshold)
	assert.Equal(t, "Валера", cfg.Gate.Secret)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORE_DATABASE_URL", "postgres://u:p@db:5432/streaks")
	t.Setenv("STORE_PREFIX", "team")
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "1m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://u:p@db:5432/streaks", cfg.Store.DatabaseURL)
	assert.Equal(t, "team", cfg.Store.Prefix)
	assert.Equal(t, time.Minute, cfg.Presence.SweepInterval)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("PRESENCE_SWEEP_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "etcd" }, "STORE_DRIVER"},
		{"postgres without url", func(c *Config) { c.Store.Driver = DriverPostgres }, "STORE_DATABASE_URL"},
		{"memory in production", func(c *Config) {
			c.App.Environment = EnvProduction
			c.Store.Driver = DriverMemory
		}, "not allowed in production"},
		{"redis db out of range", func(c *Config) {
			c.Store.Driver = DriverRedis
			c.Store.RedisDB = 20
		}, "STORE_REDIS_DB"},
		{"zero sweep", func(c *Config) { c.Presence.SweepInterval = 0 }, "PRESENCE_SWEEP_INTERVAL"},
		{"no secret", func(c *Config) { c.Gate.Secret = "" }, "GATE_SECRET"},
		{"bad env", func(c *Config) { c.App.Environment = "qa" }, "APP_ENV"},
		{"empty capacity", func(c *Config) { c.Store.EventCapacity = 0 }, "STORE_EVENT_CAPACITY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
