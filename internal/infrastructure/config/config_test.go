package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "receivables", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Dunning.MinDaysOverdue)
	assert.InDelta(t, 5.00, cfg.Dunning.MinOpenAmount, 0.001)
	assert.Equal(t, "0 6 * * *", cfg.Scheduler.CronSchedule)
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	assert.Equal(t, 60*time.Second, cfg.Telemetry.ExportInterval)
	assert.Empty(t, cfg.HTTP.CORSAllowOrigins)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RCV_DATABASE_HOST", "db.internal")
	t.Setenv("RCV_DUNNING_MIN_DAYS_OVERDUE", "14")
	t.Setenv("RCV_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 14, cfg.Dunning.MinDaysOverdue)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RCV_APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestLoad_ProductionValid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RCV_APP_ENV", "production")
	t.Setenv("RCV_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("RCV_DATABASE_PASSWORD", "secret")
	t.Setenv("RCV_DATABASE_SSLMODE", "require")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Env)
}

func TestValidate_IdleExceedsOpen(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Database.MaxIdleConns = 50

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_idle_conns")
}

func TestValidate_SamplingRatioRange(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Telemetry.SamplingRatio = 1.5

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampling_ratio")
}

func TestDatabaseDSN_EscapesCredentials(t *testing.T) {
	d := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "app user",
		Password: "p@ss/word",
		DBName:   "receivables",
		SSLMode:  "disable",
	}

	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "app%20user")
	assert.NotContains(t, dsn, "p@ss/word")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6379}
	assert.Equal(t, "cache:6379", r.Addr())
}
