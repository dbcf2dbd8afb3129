package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodlens/quotagate/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	_, err = tmpfile.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	return tmpfile.Name()
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9191
  host: "127.0.0.1"

quota:
  store: redis
  failOpen: true
  policies:
    - quotaType: scan
      tier: free
      limit: 5
      period: 24h
    - quotaType: scan
      tier: premium
      limit: -1
  benefits:
    scan:
      - "Unlimited food scans"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "redis", cfg.Quota.Store)
	assert.True(t, cfg.Quota.FailOpen)

	rows := cfg.Quota.PolicyRows()
	require.Len(t, rows, 2)
	assert.Equal(t, models.QuotaTypeScan, rows[0].QuotaType)
	assert.Equal(t, models.TierFree, rows[0].Tier)
	assert.Equal(t, int64(5), rows[0].Limit)
	assert.Equal(t, 24*time.Hour, rows[0].PeriodLength)
	assert.True(t, rows[1].Unlimited())

	benefits := cfg.Quota.BenefitOverrides()
	assert.Equal(t, []string{"Unlimited food scans"}, benefits[models.QuotaTypeScan])
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8081\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Quota.Store)
	assert.False(t, cfg.Quota.FailOpen)
	assert.Equal(t, 10*time.Minute, cfg.Quota.JanitorInterval)
	assert.Equal(t, 720*time.Hour, cfg.Quota.Retention)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Empty(t, cfg.Quota.Policies)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db", Port: 5432, User: "app", Password: "secret",
		DBName: "quotagate", SSLMode: "disable", MaxConns: 10, MinConns: 2,
	}

	assert.Equal(t,
		"host=db port=5432 user=app password=secret dbname=quotagate sslmode=disable pool_max_conns=10 pool_min_conns=2",
		cfg.DSN(),
	)
}
