// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Inventory Backend", cfg.App.Name)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "inventory_db", cfg.Database.Name)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 3, cfg.Inventory.TxMaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Inventory.TransferLockTTL)
	assert.Equal(t, 10, cfg.Inventory.LowStockThreshold)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_NAME", "warehouse_db")
	t.Setenv("INVENTORY_TX_MAX_RETRIES", "5")
	t.Setenv("INVENTORY_TRANSFER_LOCK_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "warehouse_db", cfg.Database.Name)
	assert.Equal(t, 5, cfg.Inventory.TxMaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Inventory.TransferLockTTL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "")
	t.Setenv("INVENTORY_TX_MAX_RETRIES", "0")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVENTORY_TX_MAX_RETRIES")
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	dsn := cfg.GetDatabaseDSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=inventory_db")
	assert.Contains(t, dsn, "sslmode=disable")

	assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
}
