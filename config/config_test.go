package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradecopier/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app_config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `{
  "client_account": {"account_number": 5001},
  "lot_config": {"mode": "fixed", "value": 0.02}
}`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, int64(5001), cfg.ClientAccount.AccountNumber)
	assert.InDelta(t, 0.02, cfg.Lot.Value, 1e-9)
	assert.InDelta(t, 0.01, cfg.Lot.MinLot, 1e-9)
	assert.InDelta(t, 100.0, cfg.Lot.MaxLot, 1e-9)
	assert.Equal(t, 10, cfg.Order.MaxRetries)
	assert.Equal(t, int64(777), cfg.Order.Magic)
	assert.Equal(t, 2, cfg.Order.LimitOffsetPoints)
	assert.Equal(t, "by_limits", cfg.CopyStyle)
	assert.Equal(t, "sync_state.json", cfg.Storage.StateFile)
	assert.Equal(t, "copier.db", cfg.Storage.JournalDSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_CheckIntervalDuration(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `{
	  "client_account": {"account_number": 5001},
	  "lot_config": {"mode": "fixed", "value": 0.01},
	  "check_interval": 0.25
	}`))
	require.NoError(t, err)
	assert.Equal(t, "250ms", cfg.CheckIntervalDuration().String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("COPIER_STATE_FILE", "/var/lib/copier/state.json")
	t.Setenv("METRICS_ADDR", ":9102")

	cfg, err := config.Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/lib/copier/state.json", cfg.Storage.StateFile)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
}

func TestLoad_RejectsBadLotMode(t *testing.T) {
	_, err := config.Load(writeConfig(t, `{
	  "client_account": {"account_number": 5001},
	  "lot_config": {"mode": "martingale", "value": 0.01}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lot_config.mode")
}

func TestLoad_RejectsBadCopyStyle(t *testing.T) {
	_, err := config.Load(writeConfig(t, `{
	  "client_account": {"account_number": 5001},
	  "lot_config": {"mode": "fixed", "value": 0.01},
	  "copy_style": "by_magic"
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy_style")
}

func TestLoad_RejectsMissingAccount(t *testing.T) {
	_, err := config.Load(writeConfig(t, `{
	  "lot_config": {"mode": "fixed", "value": 0.01}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_number")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoad_BadJSON(t *testing.T) {
	_, err := config.Load(writeConfig(t, "{not json"))
	assert.Error(t, err)
}
