package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradecopier/config"
)

func writeDonors(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "donors_config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDonors_MixedRoster(t *testing.T) {
	cfg, err := config.LoadDonors(writeDonors(t, `{
	  "donors": [
	    {"id": "alpha", "type": "python_api", "account_number": 9001,
	     "terminal_path": "C:/mt5/terminal64.exe"},
	    {"id": "bravo", "type": "socket_mt4", "account_number": 9002, "port": 5555},
	    {"id": "charlie", "type": "socket_mt5", "account_number": 9003,
	     "host": "10.0.0.5", "port": 5556}
	  ]
	}`))
	require.NoError(t, err)
	require.Len(t, cfg.Donors, 3)

	// un donante por socket sin host cae a localhost
	assert.Equal(t, "localhost:5555", cfg.Donors[1].Addr())
	assert.Equal(t, "10.0.0.5:5556", cfg.Donors[2].Addr())
}

func TestLoadDonors_EmptyRoster(t *testing.T) {
	_, err := config.LoadDonors(writeDonors(t, `{"donors": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no donors")
}

func TestLoadDonors_DuplicateID(t *testing.T) {
	_, err := config.LoadDonors(writeDonors(t, `{
	  "donors": [
	    {"id": "alpha", "type": "socket_mt5", "account_number": 9001, "port": 5555},
	    {"id": "alpha", "type": "socket_mt5", "account_number": 9002, "port": 5556}
	  ]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate donor id")
}

func TestLoadDonors_SocketNeedsPort(t *testing.T) {
	_, err := config.LoadDonors(writeDonors(t, `{
	  "donors": [{"id": "alpha", "type": "socket_mt4", "account_number": 9001}]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no port")
}

func TestLoadDonors_UnknownType(t *testing.T) {
	_, err := config.LoadDonors(writeDonors(t, `{
	  "donors": [{"id": "alpha", "type": "fix_bridge", "account_number": 9001}]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestLoadDonors_MissingAccount(t *testing.T) {
	_, err := config.LoadDonors(writeDonors(t, `{
	  "donors": [{"id": "alpha", "type": "python_api"}]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_number")
}
