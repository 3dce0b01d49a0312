package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencollective/odoo-web3/pkg/chain"
)

var envKeys = []string{
	"ODOO_URL", "ODOO_DB", "ODOO_USERNAME", "ODOO_PASSWORD",
	"EXPLORER_API_URL", "EXPLORER_API_KEY", "EXPLORER_CHAIN_ID", "EXPLORER_MIN_DELAY", "EXPLORER_PAGE_SIZE",
	"DATA_ROOT", "DB_PATH", "MIRROR_ROOT", "MIRROR_ACCOUNTS_FILE", "TARGETS_FILE", "OFFLINE_LEDGER", "DEBUG",
}

// clearEnv unsets every configuration key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.Explorer.ChainID)
	assert.Equal(t, 1000, cfg.Explorer.PageSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Explorer.MinDelay)
	assert.Equal(t, "./data", cfg.Paths.DataRoot)
	assert.False(t, cfg.Debug)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("ODOO_URL", "https://erp.example.com/")
	os.Setenv("ODOO_DB", "prod")
	os.Setenv("EXPLORER_CHAIN_ID", "100")
	os.Setenv("EXPLORER_MIN_DELAY", "500")
	os.Setenv("EXPLORER_PAGE_SIZE", "50")
	os.Setenv("DEBUG", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://erp.example.com", cfg.Odoo.URL)
	assert.Equal(t, "prod", cfg.Odoo.Database)
	assert.Equal(t, int64(100), cfg.Explorer.ChainID)
	assert.Equal(t, 500*time.Millisecond, cfg.Explorer.MinDelay)
	assert.Equal(t, 50, cfg.Explorer.PageSize)
	assert.True(t, cfg.Debug)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ODOO_USERNAME=bot\nEXPLORER_MIN_DELAY=1s\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bot", cfg.Odoo.Username)
	assert.Equal(t, time.Second, cfg.Explorer.MinDelay)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"EXPLORER_CHAIN_ID", "mainnet"},
		{"EXPLORER_PAGE_SIZE", "lots"},
		{"EXPLORER_MIN_DELAY", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			os.Setenv(tt.key, tt.value)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Odoo: OdooConfig{URL: "https://erp.example.com", Database: "prod"}}

	err := cfg.Validate(cfg.OdooRequired()...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odoo.username")
	assert.Contains(t, err.Error(), "odoo.password")
	assert.NotContains(t, err.Error(), "odoo.url")

	cfg.Odoo.Username = "bot"
	cfg.Odoo.Password = "secret"
	assert.NoError(t, cfg.Validate(cfg.OdooRequired()...))

	offline := &Config{Paths: PathsConfig{OfflineLedger: "ledger.db"}}
	assert.Empty(t, offline.OdooRequired())
	assert.NoError(t, offline.Validate(offline.OdooRequired()...))

	assert.Error(t, cfg.Validate([]string{"explorer", "chainId"}))
	cfg.Explorer.ChainID = 1
	assert.NoError(t, cfg.Validate([]string{"explorer", "chainId"}))
}

func TestLoadTargets(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	valid := write("targets.yaml", `
targets:
  - wallet: "0x1111111111111111111111111111111111111111"
    token: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
    symbol: USDC
    journal_id: 7
    start_block: 19000000
  - wallet: "0x1111111111111111111111111111111111111111"
    token: "0x6b175474e89094c44da98b954eedeac495271d0f"
    symbol: DAI
`)

	targets, err := LoadTargets(valid)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, int64(7), targets[0].JournalID)
	assert.Equal(t, int64(19000000), targets[0].StartBlock)
	assert.Equal(t, "DAI", targets[1].Symbol)
	assert.Zero(t, targets[1].JournalID)

	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"empty", "targets: []\n", ErrNoTargets},
		{"bad wallet", "targets:\n  - {wallet: nope, token: \"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48\", symbol: USDC}\n", chain.ErrInvalidAddress},
		{"bad yaml", "targets: [\n", nil},
		{"no symbol", "targets:\n  - {wallet: \"0x1111111111111111111111111111111111111111\", token: \"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48\"}\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTargets(write(tt.name+".yaml", tt.content))
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}
