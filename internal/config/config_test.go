package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LEDGERCORE_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Database.Path)
	require.Equal(t, "internal/database/migrations", cfg.Database.MigrationsPath)
	require.Equal(t, 500, cfg.Rules.WindowSize)
	require.Equal(t, 500, cfg.Validation.MemoMaxLength)
	require.Equal(t, "$", cfg.UI.CurrencySymbol)
	require.Equal(t, "UTC", cfg.UI.Timezone)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("LEDGERCORE_CONFIG", path)

	in := Config{}
	in.Database.Path = "/tmp/ledger-test.db"
	in.Database.MigrationsPath = "migrations"
	in.Rules.WindowSize = 100
	in.Validation.MemoMaxLength = 120
	in.UI.CurrencySymbol = "€"
	in.UI.Timezone = "Australia/Melbourne"
	require.NoError(t, Save(in))

	out, err := Load()
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LEDGERCORE_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("LEDGERCORE_RULES_WINDOW_SIZE", "50")
	t.Setenv("LEDGERCORE_DATABASE_PATH", "/tmp/env-override.db")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Rules.WindowSize)
	require.Equal(t, "/tmp/env-override.db", cfg.Database.Path)
}
