package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds library configuration supplied by the embedding host.
type Config struct {
	Database   DatabaseConfig
	Rules      RulesConfig
	Validation ValidationConfig
	UI         UIConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// RulesConfig bounds the auto-rule engine.
type RulesConfig struct {
	WindowSize int `mapstructure:"window_size"`
}

// ValidationConfig holds user-input limits.
type ValidationConfig struct {
	MemoMaxLength int `mapstructure:"memo_max_length"`
}

// UIConfig holds presentation settings the host shares with the core.
type UIConfig struct {
	CurrencySymbol string `mapstructure:"currency_symbol"`
	Timezone       string `mapstructure:"timezone"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// LEDGERCORE_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "ledgercore", "ledger.db"))
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("rules.window_size", 500)
	v.SetDefault("validation.memo_max_length", 500)
	v.SetDefault("ui.currency_symbol", "$")
	v.SetDefault("ui.timezone", "UTC")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEDGERCORE_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledgercore"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERCORE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if
// needed. Used by the host's settings screen for non-sensitive preferences.
func Save(cfg Config) error {
	path := os.Getenv("LEDGERCORE_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "ledgercore", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.migrations_path", cfg.Database.MigrationsPath)
	v.Set("rules.window_size", cfg.Rules.WindowSize)
	v.Set("validation.memo_max_length", cfg.Validation.MemoMaxLength)
	v.Set("ui.currency_symbol", cfg.UI.CurrencySymbol)
	v.Set("ui.timezone", cfg.UI.Timezone)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
