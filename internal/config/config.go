package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory
const FileName = "cplcconv.json"

// Config is the typed view of the loaded settings
type Config struct {
	Library   string       `json:"library" mapstructure:"library"`
	CodePage  int          `json:"codePage" mapstructure:"codePage"`
	LogLevel  string       `json:"logLevel" mapstructure:"logLevel"`
	LogFormat string       `json:"logFormat" mapstructure:"logFormat"`
	Export    ExportConfig `json:"export" mapstructure:"export"`
	Dump      DumpConfig   `json:"dump" mapstructure:"dump"`
}

// ExportConfig holds SQLite export settings
type ExportConfig struct {
	DB string `json:"db" mapstructure:"db"`
}

// DumpConfig holds report output settings
type DumpConfig struct {
	Format string `json:"format" mapstructure:"format"`
}

// SetDefaults registers the default value of every key
func SetDefaults() {
	viper.SetDefault("library", "Creature.klb")
	viper.SetDefault("codePage", 65001)
	viper.SetDefault("logLevel", "warn")
	viper.SetDefault("logFormat", "console")
	viper.SetDefault("export.db", "cplc.db")
	viper.SetDefault("dump.format", "tree")
}

// Load sets default values, then reads the optional config file from
// configDir and CPLCCONV_* environment variables. A missing config file
// is not an error.
func Load(configDir string) error {
	SetDefaults()

	viper.SetEnvPrefix("cplcconv")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Resolved on every call: viper caches a config path once it has found one
	path := filepath.Join(configDir, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	viper.SetConfigFile(path)
	viper.SetConfigType("json")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// Get returns the current settings
func Get() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
