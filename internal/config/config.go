// Package config loads the CLI host configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultDataDirName  = "tearleads"
	defaultDatabaseName = "workspace"
	defaultLogLevel     = "info"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Engine   EngineConfig   `toml:"engine"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	// Name is the logical database name, used as the on-disk file name.
	Name string `toml:"name"`
	// Dir is where the sealed container lives.
	Dir string `toml:"dir"`
	// KeyFile is the hex keyfile consumed by the keyring.
	KeyFile string `toml:"key_file"`
	// SkipEncryption opens the database without a sealed container.
	SkipEncryption bool `toml:"skip_encryption"`
}

type EngineConfig struct {
	// BundleDir holds the engine descriptor and binary asset.
	BundleDir string `toml:"bundle_dir"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

func DefaultConfig() Config {
	dataDir := defaultDataDir()
	return Config{
		Database: DatabaseConfig{
			Name:    defaultDatabaseName,
			Dir:     dataDir,
			KeyFile: filepath.Join(dataDir, "db.key"),
		},
		Engine: EngineConfig{
			BundleDir: filepath.Join(dataDir, "engine"),
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// Load reads the config file at path, overlaying it onto the defaults.
// A missing file is not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Database.Name == "" {
		return fmt.Errorf("%w: database.name must not be empty", ErrInvalidConfig)
	}
	if c.Database.Dir == "" {
		return fmt.Errorf("%w: database.dir must not be empty", ErrInvalidConfig)
	}
	if !c.Database.SkipEncryption && c.Database.KeyFile == "" {
		return fmt.Errorf("%w: database.key_file is required unless skip_encryption is set", ErrInvalidConfig)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return defaultDataDirName
	}
	return filepath.Join(base, defaultDataDirName)
}
