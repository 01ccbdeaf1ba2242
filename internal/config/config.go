package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Display  DisplayConfig  `toml:"display"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"` // debug | info | warn | error
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the logfmt file written in dev mode.
type DevFileConfig struct {
	Enabled bool `toml:"enabled"`
	// Dir defaults to a logs directory next to the database when empty.
	Dir string `toml:"dir"`
}

type LedgerConfig struct {
	AutoCreateNodes bool `toml:"auto_create_nodes"`
}

type DisplayConfig struct {
	TimeZone      string `toml:"time_zone"`
	RelativeTimes bool   `toml:"relative_times"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
			},
		},
		Ledger: LedgerConfig{
			AutoCreateNodes: true,
		},
		Display: DisplayConfig{
			TimeZone:      "Local",
			RelativeTimes: true,
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	zone := strings.TrimSpace(c.Display.TimeZone)
	if zone != "" && !strings.EqualFold(zone, "local") {
		if _, err := time.LoadLocation(zone); err != nil {
			return fmt.Errorf("invalid display.time_zone: %q", c.Display.TimeZone)
		}
	}
	return nil
}

// Encode renders cfg as TOML, suitable for writing a starter config file.
func (c Config) Encode() ([]byte, error) {
	out, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode toml: %w", err)
	}
	return out, nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
