package kernel

import (
	"fmt"
	"log/slog"
	"os"

	abi "github.com/wnxd/microdbg-abi"
	"gopkg.in/yaml.v3"
)

// Config tunes the simulated kernel.
type Config struct {
	// FirstHandle is the first id handed out. It must not fall inside
	// the reserved error window.
	FirstHandle uint32 `yaml:"first_handle"`

	// MaxHandles bounds the number of live handles across all tasks.
	MaxHandles int `yaml:"max_handles"`

	// MinFreeMemory makes allocations fail with ERR_NO_MEMORY while the
	// host has less available memory than this many bytes. Zero disables
	// the check.
	MinFreeMemory uint64 `yaml:"min_free_memory"`

	LogLevel string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		FirstHandle: 0x100,
		MaxHandles:  4096,
		LogLevel:    "info",
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.FirstHandle < uint32(abi.Reserved) {
		return fmt.Errorf("first_handle %#x overlaps the reserved window [1, %d): %w", cfg.FirstHandle, abi.Reserved, abi.ERR_INVALID_ARG)
	}
	if cfg.MaxHandles <= 0 {
		return fmt.Errorf("max_handles must be positive, got %d: %w", cfg.MaxHandles, abi.ERR_INVALID_ARG)
	}
	if _, err := cfg.Level(); err != nil {
		return err
	}
	return nil
}

func (cfg Config) Level() (slog.Level, error) {
	var level slog.Level
	if cfg.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return level, fmt.Errorf("log_level %q: %w", cfg.LogLevel, abi.ERR_INVALID_ARG)
	}
	return level, nil
}
