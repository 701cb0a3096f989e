package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
	FormatYAML = "yaml"
)

// maxSnapLenCeiling bounds max_snaplen so one record cannot ask for an
// unbounded allocation.
const maxSnapLenCeiling = 64 << 20

type Config struct {
	Log     LogConfig     `toml:"log"`
	Decode  DecodeConfig  `toml:"decode"`
	Output  OutputConfig  `toml:"output"`
	Metrics MetricsConfig `toml:"metrics"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type DecodeConfig struct {
	MaxSnapLen uint32 `toml:"max_snaplen"`
	MaxRecords int    `toml:"max_records"`
	// Strict stops at the first record that fails to decode instead of
	// logging it and moving on.
	Strict bool `toml:"strict"`
}

type OutputConfig struct {
	Format string `toml:"format"`
	Path   string `toml:"path"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info"},
		Decode: DecodeConfig{MaxSnapLen: 262144},
		Output: OutputConfig{Format: FormatJSON},
	}
}

// Load reads a wirectl TOML file over the defaults. Keys left out of the
// file keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("decode", "max_snaplen") {
		cfg.Decode.MaxSnapLen = raw.Decode.MaxSnapLen
	}
	if meta.IsDefined("decode", "max_records") {
		cfg.Decode.MaxRecords = raw.Decode.MaxRecords
	}
	if meta.IsDefined("decode", "strict") {
		cfg.Decode.Strict = raw.Decode.Strict
	}
	if meta.IsDefined("output", "format") {
		cfg.Output.Format = strings.ToLower(strings.TrimSpace(raw.Output.Format))
	}
	if meta.IsDefined("output", "path") {
		cfg.Output.Path = strings.TrimSpace(raw.Output.Path)
	}
	if meta.IsDefined("metrics", "addr") {
		cfg.Metrics.Addr = strings.TrimSpace(raw.Metrics.Addr)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %s", path, undecoded[0])
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		return fmt.Errorf("log.level %q is not a level", cfg.Log.Level)
	}
	if cfg.Decode.MaxSnapLen == 0 {
		return fmt.Errorf("decode.max_snaplen must be positive")
	}
	if cfg.Decode.MaxSnapLen > maxSnapLenCeiling {
		return fmt.Errorf("decode.max_snaplen %d exceeds %d", cfg.Decode.MaxSnapLen, maxSnapLenCeiling)
	}
	if cfg.Decode.MaxRecords < 0 {
		return fmt.Errorf("decode.max_records must not be negative")
	}
	switch cfg.Output.Format {
	case FormatJSON, FormatCBOR, FormatYAML:
	default:
		return fmt.Errorf("output.format %q (expected json, cbor or yaml)", cfg.Output.Format)
	}
	return nil
}
