package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/wirekit/internal/testutil/testlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wirectl.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[log]
level = "debug"

[decode]
max_records = 10
strict = true

[output]
format = "CBOR"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("unexpected level: %q", cfg.Log.Level)
	}
	if cfg.Decode.MaxSnapLen != 262144 {
		t.Fatalf("max_snaplen should keep its default, got %d", cfg.Decode.MaxSnapLen)
	}
	if cfg.Decode.MaxRecords != 10 || !cfg.Decode.Strict {
		t.Fatalf("unexpected decode section: %+v", cfg.Decode)
	}
	if cfg.Output.Format != FormatCBOR {
		t.Fatalf("unexpected format: %q", cfg.Output.Format)
	}
	if cfg.Metrics.Addr != "" {
		t.Fatalf("metrics should be off by default, got %q", cfg.Metrics.Addr)
	}

	limits := cfg.Decode.Limits()
	if limits.MaxSnapLen != 262144 || limits.MaxRecords != 10 {
		t.Fatalf("unexpected limits: %+v", limits)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
[decode]
max_snap = 12
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"zero snaplen", func(c *Config) { c.Decode.MaxSnapLen = 0 }, "max_snaplen"},
		{"huge snaplen", func(c *Config) { c.Decode.MaxSnapLen = 1 << 30 }, "exceeds"},
		{"negative records", func(c *Config) { c.Decode.MaxRecords = -1 }, "max_records"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
	require.NoError(t, Validate(Default()))
}

func TestWriteTemplateRoundTrip(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "wirectl.toml")
	require.NoError(t, WriteTemplate(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	err = WriteTemplate(path, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
	require.NoError(t, WriteTemplate(path, true))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
