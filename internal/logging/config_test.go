package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestEnvOverridesReplaceProfileDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "warning")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogBypass, "nope")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", cfg.Level)
	}
	if cfg.Timestamp {
		t.Fatalf("expected timestamps off")
	}
	if !cfg.NoColor {
		t.Fatalf("expected colour off")
	}
	if cfg.Bypass {
		t.Fatalf("unparseable bypass value should leave the default")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		" DEBUG ":  zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"inactive": zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) = %s, %v", raw, got, ok)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level should not parse")
	}
	if ConfigureLevel("") {
		t.Fatalf("empty level should be ignored")
	}
}
