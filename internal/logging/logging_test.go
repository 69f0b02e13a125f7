package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestFromEnv(t *testing.T) {
	t.Setenv(levelEnvKey, "")
	t.Setenv(formatEnvKey, "")
	if got := FromEnv(); got != (Config{Level: "info", Format: FormatJSON}) {
		t.Fatalf("defaults: %+v", got)
	}

	t.Setenv(levelEnvKey, " DEBUG ")
	t.Setenv(formatEnvKey, "Console")
	if got := FromEnv(); got != (Config{Level: "debug", Format: FormatConsole}) {
		t.Fatalf("overrides: %+v", got)
	}
}

func TestNew(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		level   zapcore.Level
		wantErr bool
	}{
		{name: "json info", cfg: Config{Level: "info", Format: FormatJSON}, level: zapcore.InfoLevel},
		{name: "console debug", cfg: Config{Level: "debug", Format: FormatConsole}, level: zapcore.DebugLevel},
		{name: "default format", cfg: Config{Level: "warn"}, level: zapcore.WarnLevel},
		{name: "bad level", cfg: Config{Level: "loud", Format: FormatJSON}, wantErr: true},
		{name: "bad format", cfg: Config{Level: "info", Format: "xml"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := New(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			if !logger.Core().Enabled(tc.level) {
				t.Fatalf("level %s should be enabled", tc.level)
			}
			if tc.level > zapcore.DebugLevel && logger.Core().Enabled(tc.level-1) {
				t.Fatalf("level below %s should be disabled", tc.level)
			}
		})
	}
}
