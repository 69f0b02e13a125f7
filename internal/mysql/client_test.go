package mysql

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func clearMySQLEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MYSQL_DSN", "MYSQL_HOST", "MYSQL_PORT", "MYSQL_USER", "MYSQL_PASSWORD", "MYSQL_DATABASE",
		"MYSQL_PARAMS", "MYSQL_TLS_CA", "MYSQL_TLS_CONFIG", "MYSQL_MAX_OPEN_CONNS",
		"MYSQL_MAX_IDLE_CONNS", "MYSQL_CONN_MAX_LIFETIME", "MYSQL_PING_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvNotConfigured(t *testing.T) {
	clearMySQLEnv(t)
	if _, err := FromEnv(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestFromEnvHostSettings(t *testing.T) {
	clearMySQLEnv(t)
	t.Setenv("MYSQL_HOST", "db.local")
	t.Setenv("MYSQL_USER", "sim")
	t.Setenv("MYSQL_PASSWORD", "secret")
	t.Setenv("MYSQL_DATABASE", "plant")
	t.Setenv("MYSQL_PING_TIMEOUT", "2s")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "3306" || cfg.MaxOpenConns != 10 || cfg.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	dc, err := cfg.driverConfig()
	if err != nil {
		t.Fatalf("driverConfig: %v", err)
	}
	if dc.User != "sim" || dc.Passwd != "secret" || dc.Net != "tcp" || dc.Addr != "db.local:3306" || dc.DBName != "plant" {
		t.Fatalf("unexpected driver config: %+v", dc)
	}
	if !dc.ParseTime || dc.Loc != time.UTC {
		t.Fatalf("expected parseTime in UTC, got parseTime=%v loc=%v", dc.ParseTime, dc.Loc)
	}
}

func TestFromEnvURLDSN(t *testing.T) {
	clearMySQLEnv(t)
	t.Setenv("MYSQL_DSN", "mysql://sim:pw@db.example.com:3307/plant?ssl-mode=REQUIRED&timeout=5s")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Host != "db.example.com" || cfg.Port != "3307" || cfg.User != "sim" || cfg.Database != "plant" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if strings.Contains(cfg.Params, "ssl-mode") || !strings.Contains(cfg.Params, "timeout=5s") {
		t.Fatalf("unexpected params %q", cfg.Params)
	}

	dc, err := cfg.driverConfig()
	if err != nil {
		t.Fatalf("driverConfig: %v", err)
	}
	if dc.Addr != "db.example.com:3307" || dc.Timeout != 5*time.Second || !dc.ParseTime {
		t.Fatalf("unexpected driver config: %+v", dc)
	}
}

func TestDriverConfigFromDSN(t *testing.T) {
	dc, err := Config{DSN: "sim:pw@tcp(localhost:3306)/plant?parseTime=true"}.driverConfig()
	if err != nil {
		t.Fatalf("driverConfig: %v", err)
	}
	if dc.DBName != "plant" || !dc.ParseTime {
		t.Fatalf("unexpected driver config: %+v", dc)
	}

	dc, err = Config{DSN: "u:p@tcp(db:3306)/plant"}.driverConfig()
	if err != nil {
		t.Fatalf("driverConfig: %v", err)
	}
	if !dc.ParseTime || dc.Loc != time.UTC {
		t.Fatalf("DSN without parseTime must still scan timestamps in UTC, got parseTime=%v loc=%v", dc.ParseTime, dc.Loc)
	}

	dc, err = Config{DSN: "u:p@tcp(db:3306)/plant?loc=Local"}.driverConfig()
	if err != nil {
		t.Fatalf("driverConfig: %v", err)
	}
	if !dc.ParseTime || dc.Loc != time.Local {
		t.Fatalf("explicit loc must be kept, got parseTime=%v loc=%v", dc.ParseTime, dc.Loc)
	}

	if _, err := (Config{DSN: "not a dsn"}).driverConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFromEnvInvalidValues(t *testing.T) {
	tests := []struct{ key, value string }{
		{"MYSQL_MAX_OPEN_CONNS", "many"},
		{"MYSQL_CONN_MAX_LIFETIME", "forever"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearMySQLEnv(t)
			t.Setenv("MYSQL_DSN", "sim:pw@tcp(localhost:3306)/plant")
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestFromEnvIncompleteHost(t *testing.T) {
	clearMySQLEnv(t)
	t.Setenv("MYSQL_HOST", "db.local")
	if _, err := FromEnv(); err == nil || errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected incomplete configuration error, got %v", err)
	}
}
