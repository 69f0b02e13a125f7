package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	levelEnvKey  = "LOG_LEVEL"
	formatEnvKey = "LOG_FORMAT"

	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects the log level and encoding.
type Config struct {
	Level  string
	Format string
}

// FromEnv reads LOG_LEVEL (default info) and LOG_FORMAT (default json).
func FromEnv() Config {
	cfg := Config{Level: "info", Format: FormatJSON}
	if v := strings.TrimSpace(os.Getenv(levelEnvKey)); v != "" {
		cfg.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(formatEnvKey)); v != "" {
		cfg.Format = strings.ToLower(v)
	}
	return cfg
}

// New builds a zap logger. Console format uses the development encoder.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", levelEnvKey, err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "", FormatJSON:
		zc = zap.NewProductionConfig()
	case FormatConsole:
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unsupported %s %q", formatEnvKey, cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
