package simulation

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	intervalEnvKey           = "SIMULATION_INTERVAL"
	anomalyProbabilityEnvKey = "SIMULATION_ANOMALY_PROBABILITY"
	statusEveryEnvKey        = "SIMULATION_STATUS_EVERY"
	seedEnvKey               = "SIMULATION_SEED"
	ticksEnvKey              = "SIMULATION_TICKS"
	errorPauseEnvKey         = "SIMULATION_ERROR_PAUSE"
	registryFileEnvKey       = "SENSOR_REGISTRY_FILE"
	reconnectAttemptsEnvKey  = "TRANSPORT_RECONNECT_ATTEMPTS"
	reconnectBackoffEnvKey   = "TRANSPORT_RECONNECT_BACKOFF"
)

// Config gathers the tunables of a simulation run.
type Config struct {
	Interval           time.Duration
	AnomalyProbability float64
	StatusEvery        int64
	Seed               int64
	TickLimit          int64
	ErrorPause         time.Duration
	RegistryFile       string
	ReconnectAttempts  int
	ReconnectBackoff   time.Duration
}

// DefaultConfig returns the reference settings.
func DefaultConfig() Config {
	return Config{
		Interval:           defaultInterval,
		AnomalyProbability: DefaultAnomalyProbability,
		StatusEvery:        defaultStatusEvery,
		ErrorPause:         defaultErrorPause,
		ReconnectAttempts:  defaultReconnectAttempts,
		ReconnectBackoff:   defaultReconnectBackoff,
	}
}

// ConfigFromEnv reads the SIMULATION_* and TRANSPORT_RECONNECT_* variables. Invalid values
// are logged and replaced by their defaults.
func ConfigFromEnv(logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	return Config{
		Interval:           durationFromEnv(logger, intervalEnvKey, def.Interval),
		AnomalyProbability: probabilityFromEnv(logger, anomalyProbabilityEnvKey, def.AnomalyProbability),
		StatusEvery:        intFromEnv(logger, statusEveryEnvKey, def.StatusEvery, 1),
		Seed:               intFromEnv(logger, seedEnvKey, 0, 0),
		TickLimit:          intFromEnv(logger, ticksEnvKey, 0, 0),
		ErrorPause:         durationFromEnv(logger, errorPauseEnvKey, def.ErrorPause),
		RegistryFile:       os.Getenv(registryFileEnvKey),
		ReconnectAttempts:  int(intFromEnv(logger, reconnectAttemptsEnvKey, int64(def.ReconnectAttempts), 1)),
		ReconnectBackoff:   durationFromEnv(logger, reconnectBackoffEnvKey, def.ReconnectBackoff),
	}
}

func durationFromEnv(logger *zap.Logger, key string, fallback time.Duration) time.Duration {
	return parseDuration(logger, key, os.Getenv(key), fallback)
}

func parseDuration(logger *zap.Logger, key, raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("invalid duration, using default",
			zap.String("key", key), zap.String("value", raw), zap.Duration("default", fallback), zap.Error(err))
		return fallback
	}
	if dur <= 0 {
		logger.Warn("non-positive duration, using default",
			zap.String("key", key), zap.String("value", raw), zap.Duration("default", fallback))
		return fallback
	}
	return dur
}

func intFromEnv(logger *zap.Logger, key string, fallback, min int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < min {
		logger.Warn("invalid integer, using default",
			zap.String("key", key), zap.String("value", raw), zap.Int64("default", fallback))
		return fallback
	}
	return v
}

func probabilityFromEnv(logger *zap.Logger, key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		logger.Warn("probability must be within [0, 1], using default",
			zap.String("key", key), zap.String("value", raw), zap.Float64("default", fallback))
		return fallback
	}
	return v
}
