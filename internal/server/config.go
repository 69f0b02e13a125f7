package server

import (
	"os"
	"strings"
)

const (
	// DefaultAddr is where the status surface listens when STATUS_ADDR is unset.
	DefaultAddr = ":8081"

	addrEnvKey    = "STATUS_ADDR"
	originsEnvKey = "STATUS_CORS_ORIGINS"
	disabledAddr  = "off"
)

// Config holds the status server settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// Enabled reports whether the status server should be started.
func (c Config) Enabled() bool {
	return c.Addr != "" && c.Addr != disabledAddr
}

// FromEnv reads STATUS_ADDR ("off" disables the server) and STATUS_CORS_ORIGINS, a comma
// separated origin list. An empty list allows every origin.
func FromEnv() Config {
	cfg := Config{Addr: DefaultAddr}
	if addr := strings.TrimSpace(os.Getenv(addrEnvKey)); addr != "" {
		cfg.Addr = addr
	}
	for _, origin := range strings.Split(os.Getenv(originsEnvKey), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}
	return cfg
}
