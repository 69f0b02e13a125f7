package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sqldriver "github.com/go-sql-driver/mysql"
)

// Config maps connection settings for the MySQL instance.
type Config struct {
	DSN             string
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	Params          string
	TLSCAPath       string
	TLSConfigName   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// ErrNotConfigured is returned by FromEnv when no MySQL settings are present at all.
var ErrNotConfigured = errors.New("mysql not configured")

// FromEnv constructs Config from environment variables. MySQL is optional for the
// simulator, so an environment without MYSQL_DSN or MYSQL_HOST yields ErrNotConfigured.
func FromEnv() (Config, error) {
	if strings.TrimSpace(os.Getenv("MYSQL_DSN")) == "" && strings.TrimSpace(os.Getenv("MYSQL_HOST")) == "" {
		return Config{}, ErrNotConfigured
	}

	maxOpen, err := parseInt("MYSQL_MAX_OPEN_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	maxIdle, err := parseInt("MYSQL_MAX_IDLE_CONNS", 5)
	if err != nil {
		return Config{}, err
	}
	lifetime, err := parseDuration("MYSQL_CONN_MAX_LIFETIME", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	pingTimeout, err := parseDuration("MYSQL_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DSN:             strings.TrimSpace(os.Getenv("MYSQL_DSN")),
		Host:            os.Getenv("MYSQL_HOST"),
		Port:            defaultString(os.Getenv("MYSQL_PORT"), "3306"),
		User:            os.Getenv("MYSQL_USER"),
		Password:        os.Getenv("MYSQL_PASSWORD"),
		Database:        os.Getenv("MYSQL_DATABASE"),
		Params:          os.Getenv("MYSQL_PARAMS"),
		TLSCAPath:       os.Getenv("MYSQL_TLS_CA"),
		TLSConfigName:   defaultString(os.Getenv("MYSQL_TLS_CONFIG"), "scadasim"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: lifetime,
		PingTimeout:     pingTimeout,
	}

	if strings.HasPrefix(strings.ToLower(cfg.DSN), "mysql://") {
		if err := cfg.applyURLDSN(cfg.DSN); err != nil {
			return Config{}, fmt.Errorf("parse MYSQL_DSN: %w", err)
		}
		cfg.DSN = ""
	}

	if cfg.DSN == "" {
		if cfg.Host == "" || cfg.User == "" || cfg.Password == "" || cfg.Database == "" {
			return Config{}, errors.New("incomplete MySQL configuration: provide MYSQL_DSN or MYSQL_HOST, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE")
		}
	}

	return cfg, nil
}

// New opens a pooled MySQL connection through the driver connector and pings it.
func New(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.TLSCAPath != "" {
		if err := registerTLSConfig(cfg.TLSConfigName, cfg.TLSCAPath); err != nil {
			return nil, fmt.Errorf("register TLS config: %w", err)
		}
	}

	dc, err := cfg.driverConfig()
	if err != nil {
		return nil, err
	}
	if cfg.TLSCAPath != "" && dc.TLSConfig == "" {
		dc.TLSConfig = cfg.TLSConfigName
	}

	connector, err := sqldriver.NewConnector(dc)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", dc.Addr, err)
	}
	return db, nil
}

// driverConfig resolves either MYSQL_DSN or the host settings into a driver config.
// parseTime is always on. Host settings default to loc=UTC unless MYSQL_PARAMS overrides it.
func (cfg Config) driverConfig() (*sqldriver.Config, error) {
	if cfg.DSN != "" {
		dc, err := sqldriver.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse MYSQL_DSN: %w", err)
		}
		// the maintenance repository scans TIMESTAMP columns into time.Time
		dc.ParseTime = true
		if dc.Loc == nil {
			dc.Loc = time.UTC
		}
		return dc, nil
	}

	params := url.Values{"parseTime": {"true"}, "loc": {"UTC"}}
	if extra := strings.TrimPrefix(cfg.Params, "?"); extra != "" {
		parsed, err := url.ParseQuery(extra)
		if err != nil {
			return nil, fmt.Errorf("parse MYSQL_PARAMS: %w", err)
		}
		for k, v := range parsed {
			params[k] = v
		}
	}

	raw := fmt.Sprintf("%s:%s@tcp(%s)/%s?%s",
		cfg.User, cfg.Password, net.JoinHostPort(cfg.Host, cfg.Port), cfg.Database, params.Encode())
	dc, err := sqldriver.ParseDSN(raw)
	if err != nil {
		return nil, fmt.Errorf("build mysql dsn: %w", err)
	}
	return dc, nil
}

func registerTLSConfig(name, caPath string) error {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(pem); !ok {
		return errors.New("failed to append CA certificate")
	}
	return sqldriver.RegisterTLSConfig(name, &tls.Config{RootCAs: pool})
}

func (cfg *Config) applyURLDSN(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.User != nil {
		cfg.User = parsed.User.Username()
		if password, ok := parsed.User.Password(); ok {
			cfg.Password = password
		}
	}
	if host := parsed.Hostname(); host != "" {
		cfg.Host = host
	}
	if port := parsed.Port(); port != "" {
		cfg.Port = port
	}
	if db := strings.TrimPrefix(parsed.Path, "/"); db != "" {
		cfg.Database = db
	}

	query := parsed.Query()
	query.Del("ssl-mode")
	urlParams := query.Encode()

	existing := strings.TrimPrefix(cfg.Params, "?")
	switch {
	case existing != "" && urlParams != "":
		cfg.Params = existing + "&" + urlParams
	case urlParams != "":
		cfg.Params = urlParams
	default:
		cfg.Params = existing
	}

	return nil
}

func defaultString(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

func parseInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return dur, nil
}
