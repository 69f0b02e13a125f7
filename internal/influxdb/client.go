package influxdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	api "github.com/influxdata/influxdb-client-go/v2/api"
)

const defaultTimeout = 5 * time.Second

// ErrMissingConfig is returned by FromEnv when a required INFLUX_* key is unset.
var ErrMissingConfig = errors.New("missing influxdb configuration")

// Config holds the downstream InfluxDB the influx transport writes to.
type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Timeout time.Duration
}

// FromEnv reads INFLUX_URL, INFLUX_TOKEN, INFLUX_ORG and INFLUX_BUCKET (required) and
// INFLUX_TIMEOUT (default 5s).
func FromEnv() (Config, error) {
	cfg := Config{Timeout: defaultTimeout}

	var missing []string
	for key, dst := range map[string]*string{
		"INFLUX_URL":    &cfg.URL,
		"INFLUX_TOKEN":  &cfg.Token,
		"INFLUX_ORG":    &cfg.Org,
		"INFLUX_BUCKET": &cfg.Bucket,
	} {
		*dst = strings.TrimSpace(os.Getenv(key))
		if *dst == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	if raw := os.Getenv("INFLUX_TIMEOUT"); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INFLUX_TIMEOUT: %w", err)
		}
		if dur <= 0 {
			return Config{}, fmt.Errorf("invalid INFLUX_TIMEOUT %q: must be positive", raw)
		}
		cfg.Timeout = dur
	}
	return cfg, nil
}

// Client is a pinged InfluxDB connection bound to one org and bucket.
type Client struct {
	cfg    Config
	client influxdb2.Client
}

// New dials InfluxDB and pings it within cfg.Timeout before returning.
func New(ctx context.Context, cfg Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	ok, err := client.Ping(pingCtx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("ping influxdb at %s: %w", cfg.URL, err)
	case !ok:
		client.Close()
		return nil, fmt.Errorf("ping influxdb at %s: not ready", cfg.URL)
	}
	return &Client{cfg: cfg, client: client}, nil
}

// WriteAPI returns the blocking writer for the configured bucket.
func (c *Client) WriteAPI() api.WriteAPIBlocking {
	return c.client.WriteAPIBlocking(c.cfg.Org, c.cfg.Bucket)
}

func (c *Client) Close() {
	c.client.Close()
}
