package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/fleetguard-core/internal/infrastructure/config"
)

const (
	connectPingTimeout = 10 * time.Second
	healthPingTimeout  = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client is the metrics sink for the fleet: device telemetry, anomaly
// hits, queue depth and energy readings all land here. It satisfies
// the MetricsSink interfaces of the resilience manager and the
// anomaly interlock.
//
// Writes are batched and non-blocking so a slow or absent metrics
// backend can never stall a command or a safety shutoff; write
// failures surface through the SetOnError callback instead. The whole
// subsystem is optional (ErrDisabled when switched off in config).
type Client struct {
	influx   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	mu      sync.RWMutex
	up      bool
	onError func(err error)
}

// Connect builds a token-authenticated client for the configured
// server, verifies it with a ping and starts the batched write
// pipeline.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// #nosec G115 -- both values forced positive above
	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush)*1000))

	ctx, cancel := context.WithTimeout(context.Background(), connectPingTimeout)
	defer cancel()

	healthy, err := influx.Ping(ctx)
	if err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		influx.Close()
		return nil, fmt.Errorf("%w: server reports unhealthy", ErrConnectionFailed)
	}

	c := &Client{
		influx:   influx,
		writeAPI: influx.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
		up:       true,
	}
	go c.drainWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// drainWriteErrors forwards async batch failures to the callback. The
// channel closes with the client.
func (c *Client) drainWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	}
}

// SetOnError installs the handler for asynchronous write failures.
func (c *Client) SetOnError(cb func(err error)) {
	c.mu.Lock()
	c.onError = cb
	c.mu.Unlock()
}

// IsConnected reports the last known state; HealthCheck pings.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.up
}

// HealthCheck actively pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	healthy, err := c.influx.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server reports unhealthy")
	}
	return nil
}

// Flush blocks until buffered points are written. Used before
// shutdown and in tests; a no-op when disconnected.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client. Safe on a
// zero Client.
func (c *Client) Close() error {
	if c.influx == nil {
		return nil
	}

	c.mu.Lock()
	c.up = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.influx.Close()
	return nil
}
