package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fleetguard-core/internal/infrastructure/config"
)

// Logger is the subset of the structured logger this package reports
// through. Handlers run on paho goroutines, so their failures surface
// here rather than as return values.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// MessageHandler receives each message delivered on a subscription.
// Paho invokes handlers on its own goroutines; a returned error is
// logged, it does not reject the message.
type MessageHandler func(topic string, payload []byte) error

// tracked is a live subscription, kept so it can be replayed after a
// reconnect.
type tracked struct {
	qos     byte
	handler MessageHandler
}

// Client is the broker connection shared by the core. The device
// bridge publishes commands and requests through it and subscribes
// for acks, responses and telemetry; the availability probe leans on
// IsConnected.
//
// All methods are safe for concurrent use. The connection
// auto-reconnects with capped backoff, and tracked subscriptions are
// replayed on every reconnect.
type Client struct {
	cfg  config.MQTTConfig
	paho pahomqtt.Client

	mu   sync.RWMutex
	up   bool
	subs map[string]tracked

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)

	logMu  sync.RWMutex
	logger Logger
}

// Connect dials the configured broker and announces the core online
// on the system status topic. The returned client keeps itself
// connected; callers only Close it on shutdown.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]tracked),
	}

	opts := brokerOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionLost(err) })

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: no broker response within %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect hook runs asynchronously; mark up here so the
	// client is usable the moment Connect returns.
	c.mu.Lock()
	c.up = true
	c.mu.Unlock()

	return c, nil
}

// connected runs on initial connect and every reconnect.
func (c *Client) connected() {
	c.mu.Lock()
	c.up = true
	subs := make(map[string]tracked, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	c.mu.Unlock()

	// Replay subscriptions lost with the previous session. Failures
	// here resolve on the next reconnect cycle.
	for topic, sub := range subs {
		c.paho.Subscribe(topic, sub.qos, c.guard(sub.handler))
	}

	c.announce("online", "")

	c.hookMu.RLock()
	hook := c.onConnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) connectionLost(err error) {
	c.mu.Lock()
	c.up = false
	c.mu.Unlock()

	c.log().Warn("mqtt connection lost", "error", err)

	c.hookMu.RLock()
	hook := c.onDisconnect
	c.hookMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// announce publishes a retained liveness message on the system status
// topic. Best effort.
func (c *Client) announce(status, reason string) {
	payload := encodeStatus(status, c.cfg.Broker.ClientID, reason)
	token := c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
	token.WaitTimeout(opTimeout)
}

// Close announces a graceful shutdown, drains in-flight messages and
// drops the connection. Safe on a zero Client.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		c.announce("offline", "graceful_shutdown")
	}
	c.paho.Disconnect(disconnectQuiesceMs)

	c.mu.Lock()
	c.up = false
	c.mu.Unlock()
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.up && c.paho != nil && c.paho.IsConnected()
}

// HealthCheck reports broker reachability for the startup health
// sweep and the status API.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// SetOnConnect installs a hook run on initial connect and every
// reconnect, after subscriptions are replayed.
func (c *Client) SetOnConnect(hook func()) {
	c.hookMu.Lock()
	c.onConnect = hook
	c.hookMu.Unlock()
}

// SetOnDisconnect installs a hook run whenever the connection drops.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = hook
	c.hookMu.Unlock()
}

// SetLogger routes handler panics and connection noise to the given
// logger. Without one they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.logMu.Lock()
	c.logger = logger
	c.logMu.Unlock()
}

func (c *Client) log() Logger {
	c.logMu.RLock()
	defer c.logMu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// guard adapts a MessageHandler for paho, containing panics so one
// bad payload cannot take down the whole dispatch loop.
func (c *Client) guard(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("mqtt handler panic", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("mqtt handler error", "topic", msg.Topic(), "error", err)
		}
	}
}
