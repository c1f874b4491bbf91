package mqttdev

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/fleetguard-core/internal/device"
	"github.com/nerrad567/fleetguard-core/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// defaultRequestTimeout bounds request/response exchanges with the
	// fleet controller.
	defaultRequestTimeout = 10 * time.Second

	// defaultAckTimeout bounds how long a command waits for a device ack.
	defaultAckTimeout = 5 * time.Second

	// defaultQoS is used when Options.QoS is zero.
	defaultQoS = 1
)

// Request kinds used in request/response topics.
const (
	kindRegister = "register"
	kindDiscover = "discover"
	kindStatus   = "status"
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
// Satisfied by *mqtt.Client.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger defines the logging interface used by the Bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge implements device.Channel over MQTT.
//
// Commands publish to per-device command topics and wait for an ack;
// registration, discovery, and status reads use request/response topics
// correlated by request ID. Telemetry fans out to subscribed handlers.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	mqtt   MQTTClient
	topics mqtt.Topics
	qos    byte

	requestTimeout time.Duration
	ackTimeout     time.Duration

	// pending correlates in-flight requests and commands with their
	// reply payloads, keyed by request ID or command ID.
	pending   map[string]chan []byte
	pendingMu sync.Mutex

	// telemetry holds handlers per device ID. The broker subscription
	// for a device is created when its first handler registers.
	telemetry   map[string][]device.TelemetryHandler
	telemetryMu sync.RWMutex

	started bool
	startMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Client is the MQTT client implementation.
	Client MQTTClient

	// QoS for all publishes and subscriptions. Defaults to 1.
	QoS byte

	// RequestTimeout bounds request/response exchanges. Defaults to 10s.
	RequestTimeout time.Duration

	// AckTimeout bounds command acknowledgment waits. Defaults to 5s.
	AckTimeout time.Duration

	// Logger is optional structured logging.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("mqttdev: MQTT client is required")
	}

	b := &Bridge{
		mqtt:           opts.Client,
		qos:            opts.QoS,
		requestTimeout: opts.RequestTimeout,
		ackTimeout:     opts.AckTimeout,
		pending:        make(map[string]chan []byte),
		telemetry:      make(map[string][]device.TelemetryHandler),
		logger:         opts.Logger,
	}
	if b.qos == 0 {
		b.qos = defaultQoS
	}
	if b.requestTimeout <= 0 {
		b.requestTimeout = defaultRequestTimeout
	}
	if b.ackTimeout <= 0 {
		b.ackTimeout = defaultAckTimeout
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}

	return b, nil
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	defer b.loggerMu.Unlock()
	if logger != nil {
		b.logger = logger
	}
}

func (b *Bridge) log() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Start subscribes to the ack and response topics.
// Must be called before any Channel operation.
func (b *Bridge) Start() error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if b.started {
		return nil
	}

	if err := b.mqtt.Subscribe(b.topics.AllAcks(), b.qos, b.handleAck); err != nil {
		return fmt.Errorf("subscribe acks: %w", err)
	}
	for _, kind := range []string{kindRegister, kindDiscover, kindStatus} {
		if err := b.mqtt.Subscribe(b.topics.AllResponses(kind), b.qos, b.handleResponse); err != nil {
			return fmt.Errorf("subscribe %s responses: %w", kind, err)
		}
	}

	b.started = true
	return nil
}

// Stop removes the bridge's broker subscriptions.
// In-flight requests fail with ErrTimeout.
func (b *Bridge) Stop() error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if !b.started {
		return nil
	}

	var firstErr error
	topics := []string{
		b.topics.AllAcks(),
		b.topics.AllResponses(kindRegister),
		b.topics.AllResponses(kindDiscover),
		b.topics.AllResponses(kindStatus),
	}
	b.telemetryMu.Lock()
	for deviceID := range b.telemetry {
		topics = append(topics, b.topics.DeviceTelemetry(deviceID))
	}
	b.telemetry = make(map[string][]device.TelemetryHandler)
	b.telemetryMu.Unlock()

	for _, topic := range topics {
		if err := b.mqtt.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	b.started = false
	return firstErr
}

func (b *Bridge) isStarted() bool {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	return b.started
}

// Register announces a device to the fleet controller and returns its
// canonical record.
func (b *Bridge) Register(ctx context.Context, deviceID string, deviceType device.DeviceType) (*device.Device, error) {
	raw, err := b.request(ctx, kindRegister, RegisterRequest{
		DeviceID:   deviceID,
		DeviceType: deviceType,
	})
	if err != nil {
		return nil, err
	}

	var resp RegisterResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemoteFault, resp.Error)
	}
	if resp.Device == nil {
		return nil, fmt.Errorf("%w: register response missing device record", ErrBadResponse)
	}
	return resp.Device, nil
}

// Discover lists the devices currently known to the fleet controller.
func (b *Bridge) Discover(ctx context.Context) ([]device.Device, error) {
	raw, err := b.request(ctx, kindDiscover, DiscoverRequest{})
	if err != nil {
		return nil, err
	}

	var resp DiscoverResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemoteFault, resp.Error)
	}
	return resp.Devices, nil
}

// GetStatus fetches the current status of a device.
func (b *Bridge) GetStatus(ctx context.Context, deviceID string) (*device.Status, error) {
	raw, err := b.request(ctx, kindStatus, StatusRequest{DeviceID: deviceID})
	if err != nil {
		return nil, err
	}

	var resp StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemoteFault, resp.Error)
	}
	if resp.Status == nil {
		return nil, fmt.Errorf("%w: status response missing status record", ErrBadResponse)
	}
	return resp.Status, nil
}

// SendCommand publishes a command to the device and waits for its ack.
func (b *Bridge) SendCommand(ctx context.Context, deviceID string, cmd device.Command) error {
	if !b.isStarted() {
		return ErrNotStarted
	}

	msg := CommandMessage{
		ID:        newCorrelationID("cmd"),
		Timestamp: time.Now().UTC(),
		Action:    cmd.Action,
		Params:    cmd.Params,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	// Pending entry must exist before publish so a synchronous ack
	// cannot be missed.
	ch := b.addPending(msg.ID)
	defer b.removePending(msg.ID)

	topic := b.topics.DeviceCommand(deviceID)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}

	raw, err := b.waitReply(ctx, ch, b.ackTimeout)
	if err != nil {
		return err
	}

	var ack AckMessage
	if err := json.Unmarshal(raw, &ack); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if !ack.Success {
		if ack.Error == "" {
			ack.Error = "no reason given"
		}
		return fmt.Errorf("%w: %s", ErrCommandRejected, ack.Error)
	}
	return nil
}

// SubscribeTelemetry registers a handler for telemetry from a device.
// The broker subscription is created on the first handler for a device;
// later handlers share it.
func (b *Bridge) SubscribeTelemetry(_ context.Context, deviceID string, handler device.TelemetryHandler) error {
	if handler == nil {
		return fmt.Errorf("mqttdev: telemetry handler is required")
	}
	if !b.isStarted() {
		return ErrNotStarted
	}

	b.telemetryMu.Lock()
	defer b.telemetryMu.Unlock()

	first := len(b.telemetry[deviceID]) == 0
	if first {
		topic := b.topics.DeviceTelemetry(deviceID)
		if err := b.mqtt.Subscribe(topic, b.qos, b.handleTelemetry); err != nil {
			return fmt.Errorf("subscribe telemetry: %w", err)
		}
	}
	b.telemetry[deviceID] = append(b.telemetry[deviceID], handler)
	return nil
}

// request performs one request/response exchange with the fleet controller.
func (b *Bridge) request(ctx context.Context, kind string, req any) ([]byte, error) {
	if !b.isStarted() {
		return nil, ErrNotStarted
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", kind, err)
	}

	requestID := newCorrelationID("req")
	ch := b.addPending(requestID)
	defer b.removePending(requestID)

	topic := b.topics.Request(kind, requestID)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		return nil, fmt.Errorf("publish %s request: %w", kind, err)
	}

	return b.waitReply(ctx, ch, b.requestTimeout)
}

// waitReply blocks until a reply arrives, the context ends, or the
// timeout elapses.
func (b *Bridge) waitReply(ctx context.Context, ch <-chan []byte, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("mqttdev: %w", ctx.Err())
	case <-timer.C:
		return nil, ErrTimeout
	case payload := <-ch:
		return payload, nil
	}
}

func (b *Bridge) addPending(id string) chan []byte {
	// Buffered so delivery never blocks a transport goroutine.
	ch := make(chan []byte, 1)
	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()
	return ch
}

func (b *Bridge) removePending(id string) {
	b.pendingMu.Lock()
	delete(b.pending, id)
	b.pendingMu.Unlock()
}

func (b *Bridge) deliver(id string, payload []byte) bool {
	b.pendingMu.Lock()
	ch, ok := b.pending[id]
	b.pendingMu.Unlock()
	if !ok {
		return false
	}

	select {
	case ch <- payload:
		return true
	default:
		// Duplicate reply for the same ID; first one wins.
		return false
	}
}

// handleResponse routes a fleet controller response to its waiting request.
// The request ID is the final topic segment.
func (b *Bridge) handleResponse(topic string, payload []byte) error {
	requestID := topic[strings.LastIndex(topic, "/")+1:]
	if requestID == "" {
		return fmt.Errorf("%w: response topic %q has no request ID", ErrBadResponse, topic)
	}

	if !b.deliver(requestID, payload) {
		b.log().Debug("response with no waiting request",
			"topic", topic,
			"request_id", requestID,
		)
	}
	return nil
}

// handleAck routes a device ack to its waiting command.
func (b *Bridge) handleAck(topic string, payload []byte) error {
	var ack AckMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if ack.CommandID == "" {
		return fmt.Errorf("%w: ack missing command ID", ErrBadResponse)
	}

	if !b.deliver(ack.CommandID, payload) {
		b.log().Debug("ack with no waiting command",
			"topic", topic,
			"command_id", ack.CommandID,
		)
	}
	return nil
}

// handleTelemetry parses a telemetry reading and fans it out to the
// device's handlers.
func (b *Bridge) handleTelemetry(topic string, payload []byte) error {
	deviceID := topic[strings.LastIndex(topic, "/")+1:]

	var reading device.Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return fmt.Errorf("%w: telemetry: %w", ErrBadResponse, err)
	}
	if reading.DeviceID == "" {
		reading.DeviceID = deviceID
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}

	// Handlers are keyed by the topic's device segment, not the payload.
	b.telemetryMu.RLock()
	handlers := make([]device.TelemetryHandler, len(b.telemetry[deviceID]))
	copy(handlers, b.telemetry[deviceID])
	b.telemetryMu.RUnlock()

	for _, handler := range handlers {
		handler(reading)
	}
	return nil
}

// newCorrelationID builds a short unique ID with the given prefix.
func newCorrelationID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// Compile-time check that Bridge satisfies the device channel contract.
var _ device.Channel = (*Bridge)(nil)
