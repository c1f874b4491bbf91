package mqttdev

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fleetguard-core/internal/device"
	"github.com/nerrad567/fleetguard-core/internal/infrastructure/mqtt"
)

// =============================================================================
// Mock MQTT client
// =============================================================================

type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockMQTT is a scriptable in-memory MQTT client.
// onPublish runs synchronously inside Publish, which lets tests script
// the fleet side replying to a request.
type mockMQTT struct {
	mu           sync.Mutex
	published    []publishedMsg
	subs         map[string]mqtt.MessageHandler
	onPublish    func(topic string, payload []byte)
	publishErr   error
	subscribeErr error
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{subs: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	m.published = append(m.published, publishedMsg{topic, payload, qos, retained})
	cb := m.onPublish
	err := m.publishErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if cb != nil {
		cb(topic, payload)
	}
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subs[topic] = handler
	return nil
}

func (m *mockMQTT) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, topic)
	return nil
}

func (m *mockMQTT) IsConnected() bool { return true }

// deliver routes a message to the first matching subscription.
func (m *mockMQTT) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()

	m.mu.Lock()
	var handler mqtt.MessageHandler
	for filter, h := range m.subs {
		if topicMatches(filter, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()

	if handler == nil {
		t.Fatalf("no subscription matches topic %q", topic)
	}
	if err := handler(topic, payload); err != nil {
		t.Fatalf("handler(%q) error = %v", topic, err)
	}
}

func (m *mockMQTT) publishedTo(prefix string) []publishedMsg {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []publishedMsg
	for _, p := range m.published {
		if strings.HasPrefix(p.topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func (m *mockMQTT) subscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// topicMatches implements MQTT filter matching for '+' and '#'.
func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")

	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

// =============================================================================
// Test helpers
// =============================================================================

func newTestBridge(t *testing.T, mock *mockMQTT) *Bridge {
	t.Helper()

	b, err := NewBridge(Options{
		Client:         mock,
		RequestTimeout: 500 * time.Millisecond,
		AckTimeout:     500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return b
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// respondTo scripts the mock to answer requests of the given kind.
func respondTo(t *testing.T, mock *mockMQTT, kind string, response any) {
	t.Helper()

	prefix := "fleetguard/request/" + kind + "/"
	mock.onPublish = func(topic string, _ []byte) {
		if !strings.HasPrefix(topic, prefix) {
			return
		}
		requestID := topic[strings.LastIndex(topic, "/")+1:]
		respTopic := mqtt.Topics{}.Response(kind, requestID)
		mock.deliver(t, respTopic, mustJSON(t, response))
	}
}

// =============================================================================
// Construction and lifecycle
// =============================================================================

func TestNewBridge_RequiresClient(t *testing.T) {
	if _, err := NewBridge(Options{}); err == nil {
		t.Fatal("NewBridge() should reject nil client")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	if err := b.Start(); err != nil {
		t.Errorf("second Start() error = %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	if mock.subscriptionCount() != 0 {
		t.Errorf("subscriptions after Stop() = %d, want 0", mock.subscriptionCount())
	}
}

func TestOperations_NotStarted(t *testing.T) {
	mock := newMockMQTT()
	b, err := NewBridge(Options{Client: mock})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	ctx := context.Background()

	if err := b.SendCommand(ctx, "plug-01", device.Command{Action: device.ActionTurnOn}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("SendCommand() error = %v, want ErrNotStarted", err)
	}
	if _, err := b.Discover(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Discover() error = %v, want ErrNotStarted", err)
	}
	if err := b.SubscribeTelemetry(ctx, "plug-01", func(device.Reading) {}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("SubscribeTelemetry() error = %v, want ErrNotStarted", err)
	}
}

// =============================================================================
// Register
// =============================================================================

func TestRegister_RoundTrip(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	want := &device.Device{
		ID:           "plug-01",
		Type:         device.DeviceTypeSmartPlug,
		Capabilities: []device.Capability{device.CapOnOff, device.CapPowerRead},
	}
	respondTo(t, mock, kindRegister, RegisterResponse{Device: want})

	got, err := b.Register(context.Background(), "plug-01", device.DeviceTypeSmartPlug)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got.ID != want.ID || got.Type != want.Type {
		t.Errorf("Register() = %+v, want %+v", got, want)
	}
	if len(got.Capabilities) != 2 {
		t.Errorf("Register() capabilities = %v, want 2 entries", got.Capabilities)
	}

	reqs := mock.publishedTo("fleetguard/request/register/")
	if len(reqs) != 1 {
		t.Fatalf("register requests published = %d, want 1", len(reqs))
	}
	var req RegisterRequest
	if err := json.Unmarshal(reqs[0].payload, &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if req.DeviceID != "plug-01" || req.DeviceType != device.DeviceTypeSmartPlug {
		t.Errorf("request = %+v", req)
	}
}

func TestRegister_RemoteError(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	respondTo(t, mock, kindRegister, RegisterResponse{Error: "duplicate device"})

	_, err := b.Register(context.Background(), "plug-01", device.DeviceTypeSmartPlug)
	if !errors.Is(err, ErrRemoteFault) {
		t.Errorf("Register() error = %v, want ErrRemoteFault", err)
	}
	if err == nil || !strings.Contains(err.Error(), "duplicate device") {
		t.Errorf("Register() error = %v, want remote message included", err)
	}
}

func TestRegister_MissingDevice(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	respondTo(t, mock, kindRegister, RegisterResponse{})

	_, err := b.Register(context.Background(), "plug-01", device.DeviceTypeSmartPlug)
	if !errors.Is(err, ErrBadResponse) {
		t.Errorf("Register() error = %v, want ErrBadResponse", err)
	}
}

// =============================================================================
// Discover and GetStatus
// =============================================================================

func TestDiscover_RoundTrip(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	respondTo(t, mock, kindDiscover, DiscoverResponse{Devices: []device.Device{
		{ID: "plug-01", Type: device.DeviceTypeSmartPlug},
		{ID: "hvac-01", Type: device.DeviceTypeHVACUnit},
	}})

	devices, err := b.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Discover() returned %d devices, want 2", len(devices))
	}
	if devices[0].ID != "plug-01" || devices[1].ID != "hvac-01" {
		t.Errorf("Discover() = %v", devices)
	}
}

func TestDiscover_Timeout(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)
	b.requestTimeout = 20 * time.Millisecond

	_, err := b.Discover(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Discover() error = %v, want ErrTimeout", err)
	}
}

func TestGetStatus_RoundTrip(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	respondTo(t, mock, kindStatus, StatusResponse{Status: &device.Status{
		DeviceID:   "plug-01",
		Online:     true,
		PowerWatts: 42.5,
	}})

	status, err := b.GetStatus(context.Background(), "plug-01")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.DeviceID != "plug-01" || !status.Online || status.PowerWatts != 42.5 {
		t.Errorf("GetStatus() = %+v", status)
	}
}

func TestGetStatus_ContextCancelled(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.GetStatus(ctx, "plug-01")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetStatus() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// SendCommand
// =============================================================================

// ackCommands scripts the mock to ack every published command.
func ackCommands(t *testing.T, mock *mockMQTT, success bool, reason string) {
	t.Helper()

	mock.onPublish = func(topic string, payload []byte) {
		if !strings.HasPrefix(topic, "fleetguard/command/") {
			return
		}
		var msg CommandMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Errorf("unmarshal command: %v", err)
			return
		}
		deviceID := topic[strings.LastIndex(topic, "/")+1:]
		ackTopic := mqtt.Topics{}.DeviceAck(deviceID)
		mock.deliver(t, ackTopic, mustJSON(t, AckMessage{
			CommandID: msg.ID,
			Success:   success,
			Error:     reason,
		}))
	}
}

func TestSendCommand_Acked(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)
	ackCommands(t, mock, true, "")

	cmd := device.Command{Action: device.ActionSetValue, Params: map[string]any{"value": 50.0}}
	if err := b.SendCommand(context.Background(), "plug-01", cmd); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	sent := mock.publishedTo("fleetguard/command/plug-01")
	if len(sent) != 1 {
		t.Fatalf("commands published = %d, want 1", len(sent))
	}
	var msg CommandMessage
	if err := json.Unmarshal(sent[0].payload, &msg); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	if msg.Action != device.ActionSetValue {
		t.Errorf("command action = %q, want set_value", msg.Action)
	}
	if msg.ID == "" {
		t.Error("command ID should not be empty")
	}
}

func TestSendCommand_Rejected(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)
	ackCommands(t, mock, false, "relay stuck")

	err := b.SendCommand(context.Background(), "plug-01", device.Command{Action: device.ActionTurnOn})
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("SendCommand() error = %v, want ErrCommandRejected", err)
	}
	if !strings.Contains(err.Error(), "relay stuck") {
		t.Errorf("SendCommand() error = %v, want device reason included", err)
	}
}

func TestSendCommand_AckTimeout(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)
	b.ackTimeout = 20 * time.Millisecond

	err := b.SendCommand(context.Background(), "plug-01", device.Command{Action: device.ActionTurnOn})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("SendCommand() error = %v, want ErrTimeout", err)
	}
}

// =============================================================================
// Telemetry
// =============================================================================

func TestSubscribeTelemetry_FansOut(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	var mu sync.Mutex
	var got []device.Reading
	handler := func(r device.Reading) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	}

	ctx := context.Background()
	if err := b.SubscribeTelemetry(ctx, "plug-01", handler); err != nil {
		t.Fatalf("SubscribeTelemetry() error = %v", err)
	}
	if err := b.SubscribeTelemetry(ctx, "plug-01", handler); err != nil {
		t.Fatalf("second SubscribeTelemetry() error = %v", err)
	}

	reading := device.Reading{
		DeviceID:  "plug-01",
		Metric:    "power_watts",
		Value:     18.2,
		Timestamp: time.Now().UTC(),
	}
	mock.deliver(t, mqtt.Topics{}.DeviceTelemetry("plug-01"), mustJSON(t, reading))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("handlers invoked %d times, want 2", len(got))
	}
	if got[0].Metric != "power_watts" || got[0].Value != 18.2 {
		t.Errorf("reading = %+v", got[0])
	}
}

func TestSubscribeTelemetry_SharedBrokerSubscription(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	// 4 lifecycle subscriptions: acks + 3 response kinds.
	base := mock.subscriptionCount()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := b.SubscribeTelemetry(ctx, "plug-01", func(device.Reading) {}); err != nil {
			t.Fatalf("SubscribeTelemetry() error = %v", err)
		}
	}

	if mock.subscriptionCount() != base+1 {
		t.Errorf("broker subscriptions = %d, want %d", mock.subscriptionCount(), base+1)
	}
}

func TestSubscribeTelemetry_FillsMissingFields(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	var mu sync.Mutex
	var got device.Reading
	err := b.SubscribeTelemetry(context.Background(), "plug-01", func(r device.Reading) {
		mu.Lock()
		got = r
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("SubscribeTelemetry() error = %v", err)
	}

	// Device ID and timestamp omitted from payload.
	mock.deliver(t, mqtt.Topics{}.DeviceTelemetry("plug-01"),
		[]byte(`{"metric":"power_watts","value":5.5}`))

	mu.Lock()
	defer mu.Unlock()
	if got.DeviceID != "plug-01" {
		t.Errorf("reading device ID = %q, want plug-01", got.DeviceID)
	}
	if got.Timestamp.IsZero() {
		t.Error("reading timestamp should be filled in")
	}
}

// =============================================================================
// Handler edge cases
// =============================================================================

func TestHandleAck_Malformed(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	if err := b.handleAck("fleetguard/ack/plug-01", []byte("{not json")); err == nil {
		t.Error("handleAck() should reject malformed payload")
	}
	if err := b.handleAck("fleetguard/ack/plug-01", []byte(`{"success":true}`)); err == nil {
		t.Error("handleAck() should reject ack without command ID")
	}
}

func TestDeliver_DuplicateReply(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	ch := b.addPending("req-dup")
	defer b.removePending("req-dup")

	if !b.deliver("req-dup", []byte("first")) {
		t.Error("first deliver should succeed")
	}
	if b.deliver("req-dup", []byte("second")) {
		t.Error("duplicate deliver should be dropped")
	}

	payload := <-ch
	if string(payload) != "first" {
		t.Errorf("payload = %q, want first reply", payload)
	}
}

func TestDeliver_NoWaiter(t *testing.T) {
	mock := newMockMQTT()
	b := newTestBridge(t, mock)

	// Unmatched replies are dropped without error.
	if err := b.handleResponse("fleetguard/response/status/req-unknown", []byte("{}")); err != nil {
		t.Errorf("handleResponse() error = %v", err)
	}
	if b.deliver("cmd-unknown", []byte("{}")) {
		t.Error("deliver with no waiter should report false")
	}
}
