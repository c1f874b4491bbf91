package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fleetguard-core/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial broker handshake.
	connectTimeout = 10 * time.Second

	// opTimeout bounds every other blocking broker exchange: publish,
	// subscribe and unsubscribe.
	opTimeout = 5 * time.Second

	keepAlive = 60 * time.Second

	// disconnectQuiesceMs is how long Disconnect waits for in-flight
	// messages before dropping the TCP connection.
	disconnectQuiesceMs = 1000
)

// brokerOptions translates the mqtt section of config.yaml into paho
// client options: endpoint scheme from the TLS flag, credentials when
// set, clean sessions, capped-backoff auto-reconnect and a last will
// on the system status topic so the fleet learns when the core dies
// without a goodbye.
func brokerOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Start every session fresh; the core replays its own
	// subscriptions after each reconnect.
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	opts.SetWill(Topics{}.SystemStatus(),
		string(encodeStatus("offline", cfg.Broker.ClientID, "unexpected_disconnect")),
		1, true)

	return opts
}

// statusPayload announces core liveness on fleetguard/system/status.
// Retained, so late subscribers see the current state.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func encodeStatus(status, clientID, reason string) []byte {
	payload, _ := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}
