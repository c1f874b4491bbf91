// Package mqtt wraps paho.mqtt.golang for the core's broker link.
//
// MQTT is the only transport between the core and the device fleet:
//
//	FleetGuard Core <-> broker <-> device fleet
//
// The client keeps itself connected (capped-backoff reconnect),
// replays subscriptions after every reconnect, and announces core
// liveness on fleetguard/system/status, with a broker-side last will
// covering crashes. Handlers run on paho goroutines behind a panic
// guard.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.AllTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleReading(topic, payload)
//	    })
//
// TLS (cfg.Broker.TLS) should be on anywhere outside local
// development; payloads are otherwise plaintext to the broker.
package mqtt
