// Package mqttdev implements the device channel over MQTT.
//
// It translates the Channel operations (register, discover, status,
// command, telemetry) into MQTT publishes and subscriptions against the
// fleetguard topic tree:
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   FleetGuard    │   MQTT   │  Device Fleet   │
//	│      Core       │◄────────►│  (controller +  │
//	└─────────────────┘          │    devices)     │
//	                             └─────────────────┘
//
// # Message Flows
//
// Commands publish to fleetguard/command/{deviceID} and wait for an
// AckMessage on fleetguard/ack/{deviceID}, correlated by command ID.
//
// Register, discover, and status reads publish to
// fleetguard/request/{kind}/{requestID} and wait for the matching
// fleetguard/response/{kind}/{requestID}.
//
// Telemetry arrives on fleetguard/telemetry/{deviceID} and fans out to
// registered handlers.
//
// # Usage
//
//	bridge, err := mqttdev.NewBridge(mqttdev.Options{Client: mqttClient})
//	if err != nil {
//	    return err
//	}
//	if err := bridge.Start(); err != nil {
//	    return err
//	}
//	defer bridge.Stop()
//
//	err = bridge.SendCommand(ctx, "plug-01", device.Command{Action: device.ActionTurnOn})
//
// # Thread Safety
//
// All exported methods are safe for concurrent use from multiple
// goroutines.
package mqttdev
