// Package influxdb is the optional time-series sink for fleet
// metrics: device telemetry, interlock violations, offline queue
// depth and energy consumption.
//
// It satisfies the MetricsSink interfaces of the resilience manager
// and the anomaly detector. Writes are batched and non-blocking, and
// every writer silently drops points while disconnected, so metrics
// can never stall a command or a safety shutoff; batch failures come
// back through SetOnError. When influxdb.enabled is false in
// config.yaml, Connect returns ErrDisabled and the core runs without
// a sink.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    client = nil
//	}
//	...
//	client.WriteDeviceMetric("plug-01", "power_watts", 23.0)
package influxdb
