package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// All writers are fire-and-forget: points are dropped silently while
// disconnected and batched otherwise. Metrics must never block or
// fail a control path.

// emit queues one point for the next batch.
func (c *Client) emit(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

// WriteDeviceMetric records one telemetry reading, tagged by device
// and metric name (power_watts, temperature_c, ...).
func (c *Client) WriteDeviceMetric(deviceID, metric string, value float64) {
	c.emit("device_metrics",
		map[string]string{"device_id": deviceID, "measurement": metric},
		map[string]any{"value": value},
		time.Now())
}

// WriteAnomalyMetric records an interlock violation: the observed
// power draw alongside the threshold it exceeded.
func (c *Client) WriteAnomalyMetric(deviceID string, actualValue, threshold float64) {
	c.emit("anomalies",
		map[string]string{"device_id": deviceID},
		map[string]any{"actual_value": actualValue, "threshold": threshold},
		time.Now())
}

// WriteQueueDepth records the offline command queue depth as a gauge.
func (c *Client) WriteQueueDepth(depth int) {
	c.emit("command_queue", nil, map[string]any{"depth": depth}, time.Now())
}

// WriteEnergyMetric records power draw and, when known, cumulative
// consumption. Pass zero energyKWh to omit the field.
func (c *Client) WriteEnergyMetric(deviceID string, powerWatts, energyKWh float64) {
	fields := map[string]any{"power_watts": powerWatts}
	if energyKWh > 0 {
		fields["energy_kwh"] = energyKWh
	}
	c.emit("energy", map[string]string{"device_id": deviceID}, fields, time.Now())
}

// WritePoint records an arbitrary measurement. Tags index, so keep
// their cardinality low; values belong in fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.emit(measurement, tags, fields, time.Now())
}

// WritePointWithTime is WritePoint for late-arriving data that
// carries its own timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	c.emit(measurement, tags, fields, ts)
}
