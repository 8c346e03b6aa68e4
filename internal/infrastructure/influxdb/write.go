package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCanvasMetric writes a single device telemetry measurement.
//
// This is the primary method for recording canvas telemetry. The write
// is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - device: Friendly device name (e.g., "hallway-frame")
//   - measurement: The metric name (e.g., "battery_percent", "rssi_dbm")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteCanvasMetric("hallway-frame", "battery_percent", 82)
//	client.WriteCanvasMetric("hallway-frame", "free_storage_bytes", 1.2e9)
func (c *Client) WriteCanvasMetric(device string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"canvas_metrics",
		map[string]string{
			"device":      device,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSyncRun writes counters for a completed gallery sync run.
//
// Each run produces one point tagged by device and gallery, carrying
// the examined/uploaded/skipped/failed counts so dashboards can track
// sync churn over time.
func (c *Client) WriteSyncRun(device, gallery string, examined, uploaded, skipped, failed int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sync_runs",
		map[string]string{
			"device":  device,
			"gallery": gallery,
		},
		map[string]interface{}{
			"examined": examined,
			"uploaded": uploaded,
			"skipped":  skipped,
			"failed":   failed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
