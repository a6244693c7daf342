package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAccessDecision records the outcome of one access check.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Decision volume maps directly to vehicle activity, so this series is
// the main capacity-planning signal.
//
// Parameters:
//   - vin: The vehicle the check was made against
//   - permissionType: The level requested ("read" or "write")
//   - allowed: Whether the resolver granted the operation
//   - ownerBypass: Whether the decision came from the owner rule
//
// Example:
//
//	client.WriteAccessDecision("WBA12345678901234", "write", true, false)
func (c *Client) WriteAccessDecision(vin, permissionType string, allowed, ownerBypass bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"access_decisions",
		map[string]string{
			"vin":             vin,
			"permission_type": permissionType,
		},
		map[string]interface{}{
			"allowed":      allowed,
			"owner_bypass": ownerBypass,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePermissionEvent records a permission change (grant, revoke, expiry).
//
// Parameters:
//   - eventType: "granted", "revoked" or "expired"
//   - vin: The vehicle the change applies to
//   - count: Number of components affected in the operation
func (c *Client) WritePermissionEvent(eventType, vin string, count int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"permission_events",
		map[string]string{
			"event": eventType,
			"vin":   vin,
		},
		map[string]interface{}{
			"count": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteComponentStatus records a component status change.
//
// Parameters:
//   - vin: The vehicle the component belongs to
//   - componentID: Component identifier
//   - status: New status value in [0.0, 1.0]
func (c *Client) WriteComponentStatus(vin, componentID string, status float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"component_status",
		map[string]string{
			"vin":          vin,
			"component_id": componentID,
		},
		map[string]interface{}{
			"status": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
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
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
