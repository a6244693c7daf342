package access

import "context"

// Event types emitted by the permission service.
const (
	EventGranted = "granted"
	EventRevoked = "revoked"
	EventExpired = "expired"
)

// Event describes a permission change on one component. Events feed
// external sinks (MQTT, metrics); they are never part of the decision
// path.
type Event struct {
	Type           string
	VIN            string
	Username       string
	ComponentType  string
	ComponentName  string
	PermissionType PermissionType
}

// EventSink receives permission change events. Implementations must
// not block the caller for long and must swallow their own delivery
// failures; a broken sink never fails a grant.
type EventSink interface {
	Publish(ctx context.Context, evt Event)
}

// NopSink discards all events. Used when no broker is configured.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(context.Context, Event) {}
