package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carlink/carlink-core/internal/access"
)

// Logger is the slice of the logging package the sink needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// AccessEventSink publishes permission change events to the broker.
// Delivery failures are logged and swallowed; the broker is an
// observer of access decisions, never a participant.
type AccessEventSink struct {
	client *Client
	qos    byte
	logger Logger
}

// NewAccessEventSink creates a sink over a connected client.
func NewAccessEventSink(client *Client, qos byte, logger Logger) *AccessEventSink {
	return &AccessEventSink{client: client, qos: qos, logger: logger}
}

// accessEventPayload is the wire shape of a permission change event.
type accessEventPayload struct {
	VIN            string `json:"vin"`
	Username       string `json:"username"`
	ComponentType  string `json:"component_type"`
	ComponentName  string `json:"component_name"`
	PermissionType string `json:"permission_type,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Publish implements access.EventSink.
func (s *AccessEventSink) Publish(_ context.Context, evt access.Event) {
	payload, err := json.Marshal(accessEventPayload{
		VIN:            evt.VIN,
		Username:       evt.Username,
		ComponentType:  evt.ComponentType,
		ComponentName:  evt.ComponentName,
		PermissionType: string(evt.PermissionType),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Warn("marshalling access event", "error", err)
		return
	}

	topic := Topics{}.AccessEvent(evt.VIN, evt.Type)
	if err := s.client.Publish(topic, payload, s.qos, false); err != nil {
		s.logger.Warn("publishing access event",
			"topic", topic,
			"error", err)
	}
}
