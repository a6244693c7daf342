package mqtt

import (
	"errors"
	"testing"

	"github.com/carlink/carlink-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "carlink-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	if err := client.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}

	if err := client.Publish("carlink/test", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("QoS 3 error = %v, want ErrInvalidQoS", err)
	}

	big := make([]byte, maxPayloadSize+1)
	if err := client.Publish("carlink/test", big, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversize payload error = %v, want ErrPublishFailed", err)
	}

	if err := client.Publish("carlink/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish error = %v, want ErrNotConnected", err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)

	if got := opts.ClientID; got != "carlink-test" {
		t.Errorf("ClientID = %q, want carlink-test", got)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("TLS scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
}

func TestTopicBuilders(t *testing.T) {
	const vin = "WBA12345678901234"

	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name:     "AccessEvent",
			builder:  func() string { return Topics{}.AccessEvent(vin, "granted") },
			expected: "carlink/access/WBA12345678901234/granted",
		},
		{
			name:     "VehicleOwnership",
			builder:  func() string { return Topics{}.VehicleOwnership(vin) },
			expected: "carlink/vehicle/WBA12345678901234/ownership",
		},
		{
			name:     "ComponentStatus",
			builder:  func() string { return Topics{}.ComponentStatus(vin, "cmp-abc123") },
			expected: "carlink/vehicle/WBA12345678901234/component/cmp-abc123/status",
		},
		{
			name:     "SystemStatus",
			builder:  func() string { return Topics{}.SystemStatus() },
			expected: "carlink/system/status",
		},
		{
			name:     "AllAccessEvents",
			builder:  func() string { return Topics{}.AllAccessEvents() },
			expected: "carlink/access/+/+",
		},
		{
			name:     "VehicleAccessEvents",
			builder:  func() string { return Topics{}.VehicleAccessEvents(vin) },
			expected: "carlink/access/WBA12345678901234/+",
		},
		{
			name:     "AllComponentStatus",
			builder:  func() string { return Topics{}.AllComponentStatus() },
			expected: "carlink/vehicle/+/component/+/status",
		},
		{
			name:     "AllTopics",
			builder:  func() string { return Topics{}.AllTopics() },
			expected: "carlink/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder(); got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}
