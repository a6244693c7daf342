// Package mqtt provides MQTT publishing for Carlink Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Carlink publishes permission change events and component status
// updates for external consumers: vehicle gateways that need to learn
// about revocations promptly, and fleet dashboards. The engine never
// consumes broker traffic, so the client is publish-only; access
// decisions are made from the database, not from messages.
//
//	Carlink Core → MQTT Broker → Vehicle gateways / dashboards
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.AccessEvent("WBA12345678901234", "revoked")
//	client.Publish(topic, payload, 1, false)
package mqtt
