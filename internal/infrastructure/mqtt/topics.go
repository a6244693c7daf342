package mqtt

import "fmt"

// Topic prefixes for the Carlink MQTT hierarchy.
//
// Access events use the scheme: carlink/access/{vin}/{event}
// Vehicle telemetry uses: carlink/vehicle/{vin}/...
const (
	// TopicPrefix is the base for all Carlink topics.
	TopicPrefix = "carlink"

	// TopicPrefixAccess is the base for permission change events.
	TopicPrefixAccess = "carlink/access"

	// TopicPrefixVehicle is the base for vehicle-scoped topics.
	TopicPrefixVehicle = "carlink/vehicle"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "carlink/system"
)

// Topics provides builders for Carlink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.AccessEvent("WBA12345678901234", "granted")
//	// Returns: "carlink/access/WBA12345678901234/granted"
type Topics struct{}

// AccessEvent returns the topic for a permission change on a vehicle.
//
// Example: carlink/access/WBA12345678901234/granted
func (Topics) AccessEvent(vin, event string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixAccess, vin, event)
}

// VehicleOwnership returns the topic for ownership changes.
//
// Example: carlink/vehicle/WBA12345678901234/ownership
func (Topics) VehicleOwnership(vin string) string {
	return fmt.Sprintf("%s/%s/ownership", TopicPrefixVehicle, vin)
}

// ComponentStatus returns the topic for component status updates.
//
// Example: carlink/vehicle/WBA12345678901234/component/cmp-abc123/status
func (Topics) ComponentStatus(vin, componentID string) string {
	return fmt.Sprintf("%s/%s/component/%s/status", TopicPrefixVehicle, vin, componentID)
}

// SystemStatus returns the system status topic. Used for the online
// payload and the LWT.
//
// Example: carlink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllAccessEvents returns a pattern matching every permission change.
//
// Pattern: carlink/access/+/+
func (Topics) AllAccessEvents() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixAccess)
}

// VehicleAccessEvents returns a pattern matching all permission changes
// on one vehicle.
//
// Pattern: carlink/access/WBA12345678901234/+
func (Topics) VehicleAccessEvents(vin string) string {
	return fmt.Sprintf("%s/%s/+", TopicPrefixAccess, vin)
}

// AllComponentStatus returns a pattern matching every component status
// update.
//
// Pattern: carlink/vehicle/+/component/+/status
func (Topics) AllComponentStatus() string {
	return fmt.Sprintf("%s/+/component/+/status", TopicPrefixVehicle)
}

// AllTopics returns a pattern matching all Carlink topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: carlink/#
func (Topics) AllTopics() string {
	return "carlink/#"
}
