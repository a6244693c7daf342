package access

import (
	"strings"
	"time"
)

// PermissionType is the access level stored on a permission record.
// It is a closed enum; WRITE is a superset of READ, expressed through
// the capability mirror rather than extra rows.
type PermissionType string

const (
	PermissionRead  PermissionType = "read"
	PermissionWrite PermissionType = "write"
)

// ParsePermissionType normalises and validates a permission type string.
func ParsePermissionType(s string) (PermissionType, bool) {
	switch PermissionType(strings.ToLower(strings.TrimSpace(s))) {
	case PermissionRead:
		return PermissionRead, true
	case PermissionWrite:
		return PermissionWrite, true
	default:
		return "", false
	}
}

// Capability is an atomic mirrored grant held by a user against a
// specific component. The resolver consults capabilities, never
// permission rows directly.
type Capability string

const (
	CapabilityView   Capability = "view"
	CapabilityChange Capability = "change"
)

// CapabilitiesFor returns the capability set mirrored for a permission
// type: WRITE grants view+change, READ grants view only.
func CapabilitiesFor(pt PermissionType) []Capability {
	if pt == PermissionWrite {
		return []Capability{CapabilityView, CapabilityChange}
	}
	return []Capability{CapabilityView}
}

// RequiredCapability maps the operation being attempted to the
// capability that must be present.
func RequiredCapability(pt PermissionType) Capability {
	if pt == PermissionWrite {
		return CapabilityChange
	}
	return CapabilityView
}

// Permission is a stored (component, user) grant, the source of truth
// from which capabilities are derived.
type Permission struct {
	ID             string         `json:"id"`
	ComponentID    string         `json:"component_id"`
	UserID         string         `json:"user_id"`
	PermissionType PermissionType `json:"permission_type"`
	GrantedBy      *string        `json:"granted_by,omitempty"`
	ValidUntil     *time.Time     `json:"valid_until,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Expired reports whether the grant has lapsed at the given instant.
func (p *Permission) Expired(now time.Time) bool {
	return p.ValidUntil != nil && !p.ValidUntil.After(now)
}

// GrantItem reports one component successfully granted in a bulk call.
type GrantItem struct {
	ComponentType  string         `json:"component_type"`
	ComponentName  string         `json:"component_name"`
	Status         string         `json:"status"` // "created" or "updated"
	PermissionType PermissionType `json:"permission_type"`
}

// GrantFailure reports one component that failed during a bulk grant.
// Failures are response data, not errors: sibling components still
// succeed.
type GrantFailure struct {
	ComponentType string `json:"component_type"`
	ComponentName string `json:"component_name"`
	Error         string `json:"error"`
}

// GrantResult aggregates a bulk grant. Both lists are always present,
// even when empty.
type GrantResult struct {
	Message string         `json:"message"`
	Granted []GrantItem    `json:"granted"`
	Failed  []GrantFailure `json:"failed"`
}

// RevokedItem reports one component whose permission was removed,
// including the level the user held before the revoke.
type RevokedItem struct {
	ComponentType  string         `json:"component_type"`
	ComponentName  string         `json:"component_name"`
	PermissionType PermissionType `json:"permission_type"`
}

// RevokeResult aggregates a bulk revoke.
type RevokeResult struct {
	Revoked []RevokedItem `json:"revoked"`
	Message string        `json:"message"`
}

// PermissionDetail is one entry in a grouped permission listing.
type PermissionDetail struct {
	ComponentType  string         `json:"component_type"`
	ComponentName  string         `json:"component_name"`
	PermissionType PermissionType `json:"permission_type"`
	ValidUntil     *time.Time     `json:"valid_until"`
}

// UserPermissions groups a user's permission details for one vehicle.
type UserPermissions struct {
	Username    string             `json:"username"`
	Permissions []PermissionDetail `json:"permissions"`
}

// AccessedVehicle is a vehicle the current user holds at least one
// permission on, with the granted component permissions.
type AccessedVehicle struct {
	VIN         string             `json:"vin"`
	Nickname    *string            `json:"nickname,omitempty"`
	Permissions []PermissionDetail `json:"permissions"`
}
