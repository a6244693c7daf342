package vehicle

import "time"

// Vehicle represents a registered vehicle identified by its VIN.
// A vehicle has at most one owner at a time; ownership is mutated only
// by TakeOwnership/Disown, never by the permission engine.
type Vehicle struct {
	VIN       string    `json:"vin"`
	Nickname  *string   `json:"nickname,omitempty"`
	OwnerID   *string   `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComponentType is a catalog entry naming a kind of component (Engine,
// Door, Window). Types cannot be deleted while components reference them.
type ComponentType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Component is a named component of a specific vehicle, the identity
// anchor every permission grant references. (vehicle, type, name) is
// unique; name and type match case-insensitively.
type Component struct {
	ID        string    `json:"id"`
	VIN       string    `json:"vin"`
	TypeID    string    `json:"-"`
	TypeName  string    `json:"component_type"`
	Name      string    `json:"name"`
	Status    float64   `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter narrows a set of components within one vehicle by optional
// type name and component name. Empty fields match everything.
type Filter struct {
	TypeName string
	Name     string
}
