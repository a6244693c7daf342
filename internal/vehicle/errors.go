package vehicle

import "errors"

// Sentinel errors for vehicle and component operations.
var (
	ErrInvalidVIN        = errors.New("invalid vehicle identification number format")
	ErrVehicleNotFound   = errors.New("vehicle not found")
	ErrVehicleExists     = errors.New("vehicle already registered")
	ErrAlreadyOwned      = errors.New("vehicle already has an owner")
	ErrAlreadyOwner      = errors.New("user is already the owner")
	ErrNotOwner          = errors.New("user is not the owner of this vehicle")
	ErrTypeNotFound      = errors.New("component type not found")
	ErrTypeExists        = errors.New("component type already exists")
	ErrTypeInUse         = errors.New("component type is referenced by components")
	ErrComponentNotFound = errors.New("component not found")
	ErrComponentExists   = errors.New("component already exists for this vehicle")
	ErrInvalidStatus     = errors.New("component status must be between 0 and 1")
)
