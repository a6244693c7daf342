package access

import "errors"

// Sentinel errors for the access-control engine.
//
// The API layer maps these onto the HTTP taxonomy: validation failures
// to 400, ownership failures to 403, absent entities to 404. Per-item
// failures inside bulk operations never surface as errors; they are
// returned as structured response data.
var (
	ErrPastExpiry           = errors.New("valid_until must be in the future")
	ErrSelfGrant            = errors.New("granting user cannot be the permission holder")
	ErrGranteeIsOwner       = errors.New("cannot grant access to the vehicle owner")
	ErrInvalidPermission    = errors.New("permission_type must be read or write")
	ErrNotOwner             = errors.New("only the vehicle owner may manage permissions")
	ErrNoMatchingComponents = errors.New("no matching components found")
	ErrNoPermissionsFound   = errors.New("no permissions found for the specified criteria")
	ErrPermissionNotFound   = errors.New("permission record not found")
)
