package access

import (
	"context"
	"errors"
	"time"
)

// ownerLookup is the slice of the vehicle repository the resolver needs.
type ownerLookup interface {
	GetOwner(ctx context.Context, vin string) (*string, error)
}

// Resolver answers the single runtime question of the engine: may this
// user perform this operation on this component right now.
//
// The decision order is fixed. The vehicle owner is granted everything
// without consulting grants. Everyone else needs the mirrored
// capability for the operation, and the backing permission record must
// not have lapsed. Lapsed grants deny access immediately even before
// the sweeper removes them.
type Resolver struct {
	vehicles ownerLookup
	caps     *CapabilityRepository
	store    *Store
}

// NewResolver creates an access resolver.
func NewResolver(vehicles ownerLookup, caps *CapabilityRepository, store *Store) *Resolver {
	return &Resolver{vehicles: vehicles, caps: caps, store: store}
}

// CanAccess reports whether userID may perform a pt-level operation on
// the component. A write check requires the change capability; read
// requires view. Unknown vehicles and absent grants resolve to false,
// not to an error.
func (r *Resolver) CanAccess(ctx context.Context, vin, componentID, userID string, pt PermissionType) (bool, error) {
	owner, err := r.vehicles.GetOwner(ctx, vin)
	if err != nil {
		return false, err
	}
	if owner != nil && *owner == userID {
		return true, nil
	}

	held, err := r.caps.Has(ctx, userID, componentID, RequiredCapability(pt))
	if err != nil {
		return false, err
	}
	if !held {
		return false, nil
	}

	perm, err := r.store.Get(ctx, componentID, userID)
	if err != nil {
		if errors.Is(err, ErrPermissionNotFound) {
			// Capability without a backing record should not happen;
			// fail closed if it does.
			return false, nil
		}
		return false, err
	}
	return !perm.Expired(time.Now()), nil
}
