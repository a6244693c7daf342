package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carlink/carlink-core/internal/auth"
	"github.com/carlink/carlink-core/internal/infrastructure/logging"
	"github.com/carlink/carlink-core/internal/vehicle"
)

// userLookup is the slice of the user repository the service needs.
type userLookup interface {
	GetByID(ctx context.Context, id string) (*auth.User, error)
	GetByUsername(ctx context.Context, username string) (*auth.User, error)
}

// Service orchestrates bulk permission operations across the components
// of a vehicle. Only the vehicle owner may grant or revoke; inside a
// bulk call each component succeeds or fails on its own, so one bad
// component never rolls back its siblings.
type Service struct {
	vehicles   vehicle.Repository
	components vehicle.ComponentRepository
	users      userLookup
	store      *Store
	sink       EventSink
	logger     *logging.Logger
}

// NewService creates a permission service. Pass NopSink when no event
// broker is configured.
func NewService(vehicles vehicle.Repository, components vehicle.ComponentRepository, users userLookup, store *Store, sink EventSink, logger *logging.Logger) *Service {
	return &Service{
		vehicles:   vehicles,
		components: components,
		users:      users,
		store:      store,
		sink:       sink,
		logger:     logger.With("component", "access"),
	}
}

// GrantBulk grants pt-level access on every component of the vehicle
// matching the filter to the named user. The actor must own the
// vehicle. Component-level failures, a lapsed valid_until included,
// are collected in the result rather than aborting the call.
func (s *Service) GrantBulk(ctx context.Context, actorID, vin, username string, pt PermissionType, validUntil *time.Time, filter vehicle.Filter) (*GrantResult, error) {
	if pt != PermissionRead && pt != PermissionWrite {
		return nil, ErrInvalidPermission
	}

	owner, err := s.requireOwner(ctx, vin, actorID)
	if err != nil {
		return nil, err
	}

	grantee, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if owner != nil && *owner == grantee.ID {
		return nil, ErrGranteeIsOwner
	}

	components, err := s.components.ListFiltered(ctx, vin, filter)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, ErrNoMatchingComponents
	}

	result := &GrantResult{
		Message: fmt.Sprintf("Processed access request for user %s", grantee.Username),
		Granted: []GrantItem{},
		Failed:  []GrantFailure{},
	}
	for _, c := range components {
		_, created, err := s.store.Upsert(ctx, c.ID, grantee.ID, pt, &actorID, validUntil)
		if err != nil {
			result.Failed = append(result.Failed, GrantFailure{
				ComponentType: c.TypeName,
				ComponentName: c.Name,
				Error:         err.Error(),
			})
			continue
		}

		status := "updated"
		if created {
			status = "created"
		}
		result.Granted = append(result.Granted, GrantItem{
			ComponentType:  c.TypeName,
			ComponentName:  c.Name,
			Status:         status,
			PermissionType: pt,
		})
		s.sink.Publish(ctx, Event{
			Type:           EventGranted,
			VIN:            vin,
			Username:       grantee.Username,
			ComponentType:  c.TypeName,
			ComponentName:  c.Name,
			PermissionType: pt,
		})
	}

	s.logger.Info("bulk grant processed",
		"vin", vin,
		"username", grantee.Username,
		"granted", len(result.Granted),
		"failed", len(result.Failed))
	return result, nil
}

// RevokeBulk removes the named user's permissions on every component of
// the vehicle matching the filter. The actor must own the vehicle.
// Components the user held no permission on are simply absent from the
// revoked list; a user with nothing to revoke gets an empty one.
func (s *Service) RevokeBulk(ctx context.Context, actorID, vin, username string, filter vehicle.Filter) (*RevokeResult, error) {
	if _, err := s.requireOwner(ctx, vin, actorID); err != nil {
		return nil, err
	}

	grantee, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	components, err := s.components.ListFiltered(ctx, vin, filter)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, ErrNoMatchingComponents
	}

	result := &RevokeResult{
		Revoked: []RevokedItem{},
		Message: fmt.Sprintf("Permissions revoked for user %s on vehicle %s.", grantee.Username, vin),
	}
	for _, c := range components {
		perm, err := s.store.Get(ctx, c.ID, grantee.ID)
		if err != nil {
			if errors.Is(err, ErrPermissionNotFound) {
				continue
			}
			return nil, err
		}
		if err := s.store.Delete(ctx, c.ID, grantee.ID); err != nil {
			if errors.Is(err, ErrPermissionNotFound) {
				continue
			}
			return nil, err
		}
		result.Revoked = append(result.Revoked, RevokedItem{
			ComponentType:  c.TypeName,
			ComponentName:  c.Name,
			PermissionType: perm.PermissionType,
		})
		s.sink.Publish(ctx, Event{
			Type:           EventRevoked,
			VIN:            vin,
			Username:       grantee.Username,
			ComponentType:  c.TypeName,
			ComponentName:  c.Name,
			PermissionType: perm.PermissionType,
		})
	}

	s.logger.Info("bulk revoke processed",
		"vin", vin,
		"username", grantee.Username,
		"revoked", len(result.Revoked))
	return result, nil
}

// Overview lists who can do what on a vehicle, grouped by username and
// narrowed by the filter. Owner-only; the owner's own entry is
// synthesised, grantees appear with their stored permissions.
func (s *Service) Overview(ctx context.Context, actorID, vin string, filter vehicle.Filter) ([]UserPermissions, error) {
	owner, err := s.vehicles.GetOwner(ctx, vin)
	if err != nil {
		return nil, err
	}
	if owner == nil || *owner != actorID {
		return nil, ErrNotOwner
	}

	grouped, err := s.store.ListForVehicle(ctx, vin, filter)
	if err != nil {
		return nil, err
	}

	ownerEntry, err := s.ownerEntry(ctx, vin, *owner, filter)
	if err != nil {
		return nil, err
	}
	if ownerEntry != nil {
		grouped = append([]UserPermissions{*ownerEntry}, grouped...)
	}
	if len(grouped) == 0 {
		return nil, ErrNoMatchingComponents
	}
	return grouped, nil
}

// ForUser lists one user's permission details on a vehicle. Owner-only,
// grantees included. When the named user is the owner, the entry is
// synthesised with write access and no expiry.
func (s *Service) ForUser(ctx context.Context, actorID, vin, username string, filter vehicle.Filter) (*UserPermissions, error) {
	owner, err := s.vehicles.GetOwner(ctx, vin)
	if err != nil {
		return nil, err
	}
	if owner == nil || *owner != actorID {
		return nil, ErrNotOwner
	}

	target, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if *owner == target.ID {
		entry, err := s.ownerEntry(ctx, vin, *owner, filter)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, ErrNoPermissionsFound
		}
		return entry, nil
	}

	details, err := s.store.ListForUser(ctx, vin, target.ID, filter)
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, ErrNoPermissionsFound
	}
	return &UserPermissions{Username: target.Username, Permissions: details}, nil
}

// AccessedVehicles lists the vehicles the user has been granted access
// to, excluding vehicles they own.
func (s *Service) AccessedVehicles(ctx context.Context, userID string) ([]AccessedVehicle, error) {
	return s.store.ListAccessedVehicles(ctx, userID)
}

// ownerEntry synthesises the owner's listing: write access to every
// matching component, no expiry. Owners hold no permission rows, the
// bypass makes them implicit.
func (s *Service) ownerEntry(ctx context.Context, vin, ownerID string, filter vehicle.Filter) (*UserPermissions, error) {
	components, err := s.components.ListFiltered(ctx, vin, filter)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, nil
	}

	ownerUser, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	entry := &UserPermissions{Username: ownerUser.Username}
	for _, c := range components {
		entry.Permissions = append(entry.Permissions, PermissionDetail{
			ComponentType:  c.TypeName,
			ComponentName:  c.Name,
			PermissionType: PermissionWrite,
		})
	}
	return entry, nil
}

// requireOwner verifies the actor owns the vehicle and returns the
// owner ID. Missing vehicles surface as vehicle.ErrVehicleNotFound.
func (s *Service) requireOwner(ctx context.Context, vin, actorID string) (*string, error) {
	owner, err := s.vehicles.GetOwner(ctx, vin)
	if err != nil {
		return nil, err
	}
	if owner == nil || *owner != actorID {
		return nil, ErrNotOwner
	}
	return owner, nil
}
