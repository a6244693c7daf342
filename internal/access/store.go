package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carlink/carlink-core/internal/vehicle"
)

// Store persists permission records and keeps the capability mirror in
// step with them. Every mutation that touches a permission row rewrites
// the mirrored capabilities for that (user, component) pair inside the
// same transaction, so the resolver never observes a half-applied
// grant.
type Store struct {
	db   *sql.DB
	caps *CapabilityRepository
}

// NewStore creates a permission store over the given database.
func NewStore(db *sql.DB, caps *CapabilityRepository) *Store {
	return &Store{db: db, caps: caps}
}

// ExpiredGrant describes a lapsed permission removed by the sweeper.
type ExpiredGrant struct {
	VIN            string
	Username       string
	ComponentType  string
	ComponentName  string
	PermissionType PermissionType
}

// Upsert creates or overwrites the permission record for (component,
// user). At most one record exists per pair; re-granting replaces the
// permission type, grantor and expiry rather than adding a row. The
// returned bool is true when a new record was created.
//
// The capability mirror is recomputed from scratch, so a downgrade from
// write to read drops the change capability.
func (s *Store) Upsert(ctx context.Context, componentID, userID string, pt PermissionType, grantedBy *string, validUntil *time.Time) (*Permission, bool, error) {
	if pt != PermissionRead && pt != PermissionWrite {
		return nil, false, ErrInvalidPermission
	}
	if validUntil != nil && !validUntil.After(time.Now()) {
		return nil, false, ErrPastExpiry
	}
	if grantedBy != nil && *grantedBy == userID {
		return nil, false, ErrSelfGrant
	}

	ownerID, err := s.componentOwner(ctx, componentID)
	if err != nil {
		return nil, false, err
	}
	if ownerID != nil && *ownerID == userID {
		return nil, false, ErrGranteeIsOwner
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC()
	var expiry any
	if validUntil != nil {
		expiry = validUntil.UTC().Format(time.RFC3339)
	}

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM component_permissions WHERE component_id = ? AND user_id = ?`,
		componentID, userID).Scan(&existingID)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return nil, false, fmt.Errorf("checking existing permission: %w", err)
	}

	id := existingID
	if created {
		id = "prm-" + uuid.New().String()[:8]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO component_permissions (id, component_id, user_id, permission_type, granted_by, valid_until, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, componentID, userID, string(pt), nullStr(grantedBy), expiry,
			now.Format(time.RFC3339), now.Format(time.RFC3339))
		if err != nil {
			return nil, false, fmt.Errorf("inserting permission: %w", err)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE component_permissions
			 SET permission_type = ?, granted_by = ?, valid_until = ?, updated_at = ?
			 WHERE id = ?`,
			string(pt), nullStr(grantedBy), expiry, now.Format(time.RFC3339), id)
		if err != nil {
			return nil, false, fmt.Errorf("updating permission: %w", err)
		}
	}

	if err := s.caps.revokeAll(ctx, tx, userID, componentID); err != nil {
		return nil, false, err
	}
	for _, c := range CapabilitiesFor(pt) {
		if err := s.caps.grant(ctx, tx, userID, componentID, c); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing permission: %w", err)
	}

	perm, err := s.Get(ctx, componentID, userID)
	if err != nil {
		return nil, false, err
	}
	return perm, created, nil
}

// Get retrieves the permission record for (component, user).
func (s *Store) Get(ctx context.Context, componentID, userID string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, component_id, user_id, permission_type, granted_by, valid_until, created_at, updated_at
		 FROM component_permissions WHERE component_id = ? AND user_id = ?`,
		componentID, userID)
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("getting permission: %w", err)
	}
	return perm, nil
}

// Delete removes the permission record and its mirrored capabilities.
func (s *Store) Delete(ctx context.Context, componentID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx,
		`DELETE FROM component_permissions WHERE component_id = ? AND user_id = ?`,
		componentID, userID)
	if err != nil {
		return fmt.Errorf("deleting permission: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrPermissionNotFound
	}

	if err := s.caps.revokeAll(ctx, tx, userID, componentID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing revoke: %w", err)
	}
	return nil
}

// Revoke selectively removes mirrored capabilities from the grant for
// (component, user). Revoking both sides deletes the record outright,
// as does revoking the last capability the record carries. Revoking
// write on a write grant downgrades it to read.
func (s *Store) Revoke(ctx context.Context, componentID, userID string, revokeRead, revokeWrite bool) error {
	if !revokeRead && !revokeWrite {
		return nil
	}
	if revokeRead && revokeWrite {
		return s.Delete(ctx, componentID, userID)
	}

	perm, err := s.Get(ctx, componentID, userID)
	if err != nil {
		return err
	}

	// Revoking the read side of a read grant, or the write side of a
	// write grant whose view was already the only other capability,
	// leaves nothing behind.
	if revokeRead && perm.PermissionType == PermissionRead {
		return s.Delete(ctx, componentID, userID)
	}
	if revokeWrite && perm.PermissionType == PermissionRead {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC().Format(time.RFC3339)
	if revokeWrite {
		_, err = tx.ExecContext(ctx,
			`UPDATE component_permissions SET permission_type = ?, updated_at = ? WHERE id = ?`,
			string(PermissionRead), now, perm.ID)
		if err != nil {
			return fmt.Errorf("downgrading permission: %w", err)
		}
		if err := s.caps.revoke(ctx, tx, userID, componentID, CapabilityChange); err != nil {
			return err
		}
	} else {
		if err := s.caps.revoke(ctx, tx, userID, componentID, CapabilityView); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing partial revoke: %w", err)
	}
	return nil
}

// DeleteForComponent removes all permissions and capabilities attached
// to a component. Called before a component is deleted.
func (s *Store) DeleteForComponent(ctx context.Context, componentID string) error {
	return s.deleteWhere(ctx, "component_id = ?", componentID)
}

// DeleteForUser removes all permissions and capabilities held by a
// user. Called before a user account is deleted.
func (s *Store) DeleteForUser(ctx context.Context, userID string) error {
	return s.deleteWhere(ctx, "user_id = ?", userID)
}

// DeleteForVehicle removes all permissions and capabilities attached to
// any component of a vehicle. Called before a vehicle is deleted.
func (s *Store) DeleteForVehicle(ctx context.Context, vin string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx,
		`DELETE FROM component_capabilities WHERE component_id IN
		 (SELECT id FROM vehicle_components WHERE vin = ?)`, vin)
	if err != nil {
		return fmt.Errorf("deleting vehicle capabilities: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM component_permissions WHERE component_id IN
		 (SELECT id FROM vehicle_components WHERE vin = ?)`, vin)
	if err != nil {
		return fmt.Errorf("deleting vehicle permissions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing vehicle cleanup: %w", err)
	}
	return nil
}

func (s *Store) deleteWhere(ctx context.Context, cond string, arg any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM component_capabilities WHERE `+cond, arg); err != nil {
		return fmt.Errorf("deleting capabilities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM component_permissions WHERE `+cond, arg); err != nil {
		return fmt.Errorf("deleting permissions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cleanup: %w", err)
	}
	return nil
}

// ListForUser returns the permission details a user holds on one
// vehicle, optionally narrowed by component type and name. Results are
// in stable (type, name) order.
func (s *Store) ListForUser(ctx context.Context, vin, userID string, filter vehicle.Filter) ([]PermissionDetail, error) {
	query := `SELECT t.name, c.name, p.permission_type, p.valid_until
		 FROM component_permissions p
		 JOIN vehicle_components c ON c.id = p.component_id
		 JOIN component_types t ON t.id = c.component_type_id
		 WHERE c.vin = ? AND p.user_id = ?`
	args := []any{vin, userID}
	query, args = applyFilter(query, args, filter)
	query += ` ORDER BY t.name, c.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing user permissions: %w", err)
	}
	defer rows.Close()

	return scanDetails(rows)
}

// ListForVehicle returns every grant on a vehicle grouped by username,
// optionally narrowed by component type and name. The vehicle owner is
// not included; callers synthesise the owner's entry.
func (s *Store) ListForVehicle(ctx context.Context, vin string, filter vehicle.Filter) ([]UserPermissions, error) {
	query := `SELECT u.username, t.name, c.name, p.permission_type, p.valid_until
		 FROM component_permissions p
		 JOIN users u ON u.id = p.user_id
		 JOIN vehicle_components c ON c.id = p.component_id
		 JOIN component_types t ON t.id = c.component_type_id
		 WHERE c.vin = ?`
	args := []any{vin}
	query, args = applyFilter(query, args, filter)
	query += ` ORDER BY u.username, t.name, c.name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing vehicle permissions: %w", err)
	}
	defer rows.Close()

	var grouped []UserPermissions
	for rows.Next() {
		var username string
		detail, err := scanDetailColumns(rows, &username)
		if err != nil {
			return nil, err
		}
		if len(grouped) == 0 || grouped[len(grouped)-1].Username != username {
			grouped = append(grouped, UserPermissions{Username: username})
		}
		last := &grouped[len(grouped)-1]
		last.Permissions = append(last.Permissions, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vehicle permissions: %w", err)
	}
	return grouped, nil
}

// ListAccessedVehicles returns the vehicles a user holds at least one
// permission on, with the granted details per vehicle. Vehicles the
// user owns are excluded.
func (s *Store) ListAccessedVehicles(ctx context.Context, userID string) ([]AccessedVehicle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.vin, v.nickname, t.name, c.name, p.permission_type, p.valid_until
		 FROM component_permissions p
		 JOIN vehicle_components c ON c.id = p.component_id
		 JOIN vehicles v ON v.vin = c.vin
		 JOIN component_types t ON t.id = c.component_type_id
		 WHERE p.user_id = ? AND (v.owner_id IS NULL OR v.owner_id != ?)
		 ORDER BY v.vin, t.name, c.name`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("listing accessed vehicles: %w", err)
	}
	defer rows.Close()

	var accessed []AccessedVehicle
	for rows.Next() {
		var (
			vin      string
			nickname sql.NullString
		)
		detail, err := scanDetailColumns(rows, &vin, &nickname)
		if err != nil {
			return nil, err
		}
		if len(accessed) == 0 || accessed[len(accessed)-1].VIN != vin {
			av := AccessedVehicle{VIN: vin}
			if nickname.Valid {
				av.Nickname = &nickname.String
			}
			accessed = append(accessed, av)
		}
		last := &accessed[len(accessed)-1]
		last.Permissions = append(last.Permissions, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accessed vehicles: %w", err)
	}
	return accessed, nil
}

// DeleteExpired removes every permission whose valid_until has lapsed,
// together with the mirrored capabilities, and returns the removed
// grants so callers can log or publish them.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) ([]ExpiredGrant, error) {
	cutoff := now.UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rows, err := tx.QueryContext(ctx,
		`SELECT p.id, p.user_id, p.component_id, c.vin, u.username, t.name, c.name, p.permission_type
		 FROM component_permissions p
		 JOIN users u ON u.id = p.user_id
		 JOIN vehicle_components c ON c.id = p.component_id
		 JOIN component_types t ON t.id = c.component_type_id
		 WHERE p.valid_until IS NOT NULL AND p.valid_until <= ?`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("selecting expired permissions: %w", err)
	}

	type victim struct {
		id, userID, componentID string
	}
	var victims []victim
	var expired []ExpiredGrant
	for rows.Next() {
		var v victim
		var g ExpiredGrant
		var pt string
		if err := rows.Scan(&v.id, &v.userID, &v.componentID, &g.VIN, &g.Username, &g.ComponentType, &g.ComponentName, &pt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning expired permission: %w", err)
		}
		g.PermissionType = PermissionType(pt)
		victims = append(victims, v)
		expired = append(expired, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating expired permissions: %w", err)
	}
	rows.Close()

	for _, v := range victims {
		if _, err := tx.ExecContext(ctx, `DELETE FROM component_permissions WHERE id = ?`, v.id); err != nil {
			return nil, fmt.Errorf("deleting expired permission: %w", err)
		}
		if err := s.caps.revokeAll(ctx, tx, v.userID, v.componentID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing expiry sweep: %w", err)
	}
	return expired, nil
}

// componentOwner returns the owner of the vehicle the component belongs
// to, or vehicle.ErrComponentNotFound if the component does not exist.
func (s *Store) componentOwner(ctx context.Context, componentID string) (*string, error) {
	var owner sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT v.owner_id FROM vehicle_components c
		 JOIN vehicles v ON v.vin = c.vin
		 WHERE c.id = ?`,
		componentID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vehicle.ErrComponentNotFound
		}
		return nil, fmt.Errorf("looking up component owner: %w", err)
	}
	if !owner.Valid {
		return nil, nil
	}
	return &owner.String, nil
}

func applyFilter(query string, args []any, filter vehicle.Filter) (string, []any) {
	if filter.TypeName != "" {
		query += ` AND t.name = ?`
		args = append(args, filter.TypeName)
	}
	if filter.Name != "" {
		query += ` AND c.name = ?`
		args = append(args, filter.Name)
	}
	return query, args
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPermission(row scanner) (*Permission, error) {
	var (
		p          Permission
		pt         string
		grantedBy  sql.NullString
		validUntil sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&p.ID, &p.ComponentID, &p.UserID, &pt, &grantedBy, &validUntil, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.PermissionType = PermissionType(pt)
	if grantedBy.Valid {
		p.GrantedBy = &grantedBy.String
	}
	if validUntil.Valid {
		t, _ := time.Parse(time.RFC3339, validUntil.String) //nolint:errcheck // format is controlled
		p.ValidUntil = &t
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &p, nil
}

// scanDetailColumns scans leading columns into extra, then the four
// permission-detail columns.
func scanDetailColumns(rows *sql.Rows, extra ...any) (PermissionDetail, error) {
	var (
		d          PermissionDetail
		pt         string
		validUntil sql.NullString
	)
	dest := append(extra, &d.ComponentType, &d.ComponentName, &pt, &validUntil)
	if err := rows.Scan(dest...); err != nil {
		return d, fmt.Errorf("scanning permission detail: %w", err)
	}
	d.PermissionType = PermissionType(pt)
	if validUntil.Valid {
		t, _ := time.Parse(time.RFC3339, validUntil.String) //nolint:errcheck // format is controlled
		d.ValidUntil = &t
	}
	return d, nil
}

func scanDetails(rows *sql.Rows) ([]PermissionDetail, error) {
	var details []PermissionDetail
	for rows.Next() {
		d, err := scanDetailColumns(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permission details: %w", err)
	}
	return details, nil
}

func nullStr(s *string) any {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return *s
}
