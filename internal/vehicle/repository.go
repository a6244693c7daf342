package vehicle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for vehicle and ownership persistence.
type Repository interface {
	Create(ctx context.Context, v *Vehicle) error
	Get(ctx context.Context, vin string) (*Vehicle, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Vehicle, error)
	UpdateNickname(ctx context.Context, vin, ownerID string, nickname *string) error
	Delete(ctx context.Context, vin string) error

	// Ownership fact source consumed by the access resolver.
	GetOwner(ctx context.Context, vin string) (*string, error)
	IsOwner(ctx context.Context, vin, userID string) (bool, error)

	// TakeOwnership claims an unowned vehicle for userID.
	// Returns ErrAlreadyOwner if userID already owns it, ErrAlreadyOwned
	// if someone else does.
	TakeOwnership(ctx context.Context, vin, userID string) error

	// Disown releases ownership. Returns ErrNotOwner if userID is not
	// the current owner.
	Disown(ctx context.Context, vin, userID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed vehicle repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new vehicle. The VIN is normalised before insertion.
func (r *SQLiteRepository) Create(ctx context.Context, v *Vehicle) error {
	vin, err := NormalizeVIN(v.VIN)
	if err != nil {
		return err
	}
	v.VIN = vin

	now := time.Now().UTC().Format(time.RFC3339)
	v.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	v.UpdatedAt = v.CreatedAt

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO vehicles (vin, nickname, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.VIN, nullStr(v.Nickname), nullStr(v.OwnerID), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrVehicleExists
		}
		return fmt.Errorf("creating vehicle %s: %w", v.VIN, err)
	}
	return nil
}

// Get returns a single vehicle by VIN.
func (r *SQLiteRepository) Get(ctx context.Context, vin string) (*Vehicle, error) {
	vin, err := NormalizeVIN(vin)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT vin, nickname, owner_id, created_at, updated_at
		 FROM vehicles WHERE vin = ?`, vin)
	return scanVehicle(row)
}

// ListByOwner returns all vehicles owned by the given user.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Vehicle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT vin, nickname, owner_id, created_at, updated_at
		 FROM vehicles WHERE owner_id = ? ORDER BY vin`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing vehicles by owner: %w", err)
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		v, err := scanVehicleRows(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vehicles: %w", err)
	}

	if vehicles == nil {
		vehicles = []Vehicle{}
	}
	return vehicles, nil
}

// UpdateNickname sets a vehicle's nickname. Owner-only.
func (r *SQLiteRepository) UpdateNickname(ctx context.Context, vin, ownerID string, nickname *string) error {
	vin, err := NormalizeVIN(vin)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`UPDATE vehicles SET nickname = ?, updated_at = ? WHERE vin = ? AND owner_id = ?`,
		nullStr(nickname), now, vin, ownerID)
	if err != nil {
		return fmt.Errorf("updating nickname for %s: %w", vin, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		if _, err := r.Get(ctx, vin); err != nil {
			return err
		}
		return ErrNotOwner
	}
	return nil
}

// Delete removes a vehicle. Components and their permission rows cascade
// at the schema level; callers wanting the explicit lifecycle hook run
// the permission store's DeleteForVehicle first.
func (r *SQLiteRepository) Delete(ctx context.Context, vin string) error {
	vin, err := NormalizeVIN(vin)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM vehicles WHERE vin = ?", vin)
	if err != nil {
		return fmt.Errorf("deleting vehicle %s: %w", vin, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrVehicleNotFound
	}
	return nil
}

// GetOwner returns the owning user's ID, or nil if the vehicle is unowned.
func (r *SQLiteRepository) GetOwner(ctx context.Context, vin string) (*string, error) {
	vin, err := NormalizeVIN(vin)
	if err != nil {
		return nil, err
	}

	var owner sql.NullString
	err = r.db.QueryRowContext(ctx,
		"SELECT owner_id FROM vehicles WHERE vin = ?", vin).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("getting owner for %s: %w", vin, err)
	}

	if !owner.Valid {
		return nil, nil
	}
	return &owner.String, nil
}

// IsOwner reports whether userID currently owns the vehicle.
func (r *SQLiteRepository) IsOwner(ctx context.Context, vin, userID string) (bool, error) {
	owner, err := r.GetOwner(ctx, vin)
	if err != nil {
		return false, err
	}
	return owner != nil && *owner == userID, nil
}

// TakeOwnership claims an unowned vehicle for userID.
//
// The claim is a single conditional UPDATE so two concurrent callers
// serialise on the row: exactly one succeeds, the other sees
// ErrAlreadyOwned.
func (r *SQLiteRepository) TakeOwnership(ctx context.Context, vin, userID string) error {
	vin, err := NormalizeVIN(vin)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`UPDATE vehicles SET owner_id = ?, updated_at = ? WHERE vin = ? AND owner_id IS NULL`,
		userID, now, vin)
	if err != nil {
		return fmt.Errorf("taking ownership of %s: %w", vin, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 1 {
		return nil
	}

	owner, err := r.GetOwner(ctx, vin)
	if err != nil {
		return err
	}
	if owner != nil && *owner == userID {
		return ErrAlreadyOwner
	}
	return ErrAlreadyOwned
}

// Disown releases ownership of a vehicle.
func (r *SQLiteRepository) Disown(ctx context.Context, vin, userID string) error {
	vin, err := NormalizeVIN(vin)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`UPDATE vehicles SET owner_id = NULL, updated_at = ? WHERE vin = ? AND owner_id = ?`,
		now, vin, userID)
	if err != nil {
		return fmt.Errorf("disowning %s: %w", vin, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 1 {
		return nil
	}

	if _, err := r.GetOwner(ctx, vin); err != nil {
		return err
	}
	return ErrNotOwner
}

// scanVehicle scans a vehicle from a sql.Row.
func scanVehicle(row *sql.Row) (*Vehicle, error) {
	var v Vehicle
	var nickname, ownerID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&v.VIN, &nickname, &ownerID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("scanning vehicle: %w", err)
	}

	applyVehicleNulls(&v, nickname, ownerID, createdAt, updatedAt)
	return &v, nil
}

// scanVehicleRows scans a vehicle from sql.Rows.
func scanVehicleRows(rows *sql.Rows) (*Vehicle, error) {
	var v Vehicle
	var nickname, ownerID sql.NullString
	var createdAt, updatedAt string

	if err := rows.Scan(&v.VIN, &nickname, &ownerID, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning vehicle: %w", err)
	}

	applyVehicleNulls(&v, nickname, ownerID, createdAt, updatedAt)
	return &v, nil
}

func applyVehicleNulls(v *Vehicle, nickname, ownerID sql.NullString, createdAt, updatedAt string) {
	if nickname.Valid {
		v.Nickname = &nickname.String
	}
	if ownerID.Valid {
		v.OwnerID = &ownerID.String
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	v.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
}

// Helper functions.

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}

// isForeignKeyViolation checks if a SQLite error is a FOREIGN KEY constraint violation.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
