package vehicle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ComponentRepository defines the interface for the component catalog.
//
// ListFiltered is the collaborator the bulk grant/revoke orchestrator
// resolves its filters against; type and name match case-insensitively
// (NOCASE collation on both columns).
type ComponentRepository interface {
	CreateType(ctx context.Context, ct *ComponentType) error
	GetTypeByName(ctx context.Context, name string) (*ComponentType, error)
	ListTypes(ctx context.Context) ([]ComponentType, error)
	DeleteType(ctx context.Context, id string) error

	Create(ctx context.Context, c *Component) error
	GetByID(ctx context.Context, id string) (*Component, error)
	Get(ctx context.Context, vin, typeName, name string) (*Component, error)
	ListByVehicle(ctx context.Context, vin string) ([]Component, error)
	ListFiltered(ctx context.Context, vin string, filter Filter) ([]Component, error)
	UpdateStatus(ctx context.Context, id string, status float64) error
	Delete(ctx context.Context, id string) error
}

// SQLiteComponentRepository implements ComponentRepository using SQLite.
type SQLiteComponentRepository struct {
	db *sql.DB
}

// NewComponentRepository creates a new SQLite-backed component repository.
func NewComponentRepository(db *sql.DB) *SQLiteComponentRepository {
	return &SQLiteComponentRepository{db: db}
}

// CreateType inserts a new component type. The ID is generated if empty.
func (r *SQLiteComponentRepository) CreateType(ctx context.Context, ct *ComponentType) error {
	if ct.ID == "" {
		ct.ID = "ctp-" + uuid.NewString()[:8]
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO component_types (id, name, description) VALUES (?, ?, ?)`,
		ct.ID, ct.Name, ct.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTypeExists
		}
		return fmt.Errorf("creating component type %s: %w", ct.Name, err)
	}
	return nil
}

// GetTypeByName returns a component type by name (case-insensitive).
func (r *SQLiteComponentRepository) GetTypeByName(ctx context.Context, name string) (*ComponentType, error) {
	var ct ComponentType
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM component_types WHERE name = ?`, name,
	).Scan(&ct.ID, &ct.Name, &ct.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTypeNotFound
		}
		return nil, fmt.Errorf("getting component type %s: %w", name, err)
	}
	return &ct, nil
}

// ListTypes returns all component types ordered by name.
func (r *SQLiteComponentRepository) ListTypes(ctx context.Context) ([]ComponentType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description FROM component_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing component types: %w", err)
	}
	defer rows.Close()

	var types []ComponentType
	for rows.Next() {
		var ct ComponentType
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.Description); err != nil {
			return nil, fmt.Errorf("scanning component type: %w", err)
		}
		types = append(types, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating component types: %w", err)
	}

	if types == nil {
		types = []ComponentType{}
	}
	return types, nil
}

// DeleteType removes a component type. Fails with ErrTypeInUse while
// components still reference it.
func (r *SQLiteComponentRepository) DeleteType(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM component_types WHERE id = ?", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrTypeInUse
		}
		return fmt.Errorf("deleting component type %s: %w", id, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrTypeNotFound
	}
	return nil
}

// Create inserts a new component. The ID is generated if empty.
func (r *SQLiteComponentRepository) Create(ctx context.Context, c *Component) error {
	if c.ID == "" {
		c.ID = "cmp-" + uuid.NewString()[:8]
	}

	vin, err := NormalizeVIN(c.VIN)
	if err != nil {
		return err
	}
	c.VIN = vin

	now := time.Now().UTC().Format(time.RFC3339)
	c.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	c.UpdatedAt = c.CreatedAt

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO vehicle_components (id, vin, component_type_id, name, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.VIN, c.TypeID, c.Name, c.Status, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrComponentExists
		}
		return fmt.Errorf("creating component %s: %w", c.Name, err)
	}
	return nil
}

// componentColumns is the shared SELECT column list for component queries.
const componentColumns = `c.id, c.vin, c.component_type_id, t.name, c.name, c.status, c.created_at, c.updated_at
	 FROM vehicle_components c
	 JOIN component_types t ON t.id = c.component_type_id`

// GetByID returns a single component by its ID.
func (r *SQLiteComponentRepository) GetByID(ctx context.Context, id string) (*Component, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+componentColumns+" WHERE c.id = ?", id)
	return scanComponentRow(row)
}

// Get returns a component by its natural key (vehicle, type name, name).
func (r *SQLiteComponentRepository) Get(ctx context.Context, vin, typeName, name string) (*Component, error) {
	vin, err := NormalizeVIN(vin)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx,
		"SELECT "+componentColumns+" WHERE c.vin = ? AND t.name = ? AND c.name = ?",
		vin, typeName, name)
	return scanComponentRow(row)
}

// ListByVehicle returns all components of a vehicle ordered by type then name.
func (r *SQLiteComponentRepository) ListByVehicle(ctx context.Context, vin string) ([]Component, error) {
	return r.ListFiltered(ctx, vin, Filter{})
}

// ListFiltered resolves a bulk filter against a vehicle's components.
// An empty filter matches all components; matching is case-insensitive.
// Results come back in a stable (type, name) order so bulk operations
// process components deterministically.
func (r *SQLiteComponentRepository) ListFiltered(ctx context.Context, vin string, filter Filter) ([]Component, error) {
	vin, err := NormalizeVIN(vin)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + componentColumns + " WHERE c.vin = ?"
	args := []any{vin}

	if filter.TypeName != "" {
		query += " AND t.name = ?"
		args = append(args, filter.TypeName)
	}
	if filter.Name != "" {
		query += " AND c.name = ?"
		args = append(args, filter.Name)
	}
	query += " ORDER BY t.name, c.name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying components: %w", err)
	}
	defer rows.Close()

	var components []Component
	for rows.Next() {
		c, err := scanComponentRows(rows)
		if err != nil {
			return nil, err
		}
		components = append(components, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating components: %w", err)
	}

	if components == nil {
		components = []Component{}
	}
	return components, nil
}

// UpdateStatus sets a component's status level.
func (r *SQLiteComponentRepository) UpdateStatus(ctx context.Context, id string, status float64) error {
	if !ValidStatus(status) {
		return ErrInvalidStatus
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`UPDATE vehicle_components SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, id)
	if err != nil {
		return fmt.Errorf("updating component status: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrComponentNotFound
	}
	return nil
}

// Delete removes a component. Permission rows and capability grants
// cascade at the schema level; callers wanting the explicit lifecycle
// hook run the permission store's DeleteForComponent first.
func (r *SQLiteComponentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM vehicle_components WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting component %s: %w", id, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrComponentNotFound
	}
	return nil
}

// scanComponentRow scans a component from a sql.Row.
func scanComponentRow(row *sql.Row) (*Component, error) {
	var c Component
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.VIN, &c.TypeID, &c.TypeName, &c.Name, &c.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrComponentNotFound
		}
		return nil, fmt.Errorf("scanning component: %w", err)
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &c, nil
}

// scanComponentRows scans a component from sql.Rows.
func scanComponentRows(rows *sql.Rows) (*Component, error) {
	var c Component
	var createdAt, updatedAt string

	if err := rows.Scan(&c.ID, &c.VIN, &c.TypeID, &c.TypeName, &c.Name, &c.Status, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning component: %w", err)
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &c, nil
}
