package access

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// dbtx abstracts *sql.DB and *sql.Tx so capability writes can run inside
// the permission store's transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CapabilityRepository maintains the capability grants consumed by the
// access resolver.
//
// Mutations are idempotent: granting a capability that is already held,
// or revoking one that is absent, is a no-op. The mutating methods are
// unexported on purpose; the permission store is the only caller, which
// keeps permission rows and mirrored capabilities from drifting apart.
type CapabilityRepository struct {
	db *sql.DB
}

// NewCapabilityRepository creates a capability repository over the given database.
func NewCapabilityRepository(db *sql.DB) *CapabilityRepository {
	return &CapabilityRepository{db: db}
}

// grant records a capability for (user, component). No-op if already held.
func (r *CapabilityRepository) grant(ctx context.Context, q dbtx, userID, componentID string, cap Capability) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO component_capabilities (user_id, component_id, capability, granted_at)
		 VALUES (?, ?, ?, ?)`,
		userID, componentID, string(cap), now)
	if err != nil {
		return fmt.Errorf("granting %s capability: %w", cap, err)
	}
	return nil
}

// revoke removes a capability for (user, component). No-op if absent.
func (r *CapabilityRepository) revoke(ctx context.Context, q dbtx, userID, componentID string, cap Capability) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM component_capabilities WHERE user_id = ? AND component_id = ? AND capability = ?`,
		userID, componentID, string(cap))
	if err != nil {
		return fmt.Errorf("revoking %s capability: %w", cap, err)
	}
	return nil
}

// revokeAll removes every capability for (user, component).
func (r *CapabilityRepository) revokeAll(ctx context.Context, q dbtx, userID, componentID string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM component_capabilities WHERE user_id = ? AND component_id = ?`,
		userID, componentID)
	if err != nil {
		return fmt.Errorf("revoking capabilities: %w", err)
	}
	return nil
}

// List returns the capability set held by a user against a component.
func (r *CapabilityRepository) List(ctx context.Context, userID, componentID string) ([]Capability, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT capability FROM component_capabilities
		 WHERE user_id = ? AND component_id = ? ORDER BY capability`,
		userID, componentID)
	if err != nil {
		return nil, fmt.Errorf("listing capabilities: %w", err)
	}
	defer rows.Close()

	var caps []Capability
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning capability: %w", err)
		}
		caps = append(caps, Capability(c))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating capabilities: %w", err)
	}

	if caps == nil {
		caps = []Capability{}
	}
	return caps, nil
}

// Has reports whether the user holds the given capability on the component.
func (r *CapabilityRepository) Has(ctx context.Context, userID, componentID string, cap Capability) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM component_capabilities
		 WHERE user_id = ? AND component_id = ? AND capability = ?`,
		userID, componentID, string(cap)).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("checking capability: %w", err)
	}
	return true, nil
}
