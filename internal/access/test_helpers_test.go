package access

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/carlink/carlink-core/internal/vehicle"
)

// testDB creates a temporary SQLite database with the schema the access
// engine touches. The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "access-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrationSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			email TEXT,
			password_hash TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE vehicles (
			vin TEXT PRIMARY KEY CHECK (length(vin) = 17),
			nickname TEXT,
			owner_id TEXT REFERENCES users(id) ON DELETE SET NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE component_types (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL COLLATE NOCASE UNIQUE,
			description TEXT NOT NULL DEFAULT ''
		) STRICT;

		CREATE TABLE vehicle_components (
			id TEXT PRIMARY KEY,
			vin TEXT NOT NULL REFERENCES vehicles(vin) ON DELETE CASCADE,
			component_type_id TEXT NOT NULL REFERENCES component_types(id) ON DELETE RESTRICT,
			name TEXT NOT NULL COLLATE NOCASE,
			status REAL NOT NULL DEFAULT 0.0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			UNIQUE (vin, component_type_id, name)
		) STRICT;

		CREATE TABLE component_permissions (
			id TEXT PRIMARY KEY,
			component_id TEXT NOT NULL REFERENCES vehicle_components(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			permission_type TEXT NOT NULL CHECK (permission_type IN ('read', 'write')),
			granted_by TEXT REFERENCES users(id) ON DELETE SET NULL,
			valid_until TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			UNIQUE (component_id, user_id)
		) STRICT;

		CREATE TABLE component_capabilities (
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			component_id TEXT NOT NULL REFERENCES vehicle_components(id) ON DELETE CASCADE,
			capability TEXT NOT NULL CHECK (capability IN ('view', 'change')),
			granted_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (user_id, component_id, capability)
		) STRICT;
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying access migration: %v", err)
	}

	return db
}

// testStore builds a store and its capability repository over the db.
func testStore(db *sql.DB) (*Store, *CapabilityRepository) {
	caps := NewCapabilityRepository(db)
	return NewStore(db, caps), caps
}

// seedTestUser inserts a user row.
func seedTestUser(t *testing.T, db *sql.DB, id, username string) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO users (id, username, password_hash) VALUES (?, ?, 'x')",
		id, username)
	if err != nil {
		t.Fatalf("seeding test user %s: %v", username, err)
	}
}

// seedTestVehicle inserts a vehicle row, optionally owned.
func seedTestVehicle(t *testing.T, db *sql.DB, vin string, ownerID *string) {
	t.Helper()

	_, err := db.Exec("INSERT INTO vehicles (vin, owner_id) VALUES (?, ?)", vin, ownerID)
	if err != nil {
		t.Fatalf("seeding test vehicle %s: %v", vin, err)
	}
}

// seedTestComponent inserts a component type (if needed) and a component.
func seedTestComponent(t *testing.T, db *sql.DB, vin, typeName, name string) *vehicle.Component {
	t.Helper()

	repo := vehicle.NewComponentRepository(db)
	ct, err := repo.GetTypeByName(context.Background(), typeName)
	if err != nil {
		ct = &vehicle.ComponentType{Name: typeName}
		if err := repo.CreateType(context.Background(), ct); err != nil {
			t.Fatalf("creating test component type %s: %v", typeName, err)
		}
	}

	c := &vehicle.Component{VIN: vin, TypeID: ct.ID, Name: name}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("creating test component %s: %v", name, err)
	}
	c.TypeName = ct.Name
	return c
}

// seedExpiredPermission inserts a lapsed permission row plus its
// mirrored capabilities directly; the store refuses to write one.
func seedExpiredPermission(t *testing.T, db *sql.DB, id, componentID, userID string, pt PermissionType) {
	t.Helper()

	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(
		`INSERT INTO component_permissions (id, component_id, user_id, permission_type, valid_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, componentID, userID, string(pt), past, now, now)
	if err != nil {
		t.Fatalf("seeding expired permission: %v", err)
	}
	for _, c := range CapabilitiesFor(pt) {
		_, err := db.Exec(
			`INSERT INTO component_capabilities (user_id, component_id, capability, granted_at) VALUES (?, ?, ?, ?)`,
			userID, componentID, string(c), now)
		if err != nil {
			t.Fatalf("seeding expired capability: %v", err)
		}
	}
}
