package vehicle

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the vehicle schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "vehicle-test-*.db")
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
			username TEXT NOT NULL UNIQUE
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
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying vehicle migration: %v", err)
	}

	return db
}

// seedTestUser inserts a bare user row for ownership tests.
func seedTestUser(t *testing.T, db *sql.DB, id, username string) {
	t.Helper()

	if _, err := db.Exec("INSERT INTO users (id, username) VALUES (?, ?)", id, username); err != nil {
		t.Fatalf("seeding test user %s: %v", username, err)
	}
}

// seedTestVehicle inserts a vehicle and returns it.
func seedTestVehicle(t *testing.T, db *sql.DB, vin string, ownerID *string) *Vehicle {
	t.Helper()

	repo := NewSQLiteRepository(db)
	v := &Vehicle{VIN: vin, OwnerID: ownerID}
	if err := repo.Create(context.Background(), v); err != nil {
		t.Fatalf("creating test vehicle %s: %v", vin, err)
	}
	return v
}

// seedTestComponent inserts a component type (if needed) and a component.
func seedTestComponent(t *testing.T, db *sql.DB, vin, typeName, name string) *Component {
	t.Helper()

	repo := NewComponentRepository(db)
	ct, err := repo.GetTypeByName(context.Background(), typeName)
	if err != nil {
		ct = &ComponentType{Name: typeName}
		if err := repo.CreateType(context.Background(), ct); err != nil {
			t.Fatalf("creating test component type %s: %v", typeName, err)
		}
	}

	c := &Component{VIN: vin, TypeID: ct.ID, Name: name}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("creating test component %s: %v", name, err)
	}
	c.TypeName = ct.Name
	return c
}
