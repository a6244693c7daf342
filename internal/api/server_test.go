package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/carlink/carlink-core/internal/access"
	"github.com/carlink/carlink-core/internal/audit"
	"github.com/carlink/carlink-core/internal/auth"
	"github.com/carlink/carlink-core/internal/infrastructure/config"
	"github.com/carlink/carlink-core/internal/infrastructure/logging"
	"github.com/carlink/carlink-core/internal/vehicle"
)

const (
	testSecret   = "test-secret-key-at-least-32-characters-long"
	testPassword = "testpass123"
	testVIN      = "WBA12345678901234"
)

// setupTestDB creates a temporary SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
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

	schema := `
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

		CREATE TABLE refresh_tokens (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			family_id TEXT NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			device_info TEXT,
			expires_at TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
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

		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			user_id TEXT,
			source TEXT NOT NULL DEFAULT 'api',
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, execErr := db.Exec(schema); execErr != nil {
		t.Fatalf("creating test schema: %v", execErr)
	}

	return db
}

// testServer wires a Server over a fresh database with the full access
// engine behind it.
func testServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()

	db := setupTestDB(t)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	vehicles := vehicle.NewSQLiteRepository(db)
	components := vehicle.NewComponentRepository(db)
	users := auth.NewUserRepository(db)
	tokens := auth.NewTokenRepository(db)
	caps := access.NewCapabilityRepository(db)
	store := access.NewStore(db, caps)
	svc := access.NewService(vehicles, components, users, store, access.NopSink{}, log)
	resolver := access.NewResolver(vehicles, caps, store)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15, RefreshTokenTTL: 60},
		},
		Logger:     log,
		Users:      users,
		Tokens:     tokens,
		Vehicles:   vehicles,
		Components: components,
		Access:     svc,
		Resolver:   resolver,
		Store:      store,
		Audit:      audit.NewSQLiteRepository(db),
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, db
}

// createTestUser registers a user with the shared test password.
func createTestUser(t *testing.T, srv *Server, id, username string, role auth.Role) *auth.User {
	t.Helper()

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &auth.User{
		ID:           id,
		Username:     username,
		DisplayName:  username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := srv.userRepo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// bearerToken issues an access token for the user.
func bearerToken(t *testing.T, user *auth.User) string {
	t.Helper()

	token, err := auth.GenerateAccessToken(user, testSecret, 15)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

// doRequest runs a request through the router and returns the recorder.
func doRequest(router http.Handler, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// seedVehicle inserts a vehicle row directly.
func seedVehicle(t *testing.T, db *sql.DB, vin string, ownerID *string) {
	t.Helper()

	if _, err := db.Exec("INSERT INTO vehicles (vin, owner_id) VALUES (?, ?)", vin, ownerID); err != nil {
		t.Fatalf("seeding vehicle %s: %v", vin, err)
	}
}

// seedComponent creates a type (if missing) and a component through the repo.
func seedComponent(t *testing.T, srv *Server, vin, typeName, name string) *vehicle.Component {
	t.Helper()

	ct, err := srv.components.GetTypeByName(context.Background(), typeName)
	if err != nil {
		ct = &vehicle.ComponentType{Name: typeName}
		if err := srv.components.CreateType(context.Background(), ct); err != nil {
			t.Fatalf("creating component type %s: %v", typeName, err)
		}
	}

	c := &vehicle.Component{VIN: vin, TypeID: ct.ID, Name: name}
	if err := srv.components.Create(context.Background(), c); err != nil {
		t.Fatalf("creating component %s: %v", name, err)
	}
	c.TypeName = ct.Name
	return c
}

// ─── Health and Middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(router, http.MethodGet, "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestVersion(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(router, http.MethodGet, "/version", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("version status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(router, http.MethodGet, "/health", "", nil)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(router, http.MethodGet, "/api/nonexistent", "", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestProtectedRoutes_RequireAuth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/vehicles/my"},
		{http.MethodGet, "/api/vehicles/accessed"},
		{http.MethodPost, "/api/vehicles/take-ownership"},
		{http.MethodGet, "/api/vehicles/" + testVIN + "/permissions/overview"},
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/audit"},
	}

	for _, p := range paths {
		w := doRequest(router, p.method, p.path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want %d", p.method, p.path, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestAuthMiddleware_RejectsGarbageToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := doRequest(router, http.MethodGet, "/api/auth/me", "not-a-jwt", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAdminRoutes_ForbiddenForUsers(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	user := createTestUser(t, srv, "usr-plain", "plain", auth.RoleUser)
	token := bearerToken(t, user)

	for _, path := range []string{"/api/users", "/api/audit"} {
		w := doRequest(router, http.MethodGet, path, token, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusForbidden)
		}
	}
}
