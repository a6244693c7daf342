package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/carlink/carlink-core/internal/auth"
	"github.com/carlink/carlink-core/internal/vehicle"
)

func TestRegisterVehicle(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	user := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)
	token := bearerToken(t, user)

	body := strings.NewReader(`{"vin":"` + testVIN + `","nickname":"Family SUV"}`)
	w := doRequest(router, http.MethodPost, "/api/vehicles", token, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}

	var v vehicle.Vehicle
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.VIN != testVIN {
		t.Errorf("vin = %q, want %q", v.VIN, testVIN)
	}
	if v.OwnerID == nil || *v.OwnerID != "usr-alice" {
		t.Error("caller should become the owner")
	}
	if v.Nickname == nil || *v.Nickname != "Family SUV" {
		t.Error("nickname not stored")
	}
}

func TestRegisterVehicle_InvalidVIN(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	user := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)
	token := bearerToken(t, user)

	tests := []struct {
		name string
		vin  string
	}{
		{"too short", "WBA123"},
		{"forbidden letter", "WBAI2345678901234"}, // I is not a valid VIN character
		{"lowercase rejected after normalisation mismatch", "WBA1234567890123!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := strings.NewReader(`{"vin":"` + tt.vin + `"}`)
			w := doRequest(router, http.MethodPost, "/api/vehicles", token, body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestRegisterVehicle_Duplicate(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	user := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)
	token := bearerToken(t, user)
	seedVehicle(t, db, testVIN, nil)

	body := strings.NewReader(`{"vin":"` + testVIN + `"}`)
	w := doRequest(router, http.MethodPost, "/api/vehicles", token, body)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestMyVehicles(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	user := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)
	createTestUser(t, srv, "usr-bob", "bob", auth.RoleUser)
	token := bearerToken(t, user)

	alice := "usr-alice"
	bob := "usr-bob"
	seedVehicle(t, db, testVIN, &alice)
	seedVehicle(t, db, "JHM98765432109876", &bob)

	w := doRequest(router, http.MethodGet, "/api/vehicles/my", token, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Vehicles []vehicle.Vehicle `json:"vehicles"`
		Count    int               `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Vehicles[0].VIN != testVIN {
		t.Errorf("vin = %q, want %q", resp.Vehicles[0].VIN, testVIN)
	}
}

func TestGetVehicle_OwnerOnly(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	owner := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)
	other := createTestUser(t, srv, "usr-bob", "bob", auth.RoleUser)

	alice := "usr-alice"
	seedVehicle(t, db, testVIN, &alice)

	w := doRequest(router, http.MethodGet, "/api/vehicles/"+testVIN, bearerToken(t, owner), nil)
	if w.Code != http.StatusOK {
		t.Errorf("owner status = %d, want %d", w.Code, http.StatusOK)
	}

	w = doRequest(router, http.MethodGet, "/api/vehicles/"+testVIN, bearerToken(t, other), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-owner status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestUpdateNickname(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	owner := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)
	token := bearerToken(t, owner)

	alice := "usr-alice"
	seedVehicle(t, db, testVIN, &alice)

	body := strings.NewReader(`{"nickname":"Weekend Car"}`)
	w := doRequest(router, http.MethodPatch, "/api/vehicles/"+testVIN+"/nickname", token, body)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}

	var v vehicle.Vehicle
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Nickname == nil || *v.Nickname != "Weekend Car" {
		t.Error("nickname not updated")
	}

	// Clearing with null.
	body = strings.NewReader(`{"nickname":null}`)
	w = doRequest(router, http.MethodPatch, "/api/vehicles/"+testVIN+"/nickname", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want %d", w.Code, http.StatusOK)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Nickname != nil {
		t.Errorf("nickname = %v, want cleared", *v.Nickname)
	}
}

func TestUpdateNickname_NotOwner(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)
	other := createTestUser(t, srv, "usr-bob", "bob", auth.RoleUser)

	alice := "usr-alice"
	seedVehicle(t, db, testVIN, &alice)

	body := strings.NewReader(`{"nickname":"Stolen"}`)
	w := doRequest(router, http.MethodPatch, "/api/vehicles/"+testVIN+"/nickname", bearerToken(t, other), body)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestTakeOwnership(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	alice := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)
	bob := createTestUser(t, srv, "usr-bob", "bob", auth.RoleUser)

	seedVehicle(t, db, testVIN, nil)

	reqBody := func() *strings.Reader {
		return strings.NewReader(`{"vin":"` + testVIN + `"}`)
	}

	// Unowned vehicle: claimed.
	w := doRequest(router, http.MethodPost, "/api/vehicles/take-ownership", bearerToken(t, alice), reqBody())
	if w.Code != http.StatusOK {
		t.Fatalf("claim status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ownership_taken" {
		t.Errorf("status = %q, want ownership_taken", resp["status"])
	}

	// Caller already owns it: no-op.
	w = doRequest(router, http.MethodPost, "/api/vehicles/take-ownership", bearerToken(t, alice), reqBody())
	if w.Code != http.StatusNoContent {
		t.Errorf("re-claim status = %d, want %d", w.Code, http.StatusNoContent)
	}

	// Someone else owns it: forbidden.
	w = doRequest(router, http.MethodPost, "/api/vehicles/take-ownership", bearerToken(t, bob), reqBody())
	if w.Code != http.StatusForbidden {
		t.Errorf("contested claim status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestTakeOwnership_UnknownVIN(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	user := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)

	body := strings.NewReader(`{"vin":"JHM98765432109876"}`)
	w := doRequest(router, http.MethodPost, "/api/vehicles/take-ownership", bearerToken(t, user), body)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestTakeOwnership_InvalidVIN(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	user := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)

	body := strings.NewReader(`{"vin":"short"}`)
	w := doRequest(router, http.MethodPost, "/api/vehicles/take-ownership", bearerToken(t, user), body)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDisown(t *testing.T) {
	srv, db := testServer(t)
	router := srv.buildRouter()
	alice := createTestUser(t, srv, "usr-alice", "alice", auth.RoleUser)
	bob := createTestUser(t, srv, "usr-bob", "bob", auth.RoleUser)

	aliceID := "usr-alice"
	seedVehicle(t, db, testVIN, &aliceID)

	// Non-owner cannot disown.
	body := strings.NewReader(`{"vin":"` + testVIN + `"}`)
	w := doRequest(router, http.MethodPost, "/api/vehicles/disown", bearerToken(t, bob), body)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-owner status = %d, want %d", w.Code, http.StatusForbidden)
	}

	// Owner releases.
	body = strings.NewReader(`{"vin":"` + testVIN + `"}`)
	w = doRequest(router, http.MethodPost, "/api/vehicles/disown", bearerToken(t, alice), body)
	if w.Code != http.StatusNoContent {
		t.Fatalf("owner status = %d, want %d", w.Code, http.StatusNoContent)
	}

	var ownerID *string
	if err := db.QueryRow("SELECT owner_id FROM vehicles WHERE vin = ?", testVIN).Scan(&ownerID); err != nil {
		t.Fatalf("querying vehicle: %v", err)
	}
	if ownerID != nil {
		t.Errorf("owner_id = %v, want NULL", *ownerID)
	}

	// The vehicle is now claimable by anyone.
	body = strings.NewReader(`{"vin":"` + testVIN + `"}`)
	w = doRequest(router, http.MethodPost, "/api/vehicles/take-ownership", bearerToken(t, bob), body)
	if w.Code != http.StatusOK {
		t.Errorf("re-claim status = %d, want %d", w.Code, http.StatusOK)
	}
}
