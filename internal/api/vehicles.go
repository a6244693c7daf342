package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carlink/carlink-core/internal/audit"
	"github.com/carlink/carlink-core/internal/vehicle"
)

type registerVehicleRequest struct {
	VIN      string  `json:"vin"`
	Nickname *string `json:"nickname,omitempty"`
}

type vinRequest struct {
	VIN string `json:"vin"`
}

type nicknameRequest struct {
	Nickname *string `json:"nickname"`
}

// handleRegisterVehicle registers a new vehicle by VIN. The caller
// becomes the owner immediately.
func (s *Server) handleRegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var req registerVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.VIN == "" {
		writeBadRequest(w, "vin is required")
		return
	}

	claims := claimsFromContext(r.Context())
	ownerID := claims.Subject

	v := &vehicle.Vehicle{
		VIN:      req.VIN,
		Nickname: req.Nickname,
		OwnerID:  &ownerID,
	}

	if err := s.vehicles.Create(r.Context(), v); err != nil {
		s.writeDomainError(w, err, "failed to register vehicle")
		return
	}

	s.logger.Info("vehicle registered", "vin", v.VIN, "owner_id", ownerID)
	s.auditLog(audit.ActionCreate, audit.EntityVehicle, v.VIN, ownerID, nil)

	writeJSON(w, http.StatusCreated, v)
}

// handleMyVehicles returns the vehicles owned by the caller.
func (s *Server) handleMyVehicles(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	vehicles, err := s.vehicles.ListByOwner(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("list owned vehicles failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to list vehicles")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vehicles": vehicles,
		"count":    len(vehicles),
	})
}

// handleAccessedVehicles returns vehicles where the caller holds at
// least one component permission, each with the granted details.
func (s *Server) handleAccessedVehicles(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	vehicles, err := s.access.AccessedVehicles(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("list accessed vehicles failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to list accessed vehicles")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vehicles": vehicles,
		"count":    len(vehicles),
	})
}

// handleGetVehicle returns a vehicle record. Restricted to the owner;
// other callers learn nothing beyond 403.
func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	claims := claimsFromContext(r.Context())

	v, err := s.vehicles.Get(r.Context(), vin)
	if err != nil {
		s.writeDomainError(w, err, "failed to get vehicle")
		return
	}

	if v.OwnerID == nil || *v.OwnerID != claims.Subject {
		writeForbidden(w, vehicle.ErrNotOwner.Error())
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// handleUpdateNickname sets or clears a vehicle's nickname. Owner-only.
func (s *Server) handleUpdateNickname(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	claims := claimsFromContext(r.Context())

	var req nicknameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.vehicles.UpdateNickname(r.Context(), vin, claims.Subject, req.Nickname); err != nil {
		s.writeDomainError(w, err, "failed to update nickname")
		return
	}

	v, err := s.vehicles.Get(r.Context(), vin)
	if err != nil {
		s.writeDomainError(w, err, "failed to get vehicle")
		return
	}

	writeJSON(w, http.StatusOK, v)
}

// handleTakeOwnership claims an unowned vehicle for the caller.
//
// Responses: 200 claimed, 204 caller already owns it, 403 someone else
// owns it, 404 unknown VIN, 400 missing or malformed VIN.
func (s *Server) handleTakeOwnership(w http.ResponseWriter, r *http.Request) {
	var req vinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.VIN == "" {
		writeBadRequest(w, "vin is required")
		return
	}

	claims := claimsFromContext(r.Context())

	err := s.vehicles.TakeOwnership(r.Context(), req.VIN, claims.Subject)
	switch {
	case err == nil:
		s.logger.Info("ownership taken", "vin", req.VIN, "user_id", claims.Subject)
		s.auditLog(audit.ActionTakeOwnership, audit.EntityVehicle, req.VIN, claims.Subject, nil)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ownership_taken"})
	case errors.Is(err, vehicle.ErrAlreadyOwner):
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeDomainError(w, err, "failed to take ownership")
	}
}

// handleDisown releases the caller's ownership of a vehicle. Grants
// made by the departing owner stay in place for the next owner to
// review.
func (s *Server) handleDisown(w http.ResponseWriter, r *http.Request) {
	var req vinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.VIN == "" {
		writeBadRequest(w, "vin is required")
		return
	}

	claims := claimsFromContext(r.Context())

	if err := s.vehicles.Disown(r.Context(), req.VIN, claims.Subject); err != nil {
		s.writeDomainError(w, err, "failed to disown vehicle")
		return
	}

	s.logger.Info("vehicle disowned", "vin", req.VIN, "user_id", claims.Subject)
	s.auditLog(audit.ActionDisown, audit.EntityVehicle, req.VIN, claims.Subject, nil)

	w.WriteHeader(http.StatusNoContent)
}
