package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carlink/carlink-core/internal/access"
	"github.com/carlink/carlink-core/internal/audit"
	"github.com/carlink/carlink-core/internal/vehicle"
)

type grantRequest struct {
	PermissionType string  `json:"permission_type"`
	ValidUntil     *string `json:"valid_until,omitempty"`
}

// componentFilter builds the component filter from the optional
// {type} and {name} path segments.
func componentFilter(r *http.Request) vehicle.Filter {
	return vehicle.Filter{
		TypeName: chi.URLParam(r, "type"),
		Name:     chi.URLParam(r, "name"),
	}
}

// handlePermissionOverview returns every user's permissions on the
// vehicle, grouped by username. Owner-only; the owner appears first
// with a synthesised full-access entry.
func (s *Server) handlePermissionOverview(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	claims := claimsFromContext(r.Context())

	overview, err := s.access.Overview(r.Context(), claims.Subject, vin, vehicle.Filter{})
	if err != nil {
		s.writeDomainError(w, err, "failed to load permission overview")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vin":         vin,
		"permissions": overview,
	})
}

// handleGetUserPermissions returns one user's permissions on the
// vehicle, narrowed by the optional component type/name segments.
// Owner-only, like the overview.
func (s *Server) handleGetUserPermissions(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	username := chi.URLParam(r, "username")
	claims := claimsFromContext(r.Context())

	perms, err := s.access.ForUser(r.Context(), claims.Subject, vin, username, componentFilter(r))
	if err != nil {
		s.writeDomainError(w, err, "failed to load permissions")
		return
	}

	writeJSON(w, http.StatusOK, perms)
}

// handleGrantPermissions grants a permission level on every component
// matched by the path filter. Per-component failures are reported in
// the response body at 200; only whole-request faults (not owner,
// unknown vehicle, bad input) surface as HTTP errors.
func (s *Server) handleGrantPermissions(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	username := chi.URLParam(r, "username")
	claims := claimsFromContext(r.Context())

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pt, ok := access.ParsePermissionType(req.PermissionType)
	if !ok {
		writeValidationError(w, access.ErrInvalidPermission.Error())
		return
	}

	var validUntil *time.Time
	if req.ValidUntil != nil {
		parsed, err := time.Parse(time.RFC3339, *req.ValidUntil)
		if err != nil {
			writeValidationError(w, "valid_until must be an RFC3339 timestamp")
			return
		}
		validUntil = &parsed
	}

	result, err := s.access.GrantBulk(r.Context(), claims.Subject, vin, username, pt, validUntil, componentFilter(r))
	if err != nil {
		s.writeDomainError(w, err, "failed to grant permissions")
		return
	}

	s.auditLog(audit.ActionGrant, audit.EntityPermission, vin, claims.Subject, map[string]any{
		"username":        username,
		"permission_type": pt,
		"granted":         len(result.Granted),
		"failed":          len(result.Failed),
	})
	if s.influx != nil {
		s.influx.WritePermissionEvent("granted", vin, len(result.Granted))
	}

	writeJSON(w, http.StatusOK, result)
}

// handleRevokePermissions removes the user's permissions on every
// component matched by the path filter.
func (s *Server) handleRevokePermissions(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	username := chi.URLParam(r, "username")
	claims := claimsFromContext(r.Context())

	result, err := s.access.RevokeBulk(r.Context(), claims.Subject, vin, username, componentFilter(r))
	if err != nil {
		s.writeDomainError(w, err, "failed to revoke permissions")
		return
	}

	s.auditLog(audit.ActionRevoke, audit.EntityPermission, vin, claims.Subject, map[string]any{
		"username": username,
		"revoked":  len(result.Revoked),
	})
	if s.influx != nil {
		s.influx.WritePermissionEvent("revoked", vin, len(result.Revoked))
	}

	writeJSON(w, http.StatusOK, result)
}
