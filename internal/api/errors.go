package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carlink/carlink-core/internal/access"
	"github.com/carlink/carlink-core/internal/auth"
	"github.com/carlink/carlink-core/internal/vehicle"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeValidationError writes a 400 error response with a validation code.
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// Sentinel groups for the domain error taxonomy: validation failures map
// to 400, authorisation failures to 403, absent entities to 404, and
// uniqueness collisions to 409. Everything else is a 500.
var (
	validationErrors = []error{
		vehicle.ErrInvalidVIN,
		vehicle.ErrInvalidStatus,
		access.ErrInvalidPermission,
		access.ErrPastExpiry,
		access.ErrSelfGrant,
		access.ErrGranteeIsOwner,
		access.ErrNoMatchingComponents,
	}
	forbiddenErrors = []error{
		vehicle.ErrNotOwner,
		vehicle.ErrAlreadyOwned,
		access.ErrNotOwner,
		auth.ErrForbidden,
	}
	notFoundErrors = []error{
		vehicle.ErrVehicleNotFound,
		vehicle.ErrComponentNotFound,
		vehicle.ErrTypeNotFound,
		access.ErrPermissionNotFound,
		access.ErrNoPermissionsFound,
		auth.ErrUserNotFound,
	}
	conflictErrors = []error{
		vehicle.ErrVehicleExists,
		vehicle.ErrComponentExists,
		vehicle.ErrTypeExists,
		vehicle.ErrTypeInUse,
		auth.ErrUsernameExists,
	}
)

// writeDomainError maps a domain sentinel onto the HTTP taxonomy.
// Unrecognised errors are logged by the caller and written as 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			writeValidationError(w, target.Error())
			return
		}
	}
	for _, target := range forbiddenErrors {
		if errors.Is(err, target) {
			writeForbidden(w, target.Error())
			return
		}
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			writeNotFound(w, target.Error())
			return
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			writeConflict(w, target.Error())
			return
		}
	}

	s.logger.Error("unhandled domain error", "error", err)
	writeInternalError(w, fallback)
}
