package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carlink/carlink-core/internal/access"
	"github.com/carlink/carlink-core/internal/audit"
	"github.com/carlink/carlink-core/internal/vehicle"
)

type createTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type createComponentRequest struct {
	ComponentType string  `json:"component_type"`
	Name          string  `json:"name"`
	Status        float64 `json:"status"`
}

type statusRequest struct {
	Status *float64 `json:"status"`
}

// statusDenial reports one component the caller could not update.
type statusDenial struct {
	ComponentType string `json:"component_type"`
	ComponentName string `json:"component_name"`
	Error         string `json:"error"`
}

// ─── Component type catalog ────────────────────────────────────────

// handleListComponentTypes returns the component type catalog.
func (s *Server) handleListComponentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.components.ListTypes(r.Context())
	if err != nil {
		s.logger.Error("list component types failed", "error", err)
		writeInternalError(w, "failed to list component types")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"component_types": types,
		"count":           len(types),
	})
}

// handleCreateComponentType adds a catalog entry. Admin-only. Names
// collide case-insensitively: "Door" and "door" are the same type.
func (s *Server) handleCreateComponentType(w http.ResponseWriter, r *http.Request) {
	var req createTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	ct := &vehicle.ComponentType{Name: req.Name, Description: req.Description}
	if err := s.components.CreateType(r.Context(), ct); err != nil {
		s.writeDomainError(w, err, "failed to create component type")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionCreate, audit.EntityComponent, ct.ID, claims.Subject, map[string]any{
		"component_type": ct.Name,
	})

	writeJSON(w, http.StatusCreated, ct)
}

// handleDeleteComponentType removes a catalog entry. Admin-only; fails
// with 409 while components still reference the type.
func (s *Server) handleDeleteComponentType(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.components.DeleteType(r.Context(), id); err != nil {
		s.writeDomainError(w, err, "failed to delete component type")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionDelete, audit.EntityComponent, id, claims.Subject, nil)

	w.WriteHeader(http.StatusNoContent)
}

// ─── Vehicle components ────────────────────────────────────────────

// handleCreateComponent registers a component on a vehicle. Owner-only.
func (s *Server) handleCreateComponent(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	claims := claimsFromContext(r.Context())

	if err := s.requireVehicleOwner(r, vin, claims.Subject); err != nil {
		s.writeDomainError(w, err, "failed to create component")
		return
	}

	var req createComponentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ComponentType == "" || req.Name == "" {
		writeBadRequest(w, "component_type and name are required")
		return
	}

	ct, err := s.components.GetTypeByName(r.Context(), req.ComponentType)
	if err != nil {
		s.writeDomainError(w, err, "failed to create component")
		return
	}

	c := &vehicle.Component{
		VIN:      vin,
		TypeID:   ct.ID,
		TypeName: ct.Name,
		Name:     req.Name,
		Status:   req.Status,
	}
	if err := s.components.Create(r.Context(), c); err != nil {
		s.writeDomainError(w, err, "failed to create component")
		return
	}

	s.auditLog(audit.ActionCreate, audit.EntityComponent, c.ID, claims.Subject, map[string]any{
		"vin":            vin,
		"component_type": c.TypeName,
		"component_name": c.Name,
	})

	writeJSON(w, http.StatusCreated, c)
}

// handleListComponents returns a vehicle's components, optionally
// narrowed by the {type} path segment. The owner sees everything;
// other callers see only components they hold view access on.
func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	claims := claimsFromContext(r.Context())

	filter := vehicle.Filter{TypeName: chi.URLParam(r, "type")}

	owner, err := s.vehicles.GetOwner(r.Context(), vin)
	if err != nil {
		s.writeDomainError(w, err, "failed to list components")
		return
	}

	components, err := s.components.ListFiltered(r.Context(), vin, filter)
	if err != nil {
		s.writeDomainError(w, err, "failed to list components")
		return
	}

	if owner == nil || *owner != claims.Subject {
		components, err = s.filterAccessible(r, vin, claims.Subject, components)
		if err != nil {
			s.logger.Error("access filtering failed", "vin", vin, "error", err)
			writeInternalError(w, "failed to list components")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"components": components,
		"count":      len(components),
	})
}

// handleGetComponent returns one component by (type, name). Requires
// read access via the resolver.
func (s *Server) handleGetComponent(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	typeName := chi.URLParam(r, "type")
	name := chi.URLParam(r, "name")
	claims := claimsFromContext(r.Context())

	c, err := s.components.Get(r.Context(), vin, typeName, name)
	if err != nil {
		s.writeDomainError(w, err, "failed to get component")
		return
	}

	allowed, err := s.canAccess(r, vin, c.ID, claims.Subject, access.PermissionRead)
	if err != nil {
		s.writeDomainError(w, err, "failed to get component")
		return
	}
	if !allowed {
		writeForbidden(w, "read access to this component is required")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// handleUpdateStatus sets the status of the components matched by the
// {type}[/{name}] path. Each matched component needs write access;
// denials are reported per item, mirroring bulk grant semantics.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	claims := claimsFromContext(r.Context())

	filter := vehicle.Filter{
		TypeName: chi.URLParam(r, "type"),
		Name:     chi.URLParam(r, "name"),
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Status == nil {
		writeBadRequest(w, "status is required")
		return
	}
	if !vehicle.ValidStatus(*req.Status) {
		writeValidationError(w, vehicle.ErrInvalidStatus.Error())
		return
	}

	components, err := s.components.ListFiltered(r.Context(), vin, filter)
	if err != nil {
		s.writeDomainError(w, err, "failed to update status")
		return
	}
	if len(components) == 0 {
		writeNotFound(w, vehicle.ErrComponentNotFound.Error())
		return
	}

	updated := make([]vehicle.Component, 0, len(components))
	denied := []statusDenial{}

	for i := range components {
		c := &components[i]

		allowed, err := s.canAccess(r, vin, c.ID, claims.Subject, access.PermissionWrite)
		if err != nil {
			s.writeDomainError(w, err, "failed to update status")
			return
		}
		if !allowed {
			denied = append(denied, statusDenial{
				ComponentType: c.TypeName,
				ComponentName: c.Name,
				Error:         "write access to this component is required",
			})
			continue
		}

		if err := s.components.UpdateStatus(r.Context(), c.ID, *req.Status); err != nil {
			s.writeDomainError(w, err, "failed to update status")
			return
		}
		c.Status = *req.Status
		updated = append(updated, *c)

		s.publishComponentStatus(vin, c.ID, *req.Status)
	}

	if len(updated) == 0 {
		writeForbidden(w, "write access to this component is required")
		return
	}

	s.auditLog(audit.ActionUpdate, audit.EntityComponent, vin, claims.Subject, map[string]any{
		"status":  *req.Status,
		"updated": len(updated),
		"denied":  len(denied),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"updated": updated,
		"denied":  denied,
	})
}

// handleDeleteComponent removes a component and, through the store's
// lifecycle hook, every permission and capability referencing it.
// Owner-only.
func (s *Server) handleDeleteComponent(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	typeName := chi.URLParam(r, "type")
	name := chi.URLParam(r, "name")
	claims := claimsFromContext(r.Context())

	if err := s.requireVehicleOwner(r, vin, claims.Subject); err != nil {
		s.writeDomainError(w, err, "failed to delete component")
		return
	}

	c, err := s.components.Get(r.Context(), vin, typeName, name)
	if err != nil {
		s.writeDomainError(w, err, "failed to delete component")
		return
	}

	if err := s.store.DeleteForComponent(r.Context(), c.ID); err != nil {
		s.logger.Error("delete permissions for component failed", "component_id", c.ID, "error", err)
		writeInternalError(w, "failed to delete component")
		return
	}

	if err := s.components.Delete(r.Context(), c.ID); err != nil {
		s.writeDomainError(w, err, "failed to delete component")
		return
	}

	s.auditLog(audit.ActionDelete, audit.EntityComponent, c.ID, claims.Subject, map[string]any{
		"vin":            vin,
		"component_type": c.TypeName,
		"component_name": c.Name,
	})

	w.WriteHeader(http.StatusNoContent)
}

// ─── Helpers ───────────────────────────────────────────────────────

// requireVehicleOwner returns an error unless userID owns the vehicle.
func (s *Server) requireVehicleOwner(r *http.Request, vin, userID string) error {
	owner, err := s.vehicles.GetOwner(r.Context(), vin)
	if err != nil {
		return err
	}
	if owner == nil || *owner != userID {
		return vehicle.ErrNotOwner
	}
	return nil
}

// canAccess runs the resolver and records the decision as a metric.
func (s *Server) canAccess(r *http.Request, vin, componentID, userID string, pt access.PermissionType) (bool, error) {
	allowed, err := s.resolver.CanAccess(r.Context(), vin, componentID, userID, pt)
	if err != nil {
		return false, err
	}

	if s.influx != nil {
		owner, ownerErr := s.vehicles.GetOwner(r.Context(), vin)
		bypass := ownerErr == nil && owner != nil && *owner == userID
		s.influx.WriteAccessDecision(vin, string(pt), allowed, bypass)
	}

	return allowed, nil
}

// filterAccessible keeps only the components the user can read.
func (s *Server) filterAccessible(r *http.Request, vin, userID string, components []vehicle.Component) ([]vehicle.Component, error) {
	accessible := []vehicle.Component{}
	for i := range components {
		allowed, err := s.resolver.CanAccess(r.Context(), vin, components[i].ID, userID, access.PermissionRead)
		if err != nil {
			return nil, err
		}
		if allowed {
			accessible = append(accessible, components[i])
		}
	}
	return accessible, nil
}

// publishComponentStatus mirrors a status change onto MQTT and InfluxDB
// when those sinks are configured. Failures are logged, never fatal.
func (s *Server) publishComponentStatus(vin, componentID string, status float64) {
	if s.influx != nil {
		s.influx.WriteComponentStatus(vin, componentID, status)
	}

	if s.mqtt != nil && s.mqtt.IsConnected() {
		payload, err := json.Marshal(map[string]any{"status": status})
		if err != nil {
			return
		}
		topic := mqttTopics.ComponentStatus(vin, componentID)
		if err := s.mqtt.Publish(topic, payload, 1, true); err != nil {
			s.logger.Warn("component status publish failed", "topic", topic, "error", err)
		}
	}
}
