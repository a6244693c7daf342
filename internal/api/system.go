package api

import (
	"context"
	"net/http"
	"time"
)

// healthProbeTimeout bounds each dependency probe so one stuck backend
// cannot hang the whole health response.
const healthProbeTimeout = 3 * time.Second

// handleHealth reports the health of the service and its backends.
// Optional backends (MQTT, InfluxDB) are only reported when configured.
// The endpoint returns 200 as long as the database is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if s.dbHealth != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		if err := s.dbHealth.HealthCheck(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
		cancel()
	}

	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
		}
	}

	if s.influx != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		if err := s.influx.HealthCheck(ctx); err != nil {
			checks["influxdb"] = err.Error()
		} else {
			checks["influxdb"] = "ok"
		}
		cancel()
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}

// handleVersion returns the build version.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}
