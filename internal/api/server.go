// Package api provides the HTTP REST API for Carlink Core.
//
// It exposes vehicle ownership, the component catalog, and the
// permission engine (bulk grant/revoke, listings, access-checked
// component status) to mobile apps and fleet dashboards.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carlink/carlink-core/internal/access"
	"github.com/carlink/carlink-core/internal/audit"
	"github.com/carlink/carlink-core/internal/auth"
	"github.com/carlink/carlink-core/internal/infrastructure/config"
	"github.com/carlink/carlink-core/internal/infrastructure/influxdb"
	"github.com/carlink/carlink-core/internal/infrastructure/logging"
	"github.com/carlink/carlink-core/internal/infrastructure/mqtt"
	"github.com/carlink/carlink-core/internal/vehicle"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// mqttTopics builds broker topic strings for status mirroring.
var mqttTopics = mqtt.Topics{}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Users      auth.UserRepository
	Tokens     auth.TokenRepository
	Vehicles   vehicle.Repository
	Components vehicle.ComponentRepository
	Access     *access.Service
	Resolver   *access.Resolver
	Store      *access.Store
	Audit      audit.Repository
	MQTT       *mqtt.Client     // optional: health reporting only
	Influx     *influxdb.Client // optional: decision/event metrics
	DBHealth   HealthChecker    // optional: database health for GET /health
	Version    string
}

// HealthChecker is anything with a pingable health probe. The database,
// MQTT client and InfluxDB client all satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP API server for Carlink Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	userRepo   auth.UserRepository
	tokenRepo  auth.TokenRepository
	vehicles   vehicle.Repository
	components vehicle.ComponentRepository
	access     *access.Service
	resolver   *access.Resolver
	store      *access.Store
	auditRepo  audit.Repository
	auditCh    chan *audit.AuditLog
	mqtt       *mqtt.Client
	influx     *influxdb.Client
	dbHealth   HealthChecker
	version    string
	server     *http.Server
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Users == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("user and token repositories are required")
	}
	if deps.Vehicles == nil || deps.Components == nil {
		return nil, fmt.Errorf("vehicle and component repositories are required")
	}
	if deps.Access == nil || deps.Resolver == nil || deps.Store == nil {
		return nil, fmt.Errorf("access service, resolver and store are required")
	}
	// Audit, MQTT and InfluxDB are optional; endpoints degrade gracefully.

	s := &Server{
		cfg:        deps.Config,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		userRepo:   deps.Users,
		tokenRepo:  deps.Tokens,
		vehicles:   deps.Vehicles,
		components: deps.Components,
		access:     deps.Access,
		resolver:   deps.Resolver,
		store:      deps.Store,
		auditRepo:  deps.Audit,
		mqtt:       deps.MQTT,
		influx:     deps.Influx,
		dbHealth:   deps.DBHealth,
		version:    deps.Version,
	}

	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the audit log drain, and launches the
// HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (audit drain)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
