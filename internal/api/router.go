package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Health and version (no auth required)
	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/api", func(r chi.Router) {
		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			// User administration
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)
					r.Get("/sessions", s.handleListUserSessions)
					r.Delete("/sessions", s.handleRevokeUserSessions)
				})
			})

			// Audit trail (admin-only)
			r.With(s.requireAdmin).Get("/audit", s.handleListAuditLogs)

			// Component type catalog
			r.Route("/component-types", func(r chi.Router) {
				r.Get("/", s.handleListComponentTypes)
				r.With(s.requireAdmin).Post("/", s.handleCreateComponentType)
				r.With(s.requireAdmin).Delete("/{id}", s.handleDeleteComponentType)
			})

			// Vehicles
			r.Route("/vehicles", func(r chi.Router) {
				r.Post("/", s.handleRegisterVehicle)
				r.Get("/my", s.handleMyVehicles)
				r.Get("/accessed", s.handleAccessedVehicles)
				r.Post("/take-ownership", s.handleTakeOwnership)
				r.Post("/disown", s.handleDisown)

				r.Route("/{vin}", func(r chi.Router) {
					r.Get("/", s.handleGetVehicle)
					r.Patch("/nickname", s.handleUpdateNickname)

					r.Route("/components", func(r chi.Router) {
						r.Get("/", s.handleListComponents)
						r.Post("/", s.handleCreateComponent)

						r.Route("/{type}", func(r chi.Router) {
							r.Get("/", s.handleListComponents)
							r.Patch("/", s.handleUpdateStatus)

							r.Route("/{name}", func(r chi.Router) {
								r.Get("/", s.handleGetComponent)
								r.Patch("/", s.handleUpdateStatus)
								r.Delete("/", s.handleDeleteComponent)
							})
						})
					})

					r.Route("/permissions", func(r chi.Router) {
						r.Get("/overview", s.handlePermissionOverview)

						r.Route("/{username}", func(r chi.Router) {
							r.Get("/", s.handleGetUserPermissions)
							r.Post("/", s.handleGrantPermissions)
							r.Delete("/", s.handleRevokePermissions)

							r.Route("/component/{type}", func(r chi.Router) {
								r.Get("/", s.handleGetUserPermissions)
								r.Post("/", s.handleGrantPermissions)
								r.Delete("/", s.handleRevokePermissions)

								r.Route("/{name}", func(r chi.Router) {
									r.Get("/", s.handleGetUserPermissions)
									r.Post("/", s.handleGrantPermissions)
									r.Delete("/", s.handleRevokePermissions)
								})
							})
						})
					})
				})
			})
		})
	})

	return r
}
