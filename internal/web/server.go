// Package web provides the HTTP server and handlers for the bulk upload API.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/schoolsetu/reconcile/internal/admin"
	"github.com/schoolsetu/reconcile/internal/config"
	"github.com/schoolsetu/reconcile/internal/engine"
	"github.com/schoolsetu/reconcile/internal/web/middleware"
)

// Server is the HTTP server for the reconciliation API.
type Server struct {
	cfg      *config.Config
	setup    *engine.SetupEngine
	migrate  *engine.MigrationEngine
	families *engine.FamilyImporter
	reset    *admin.Resetter
	router   *chi.Mux
	server   *http.Server
}

// NewServer wires the upload engines into an HTTP server. reset may be
// nil, in which case the admin reset route responds 503.
func NewServer(cfg *config.Config, setup *engine.SetupEngine, migrate *engine.MigrationEngine, families *engine.FamilyImporter, reset *admin.Resetter) *Server {
	s := &Server{
		cfg:      cfg,
		setup:    setup,
		migrate:  migrate,
		families: families,
		reset:    reset,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	// Uploads of large workbooks can legitimately run for minutes.
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		// Unified hierarchy setup (one CSV/XLSX, grouped by school)
		r.Post("/setup/unified", s.handleUnifiedSetup)

		// Table-by-table migration (XLSX workbook, or CSV with ?table=)
		r.Post("/migrate", s.handleMigrate)
		r.Get("/migrate/tables", s.handleMigrateTables)

		// Parent/student family onboarding
		r.Post("/upload/families", s.handleFamilyUpload)

		// Destructive: wipe all imported data
		r.Post("/admin/reset", s.handleReset)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
