package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"clipdash/src/clipboard"
	"clipdash/src/directors"
	"clipdash/src/settings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server is the HTTP surface of the registry. Everything it does is a
// thin translation layer over the service manager.
type Server struct {
	router   *chi.Mux
	manager  *directors.ServiceManager
	users    *directors.UserService
	seeder   *clipboard.Seeder
	settings *settings.Arguments
	server   *http.Server
	logger   *zap.SugaredLogger
}

// NewServer wires the routes. The seeder may be nil when no clipboard
// service URL is configured.
func NewServer(manager *directors.ServiceManager, users *directors.UserService,
	seeder *clipboard.Seeder, args *settings.Arguments, logger *zap.SugaredLogger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	s := &Server{
		router:   router,
		manager:  manager,
		users:    users,
		seeder:   seeder,
		settings: args,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		if s.settings.AuthEnabled {
			r.Use(s.basicAuth)
		}

		r.Get("/templates", s.handleListTemplates)

		r.Post("/databases", s.handleRegisterDatabase)
		r.Get("/databases", s.handleListDatabases)
		r.Get("/databases/{id}", s.handleGetDatabase)
		r.Delete("/databases/{id}", s.handleRemoveDatabase)
		r.Post("/databases/{id}/connect", s.handleConnect)
		r.Post("/databases/{id}/disconnect", s.handleDisconnect)
		r.Post("/databases/{id}/collections", s.handleAddCollection)
		r.Post("/databases/{id}/stats/refresh", s.handleRefreshStats)

		r.Post("/databases/{id}/collections/{collection}/records", s.handleCreateRecord)
		r.Get("/databases/{id}/collections/{collection}/records", s.handleReadRecords)
		r.Get("/databases/{id}/collections/{collection}/records/{recordID}", s.handleGetRecord)
		r.Patch("/databases/{id}/collections/{collection}/records/{recordID}", s.handleUpdateRecord)
		r.Delete("/databases/{id}/collections/{collection}/records/{recordID}", s.handleDeleteRecord)
		r.Post("/databases/{id}/collections/{collection}/bulk", s.handleBulkCreate)
		r.Post("/databases/{id}/collections/{collection}/bulk-delete", s.handleBulkDelete)
		r.Get("/databases/{id}/collections/{collection}/count", s.handleCountRecords)

		r.Get("/search", s.handleSearch)

		r.Get("/databases/{id}/backup", s.handleBackup)
		r.Get("/databases/{id}/export", s.handleExport)
		r.Post("/databases/{id}/import", s.handleImport)
		r.Post("/merge", s.handleMerge)

		r.Post("/relationships", s.handleAddRelationship)
		r.Get("/relationships", s.handleListRelationships)

		r.Post("/clipboard/seed", s.handleSeedClipboard)

		r.Post("/users", s.handleAddUser)
		r.Delete("/users/{username}", s.handleDeleteUser)
	})
}

// Start begins serving. Blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.settings.Host, s.settings.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Infof("Registry server listening on %s", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// basicAuth verifies credentials against the user store.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="clipdash"`)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if _, err := s.users.Authenticate(username, password); err != nil {
			s.logger.Warnf("Failed authentication for user %q", username)
			w.Header().Set("WWW-Authenticate", `Basic realm="clipdash"`)
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
