package app

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"contact-sync/internal/common/logging"
	"contact-sync/internal/handlers"
	"contact-sync/internal/middleware"
	"contact-sync/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers, authMiddleware func(http.Handler) http.Handler, limiter *ratelimit.Limiter, logger logging.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))

	// Health check (no auth required)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Swagger UI (no auth required)
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	// Protected routes - require authentication and rate limiting
	protected := router.NewRoute().Subrouter()
	protected.Use(authMiddleware)
	if limiter != nil {
		protected.Use(ratelimit.Middleware(limiter, ratelimit.UserKey))
	}

	api := protected.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/logout", h.Logout).Methods("POST")

	// CardDAV connection and sync
	api.HandleFunc("/carddav/connection", h.GetConnection).Methods("GET")
	api.HandleFunc("/carddav/connection", h.PutConnection).Methods("PUT")
	api.HandleFunc("/carddav/sync", h.TriggerSync).Methods("POST")

	// Conflicts
	api.HandleFunc("/carddav/conflicts", h.ListConflicts).Methods("GET")
	api.HandleFunc("/carddav/conflicts/{id}/resolve", h.ResolveConflict).Methods("POST")

	// Pending imports and vCard uploads
	api.HandleFunc("/carddav/imports", h.ListImports).Methods("GET")
	api.HandleFunc("/carddav/imports", h.UploadImport).Methods("POST")
	api.HandleFunc("/carddav/imports/{id}", h.ImportPending).Methods("POST")
	api.HandleFunc("/carddav/imports/{id}", h.DismissPending).Methods("DELETE")

	// People
	api.HandleFunc("/people/{id}/merge", h.MergePeople).Methods("POST")
}
