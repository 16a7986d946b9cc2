package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Routes bundles the handlers and middleware the router mounts.
type Routes struct {
	Auth           *AuthHandler
	Documents      *DocumentHandler
	Jobs           *JobHandler
	AuthMiddleware func(http.Handler) http.Handler
	SubmitLimiter  func(http.Handler) http.Handler
	AllowedOrigins []string
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(routes Routes) http.Handler {
	router := mux.NewRouter()

	// Health check and metrics (no auth required)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "docflow"})
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	protected := api.PathPrefix("").Subrouter()
	protected.Use(routes.AuthMiddleware)
	if routes.SubmitLimiter != nil {
		protected.Use(routes.SubmitLimiter)
	}

	protected.HandleFunc("/auth/validate", routes.Auth.ValidateToken).Methods("GET")

	protected.HandleFunc("/documents", routes.Documents.ListDocuments).Methods("GET")
	protected.HandleFunc("/documents", routes.Documents.UploadDocument).Methods("POST")
	protected.HandleFunc("/documents/{id}", routes.Documents.GetDocument).Methods("GET")
	protected.HandleFunc("/documents/{id}", routes.Documents.UpdateDocument).Methods("PATCH")
	protected.HandleFunc("/documents/{id}", routes.Documents.DeleteDocument).Methods("DELETE")
	protected.HandleFunc("/documents/{id}/content", routes.Documents.GetContent).Methods("GET")
	protected.HandleFunc("/documents/{id}/url", routes.Documents.GetURL).Methods("GET")
	protected.HandleFunc("/documents/{id}/trash", routes.Documents.TrashDocument).Methods("POST")
	protected.HandleFunc("/documents/{id}/restore", routes.Documents.RestoreDocument).Methods("POST")

	protected.HandleFunc("/trash", routes.Documents.ListTrash).Methods("GET")
	protected.HandleFunc("/trash/empty", routes.Documents.EmptyTrash).Methods("POST")
	protected.HandleFunc("/trash/{id}", routes.Documents.DeleteTrashItem).Methods("DELETE")

	protected.HandleFunc("/jobs", routes.Jobs.SubmitJob).Methods("POST")
	protected.HandleFunc("/jobs/{id}", routes.Jobs.GetJob).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: routes.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"If-None-Match",
		},
		ExposedHeaders: []string{
			"Content-Disposition",
			"ETag",
			"Location",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	return c.Handler(router)
}
