package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router and all endpoints.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/fields", h.GetFields)

		r.Route("/uploads", func(r chi.Router) {
			r.Post("/", h.CreateUpload)
			r.Post("/s3", h.CreateS3Upload)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetUpload)
				r.Delete("/", h.DeleteUpload)
				r.Post("/decisions", h.ApplyDecisions)
				r.Post("/finalize", h.FinalizeUpload)
				r.Post("/ingest", h.RunIngest)
				r.Get("/progress", h.GetProgress)
				r.Get("/export", h.ExportUpload)
				r.Post("/preview", h.PreviewPersonalization)
			})
		})
	})

	return r
}
