package router

import (
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/riandyrn/otelchi"
	"github.com/rs/cors"
)

// NewCORS allows cross origin requests from the given origins. An origin may
// contain one wildcard, e.g. http://localhost:*
func NewCORS(allowedOrigins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		AllowCredentials: true,
		Debug:            false,
	})
}

func New(serviceName string, c *cors.Cors) *chi.Mux {
	r := chi.NewRouter()

	r.Use(c.Handler)
	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(metrics.Middleware)

	return r
}
