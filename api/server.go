/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. requestLogger: Structured zerolog request logging
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/parts/*           Catalog + movement history
  /api/deliveries/*      Delivery intake
  /api/delivery-items/*  Item-level edits
  /api/jobs/*            Job part attachment
  /api/job-parts/*       Job part lifecycle
  /api/audit/*           Drift audit history
  /api/scenarios/*       Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public. The
  X-Performed-By header is trusted as-is for attribution.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterOptions carries the server-level knobs the router needs.
type RouterOptions struct {
	CorsEnabled bool
	CorsOrigins []string
	Logger      zerolog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Logger))
	if opts.CorsEnabled {
		origins := opts.CorsOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Performed-By"},
			AllowCredentials: true,
		}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Part catalog routes
		r.Route("/parts", func(r chi.Router) {
			r.Get("/", h.ListParts)
			r.Post("/", h.CreatePart)
			r.Get("/{id}", h.GetPart)
			r.Put("/{id}", h.UpdatePart)
			r.Get("/{id}/movements", h.GetPartMovements)
		})

		// Delivery routes
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", h.ListDeliveries)
			r.Post("/", h.CreateDelivery)
			r.Get("/{id}", h.GetDelivery)
			r.Delete("/{id}", h.DeleteDelivery)
			r.Post("/{id}/items", h.AddDeliveryItem)
		})

		// Delivery item routes
		r.Route("/delivery-items", func(r chi.Router) {
			r.Put("/{id}", h.UpdateDeliveryItem)
			r.Delete("/{id}", h.DeleteDeliveryItem)
		})

		// Job part routes
		r.Route("/jobs/{jobID}/parts", func(r chi.Router) {
			r.Get("/", h.ListJobParts)
			r.Post("/", h.CreateJobPart)
		})
		r.Route("/job-parts", func(r chi.Router) {
			r.Get("/{id}", h.GetJobPart)
			r.Put("/{id}", h.UpdateJobPart)
			r.Delete("/{id}", h.DeleteJobPart)
		})

		// Audit routes
		r.Route("/audit", func(r chi.Router) {
			r.Get("/runs", h.ListAuditRuns)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
