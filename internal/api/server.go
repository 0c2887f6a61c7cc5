// Package api provides the HTTP API server and handlers for the FieldMap
// mapping service.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fieldmapapp/fieldmap-server/internal/learning"
	"github.com/fieldmapapp/fieldmap-server/internal/mapper"
	"github.com/fieldmapapp/fieldmap-server/internal/schema"
	"github.com/fieldmapapp/fieldmap-server/internal/search"
	"github.com/fieldmapapp/fieldmap-server/internal/store"
)

// Services groups the components the API server fronts.
type Services struct {
	Registry *schema.Registry
	Mapper   *mapper.Mapper
	Learning *learning.Store
	Suggest  *search.SuggestIndex
	Rules    *store.Store
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services *Services
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger

	mutationLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		services:        services,
		router:          chi.NewRouter(),
		logger:          logger,
		mutationLimiter: NewRateLimiter(120, time.Minute, 30),
	}

	// Middleware must be installed before humachi registers the first route.
	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("FieldMap API", "1.0.0")
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerMappingRoutes()
	s.registerCorrectionRoutes()
	s.registerSchemaRoutes()
	s.registerAliasRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Mutation endpoints are rate limited per client IP; reads are not.
	limit := RateLimitMiddleware(s.mutationLimiter, s.logger)
	s.router.Use(func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}
