// Package server provides the HTTP API for shikaku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shikaku/internal/config"
	"github.com/hyperjump/shikaku/internal/imaging"
	"github.com/hyperjump/shikaku/internal/inference"
	"github.com/hyperjump/shikaku/internal/models"
)

// ServiceName is reported by GET /.
const ServiceName = "shikaku"

// Server is the HTTP server for the AI API. The pipeline (and the models behind
// it) is built once at startup and shared read-only by all handlers.
type Server struct {
	pipeline *inference.Pipeline
	config   *config.Config
	limits   models.Limits
	images   imaging.Limits
	version  string
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(pipeline *inference.Pipeline, cfg *config.Config, version string, logger *zap.Logger) *Server {
	images := imaging.Limits{
		MaxPixels:      cfg.Server.MaxImagePixels,
		MaxAspectRatio: cfg.Server.MaxImageAspectRatio,
	}
	return &Server{
		pipeline: pipeline,
		config:   cfg,
		limits:   models.Limits{Default: cfg.Search.DefaultLimit, Max: cfg.Search.MaxLimit},
		images:   images,
		version:  version,
		logger:   logger,
	}
}

// Handler builds the router with all middleware and routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(middleware.Compress(5))
	r.Use(cors(s.config.Server.CORSAllowedOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api/ai", func(r chi.Router) {
		if n := s.config.Server.MaxConcurrentInference; n > 0 {
			r.Use(middleware.Throttle(n))
		}
		r.Post("/image-features", s.handleImageFeatures)
		r.Post("/classify", s.handleClassify)
		r.Post("/text-embedding", s.handleTextEmbedding)
		r.Post("/search-by-text", s.handleSearchByText)
		r.Post("/similar-images", s.handleSimilarImages)
		r.Post("/recommendations", s.handleRecommendations)
		r.Post("/user-embedding", s.handleUserEmbedding)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("version", s.version))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
