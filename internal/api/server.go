// Package api exposes the HTTP surface of the image generation service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pixelforge/imagesvc/internal/clock/system"
	"github.com/pixelforge/imagesvc/internal/config"
	"github.com/pixelforge/imagesvc/internal/generation"
	"github.com/pixelforge/imagesvc/internal/metrics"
	"github.com/pixelforge/imagesvc/internal/pdf"
)

// Generator runs the full image generation pipeline for one request.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

// Options wires the server's collaborators. Generator and Renderer may be nil
// when the corresponding feature is not configured; the affected endpoints
// then answer 503.
type Options struct {
	Config    *config.Config
	Generator Generator
	Renderer  pdf.Renderer
	Blobs     generation.BlobStore
	Stats     *metrics.Stats
	Clock     generation.Clock
	Logger    *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	cfg       *config.Config
	router    chi.Router
	generator Generator
	renderer  pdf.Renderer
	blobs     generation.BlobStore
	stats     *metrics.Stats
	clock     generation.Clock
	logger    *zap.Logger
}

// New builds the server and its route table.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Stats == nil {
		opts.Stats = metrics.NewStats()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	s := &Server{
		cfg:       opts.Config,
		generator: opts.Generator,
		renderer:  opts.Renderer,
		blobs:     opts.Blobs,
		stats:     opts.Stats,
		clock:     opts.Clock,
		logger:    logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metrics.Middleware)
	// Request handling must outlive the full polling window.
	r.Use(timeoutMiddleware(s.cfg.PollTimeout() + 30*time.Second))

	r.Group(func(r chi.Router) {
		if s.cfg.Auth.Enabled {
			r.Use(s.apiKeyMiddleware)
		}
		r.Post("/generate", s.handleGenerate)
		r.Post("/convert_html_to_pdf", s.handleConvertHTMLToPDF)
	})

	r.Get("/stats", s.handleStats)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", metrics.Handler())

	fileServer := http.FileServer(http.Dir(s.cfg.Images.OutputDir))
	r.Handle("/static/generated_images/*", http.StripPrefix("/static/generated_images/", fileServer))

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": message,
	})
}
