// Package api serves classification, recommendation and feedback over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/crimson-sun/wastenot/internal/catalog"
	"github.com/crimson-sun/wastenot/internal/model"
	"github.com/crimson-sun/wastenot/internal/pipeline"
)

const (
	defaultMaxUploadBytes = 32 << 20
	defaultMaxImages      = 20
	defaultTimeout        = 60 * time.Second
	maxFeedbackBytes      = 16 << 10
)

// Classifier classifies a single image. Satisfied by *engine.Engine.
type Classifier interface {
	Classify(ctx context.Context, img model.ImageInput) (model.ClassificationResult, error)
}

// Recommender builds recommendations for a batch. Satisfied by
// *pipeline.Pipeline.
type Recommender interface {
	Recommend(ctx context.Context, imgs []model.ImageInput) (pipeline.Recommendation, error)
}

// FeedbackRecorder records feedback. Satisfied by *feedback.Ledger.
type FeedbackRecorder interface {
	Record(ctx context.Context, predictedLabel, feedbackType, comment string) (string, error)
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes bounds a multipart request body. Default: 32MB.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

// WithMaxImages bounds how many images one recommendation may carry. Default: 20.
func WithMaxImages(n int) Option {
	return func(s *Server) { s.maxImages = n }
}

// WithRequestTimeout sets the per-request deadline. Default: 60s.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithFeedbackRate limits feedback submissions per client IP per minute.
// 0 disables the limit.
func WithFeedbackRate(perMinute int) Option {
	return func(s *Server) { s.feedbackRate = perMinute }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server holds the HTTP handlers.
type Server struct {
	classifier  Classifier
	recommender Recommender
	feedback    FeedbackRecorder
	catalog     *catalog.Catalog
	render      RenderOptions

	maxUpload    int64
	maxImages    int
	timeout      time.Duration
	feedbackRate int
	metrics      http.Handler
}

// New creates a Server.
func New(cls Classifier, rec Recommender, fb FeedbackRecorder, cat *catalog.Catalog, render RenderOptions, opts ...Option) *Server {
	s := &Server{
		classifier:  cls,
		recommender: rec,
		feedback:    fb,
		catalog:     cat,
		render:      render,
		maxUpload:   defaultMaxUploadBytes,
		maxImages:   defaultMaxImages,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(accessLog)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	if s.render.ImageDir != "" && s.render.ImageURLPrefix != "" {
		prefix := strings.TrimSuffix(s.render.ImageURLPrefix, "/")
		fs := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(s.render.ImageDir)))
		r.Handle(prefix+"/*", fs)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.timeout))

		r.Get("/recipes", s.handleRecipes)
		r.Post("/classify", s.handleClassify)
		r.Post("/recommendations", s.handleRecommendations)

		r.Group(func(r chi.Router) {
			if s.feedbackRate > 0 {
				r.Use(httprate.Limit(s.feedbackRate, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
						writeError(w, http.StatusTooManyRequests, "Too many feedback submissions, try again later.")
					}),
				))
			}
			r.Post("/feedback", s.handleFeedback)
		})
	})

	return r
}
