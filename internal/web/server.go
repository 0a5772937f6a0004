// Package web serves the review HTTP API used by the local web server and the
// API Lambda.
//
// Endpoints:
//
//	GET    /api/health                  health check
//	GET    /api/options                 campaign options and upload limits
//	POST   /api/reviews                 submit creatives (multipart), 202 {id}
//	GET    /api/reviews/{id}            job status with per-run progress
//	DELETE /api/reviews/{id}            cancel an in-flight job
//	GET    /api/reviews/{id}/report.pdf PDF report of a finished job
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/metrics"
	"github.com/fpang/creative-review/internal/review"
	"github.com/fpang/creative-review/internal/s3util"
	"github.com/fpang/creative-review/internal/store"
)

// Defaults for upload limits.
const (
	DefaultMaxUploadBytes  = 500 << 20
	DefaultMultipartMemory = 32 << 20
)

// reportURLExpiry bounds presigned report links.
const reportURLExpiry = 15 * time.Minute

// Server handles the review API.
type Server struct {
	// Service validates submissions. Only its limits are used here; runs
	// happen in the Dispatcher.
	Service    *review.Service
	Store      store.JobStore
	Dispatcher Dispatcher

	// Bucket, when set, serves reports stored under Job.ReportKey through
	// presigned links.
	Bucket *s3util.Bucket

	Metrics *metrics.Emitter

	MaxUploadBytes  int64
	MultipartMemory int64

	// AllowedOrigins lists CORS origins besides localhost.
	AllowedOrigins []string
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)
	r.Use(s.withMetrics)
	r.Use(s.withCORS)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/options", s.handleOptions)
	r.Route("/api/reviews", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleCancel)
		r.Get("/{id}/report.pdf", s.handleReport)
	})
	return r
}

// --- Middleware ---

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("requestId", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

// withMetrics emits RequestLatencyMs and RequestCount per route pattern.
func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		s.Metrics.New().
			Dimension("Endpoint", endpoint).
			Duration("RequestLatencyMs", time.Since(start)).
			Count("RequestCount").
			Property("method", r.Method).
			Property("statusCode", ww.Status()).
			Flush()
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
		return true
	}
	for _, o := range s.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (s *Server) maxUploadBytes() int64 {
	if s.MaxUploadBytes > 0 {
		return s.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

func (s *Server) multipartMemory() int64 {
	if s.MultipartMemory > 0 {
		return s.MultipartMemory
	}
	return DefaultMultipartMemory
}
