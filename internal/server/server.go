// Package server exposes the fibre map over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/sells-group/fibre-map/internal/commune"
	"github.com/sells-group/fibre-map/internal/mapview"
	"github.com/sells-group/fibre-map/internal/palette"
	"github.com/sells-group/fibre-map/internal/pipeline"
)

// Loader runs one session load.
type Loader interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// Server serves the map page and its JSON API. Every request that needs the
// map runs a fresh load; nothing is shared between sessions.
type Server struct {
	loader   Loader
	lang     language.Tag
	gatherer prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a Server.
func New(loader Loader, opts ...Option) *Server {
	s := &Server{loader: loader, lang: language.French}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/map", s.handleMap)
		r.Get("/legend", s.handleLegend)
	})
	return r
}

// StatusFor maps a load failure to an HTTP status.
func StatusFor(err error) int {
	if commune.KindOf(err) == commune.KindSourceUnavailable {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	res, err := s.loader.Run(r.Context())
	if err != nil {
		writeErrorPage(w, StatusFor(err), err)
		return
	}

	var buf bytes.Buffer
	if err := mapview.RenderPage(&buf, res.Deck, res.Summary.Format(s.lang)); err != nil {
		zap.L().Error("server: render page", zap.String("session_id", res.SessionID), zap.Error(err))
		writeErrorPage(w, http.StatusInternalServerError, err)
		return
	}
	writeBody(w, http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func writeErrorPage(w http.ResponseWriter, status int, cause error) {
	var buf bytes.Buffer
	if err := mapview.RenderError(&buf, cause); err != nil {
		zap.L().Error("server: render error page", zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}
	writeBody(w, status, "text/html; charset=utf-8", buf.Bytes())
}

type mapResponse struct {
	SessionID string          `json:"session_id"`
	Deck      *mapview.Deck   `json:"deck"`
	Summary   commune.Summary `json:"summary"`
	Metrics   commune.Metrics `json:"metrics"`
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	res, err := s.loader.Run(r.Context())
	if err != nil {
		writeJSON(w, StatusFor(err), map[string]string{
			"error": err.Error(),
			"kind":  commune.KindOf(err).String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, mapResponse{
		SessionID: res.SessionID,
		Deck:      res.Deck,
		Summary:   res.Summary,
		Metrics:   res.Summary.Format(s.lang),
	})
}

func (s *Server) handleLegend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, palette.Legend())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v before writing the status, so an encode failure is
// answered with a 500 error body instead of a truncated 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
		status = http.StatusInternalServerError
		raw, _ = json.Marshal(map[string]string{"error": eris.Wrap(err, "server: encode response").Error()})
	}
	writeBody(w, status, "application/json", append(raw, '\n'))
}

func writeBody(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		zap.L().Warn("server: write response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
