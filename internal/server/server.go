// Package server provides the HTTP API and the reader view.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"limoni/internal/archive"
	"limoni/internal/metrics"
	"limoni/internal/storage"
)

// Server is the HTTP front of the archive.
type Server struct {
	svc      *archive.Service
	repo     storage.Repository
	metrics  *metrics.Metrics
	siteHost string
	router   chi.Router
	log      logrus.FieldLogger
}

// New creates a server. siteBaseURL restricts which pages the reader view
// is willing to fetch.
func New(svc *archive.Service, m *metrics.Metrics, siteBaseURL string, logger logrus.FieldLogger) (*Server, error) {
	u, err := url.Parse(siteBaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid site base url %q", siteBaseURL)
	}
	s := &Server{
		svc:      svc,
		repo:     svc.Repository(),
		metrics:  m,
		siteHost: u.Host,
		log:      logger.WithField("component", "http"),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/collections", http.StatusFound)
	})
	r.Get("/view", s.handleView)
	r.Post("/view/add", s.handleViewAdd)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/collections", s.handleGetCollections)
		r.Post("/collections", s.handleCreateCollection)
		r.Route("/collections/{collectionID}", func(r chi.Router) {
			r.Get("/", s.handleGetCollection)
			r.Patch("/", s.handleUpdateCollection)
			r.Delete("/", s.handleDeleteCollection)
			r.Get("/export", s.handleExport)
			r.Delete("/entries/{entryID}", s.handleDeleteEntry)
		})
		r.Post("/entries", s.handleAddEntry)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Post("/favorites", s.handleImportFavorites)
	})

	s.router = r
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// observe logs every request and records it in the metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(route, ww.Status(), elapsed)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"route":      route,
			"status":     ww.Status(),
			"duration":   elapsed.String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Request served")
	})
}

// allowedPage reports whether the reader view may fetch raw.
func (s *Server) allowedPage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && strings.EqualFold(u.Host, s.siteHost)
}
