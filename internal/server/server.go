// Package server is the HTTP shell over the snapshot store: browse pages for
// days, minutes and windows, a CSV table view, and PUT for uploads.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rcliao/timeturner/internal/config"
	"github.com/rcliao/timeturner/internal/store"
	"github.com/rcliao/timeturner/internal/timekey"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const defaultDateTimeLayout = "2006-01-02 15:04"

// maxUploadBytes caps a single PUT body.
const maxUploadBytes = 32 << 20

// Server serves the browse pages and the upload endpoint.
type Server struct {
	store     store.Store
	loc       *time.Location
	logger    *zap.Logger
	templates *template.Template
	registry  *prometheus.Registry
	metrics   *metrics
}

// Option configures a Server.
type Option func(*Server)

// WithLocation sets the location URL dates and times are parsed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.loc = loc }
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a Server backed by st.
func New(st store.Store, opts ...Option) (*Server, error) {
	s := &Server{
		store:    st,
		loc:      time.UTC,
		logger:   zap.NewNop(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"formatDateTime": formatDateTime,
		"dateKey":        timekey.FormatDate,
		"minuteKey":      timekey.FormatMinute,
		"secondKey":      timekey.FormatSecond,
		"pathEscape":     url.PathEscape,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s.templates = tmpl

	s.metrics, err = newMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.accessLog)

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Get("/", s.listDays)
	r.Get("/{date}/", s.listTimes)
	r.Get("/{date}/{time}/", s.listSnapshots)
	r.Get("/{date}/{time}/{hostname}/{title}/", s.viewSnapshot)
	r.Put("/{date}/{time}/{hostname}/{title}/", s.addSnapshot)

	return r
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func formatDateTime(t time.Time, layout string) string {
	if layout == "" {
		layout = defaultDateTimeLayout
	}
	return t.Format(layout)
}
