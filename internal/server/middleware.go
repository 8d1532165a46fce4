package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rcliao/timeturner/internal/logging"
)

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metrics.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()

		s.logger.Info(r.URL.Path,
			zap.String(logging.FieldMethod, r.Method),
			zap.String("url", r.URL.RequestURI()),
			zap.String("route", route),
			zap.Int(logging.FieldStatus, status),
			zap.Duration(logging.FieldDuration, time.Since(start)),
			zap.String("ip", r.RemoteAddr),
			zap.String("user-agent", r.UserAgent()),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				if rec != nil {
					panic(rec)
				}
				return
			}
			s.logger.Error("recovered from panic",
				zap.String("router", r.URL.Path),
				zap.String(logging.FieldMethod, r.Method),
				zap.String("panic_value", fmt.Sprintf("%v", rec)),
				zap.String("stack", string(debug.Stack())),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
