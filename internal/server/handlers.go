package server

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rcliao/timeturner/internal/logging"
	"github.com/rcliao/timeturner/internal/model"
	"github.com/rcliao/timeturner/internal/store"
	"github.com/rcliao/timeturner/internal/timekey"
)

type hostGroup struct {
	Hostname string
	Titles   []string
}

func (s *Server) listDays(w http.ResponseWriter, r *http.Request) {
	days, err := s.store.ListDays(r.Context())
	if err != nil {
		s.serverError(w, "list days", err)
		return
	}
	s.render(w, "list_days.html", map[string]any{
		"Title": "Days",
		"Days":  days,
	})
}

func (s *Server) listTimes(w http.ResponseWriter, r *http.Request) {
	day, err := timekey.ParseDate(chi.URLParam(r, "date"), s.loc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	timestamps, err := s.store.ListMinutes(r.Context(), day)
	if err != nil {
		s.serverError(w, "list minutes", err)
		return
	}
	s.render(w, "list_times.html", map[string]any{
		"Title":      formatDateTime(day, "2006-01-02"),
		"Day":        day,
		"Timestamps": timestamps,
	})
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	ts, ok := s.parseDateTime(w, r)
	if !ok {
		return
	}

	infos, err := s.store.ListAt(r.Context(), ts)
	if err != nil {
		s.serverError(w, "list snapshots", err)
		return
	}
	s.render(w, "list_snapshots.html", map[string]any{
		"Title":     formatDateTime(ts, ""),
		"Timestamp": ts,
		"Hosts":     groupByHost(infos),
	})
}

func (s *Server) viewSnapshot(w http.ResponseWriter, r *http.Request) {
	ts, ok := s.parseDateTime(w, r)
	if !ok {
		return
	}
	hostname := pathParam(r, "hostname")
	title := pathParam(r, "title")

	contents, err := s.store.GetContents(r.Context(), ts, hostname, title)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		s.serverError(w, "get contents", err)
		return
	}

	data := map[string]any{
		"Title":     hostname + " / " + title,
		"Timestamp": ts,
		"Hostname":  hostname,
		"Snapshot":  title,
		"Raw":       contents,
	}
	if rows, err := parseCSV(contents); err == nil && len(rows) > 0 {
		data["Columns"] = rows[0]
		data["Rows"] = rows[1:]
	} else if err != nil {
		s.logger.Warn("snapshot is not valid CSV",
			zap.Time(logging.FieldTimestamp, ts),
			zap.String(logging.FieldHostname, hostname),
			zap.String(logging.FieldTitle, title),
			zap.Error(err))
	}
	s.render(w, "view_snapshot.html", data)
}

func (s *Server) addSnapshot(w http.ResponseWriter, r *http.Request) {
	ts, ok := s.parseDateTime(w, r)
	if !ok {
		return
	}
	hostname := pathParam(r, "hostname")
	title := pathParam(r, "title")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.store.Add(r.Context(), ts, hostname, title, body)
	switch {
	case errors.Is(err, store.ErrDuplicate):
		s.metrics.conflicts.Inc()
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, store.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.serverError(w, "add snapshot", err)
		return
	}

	s.metrics.added.Inc()
	s.logger.Info("snapshot stored",
		zap.Time(logging.FieldTimestamp, ts),
		zap.String(logging.FieldHostname, hostname),
		zap.String(logging.FieldTitle, title),
		zap.Int("size", len(body)))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) parseDateTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	ts, err := timekey.ParseDateTime(chi.URLParam(r, "date"), chi.URLParam(r, "time"), s.loc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return time.Time{}, false
	}
	return ts, true
}

func (s *Server) render(w http.ResponseWriter, name string, data map[string]any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.serverError(w, "render "+name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// pathParam returns a decoded route parameter. chi matches against the raw
// path when the request carried escapes such as %2F.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

// groupByHost folds the hostname-ordered infos into one group per host.
func groupByHost(infos []model.SnapshotInfo) []hostGroup {
	var groups []hostGroup
	for _, info := range infos {
		if n := len(groups); n > 0 && groups[n-1].Hostname == info.Hostname {
			groups[n-1].Titles = append(groups[n-1].Titles, info.Title)
			continue
		}
		groups = append(groups, hostGroup{Hostname: info.Hostname, Titles: []string{info.Title}})
	}
	return groups
}

func parseCSV(contents string) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(contents))
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}
