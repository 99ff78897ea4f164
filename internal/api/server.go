// Package api serves the read-only HTTP view of occupancy and sessions.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/parking.report/internal/db"
	"github.com/banshee-data/parking.report/internal/httputil"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/sessions"
	"github.com/banshee-data/parking.report/internal/spaces"
	"github.com/banshee-data/parking.report/internal/status"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 1000
)

// StatusSource yields the most recently published snapshot.
type StatusSource interface {
	Latest() (status.Snapshot, error)
}

// SessionStore lists stored sessions; see db.DB.
type SessionStore interface {
	ListSessions(ctx context.Context, f db.SessionFilter) ([]*sessions.Session, error)
}

type Server struct {
	spaces  []spaces.Space
	status  StatusSource
	store   SessionStore
	metrics *monitoring.Metrics
}

// NewServer builds the API over the monitor's published state. metrics may
// be nil, in which case /metrics is not mounted.
func NewServer(defs []spaces.Space, src StatusSource, store SessionStore, metrics *monitoring.Metrics) *Server {
	return &Server{
		spaces:  defs,
		status:  src,
		store:   store,
		metrics: metrics,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/spaces", s.listSpaces)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/summary", s.showSummary)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap, err := s.status.Latest()
	if errors.Is(err, status.ErrNoSnapshot) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, snap)
}

// SpaceView is a space definition joined with its latest status.
type SpaceView struct {
	ID            int            `json:"id"`
	Polygon       spaces.Polygon `json:"polygon"`
	Status        string         `json:"status,omitempty"`
	OccupiedSince *time.Time     `json:"occupied_since,omitempty"`
	Elapsed       string         `json:"elapsed,omitempty"`
}

func (s *Server) listSpaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	byID := map[int]status.SpaceStatus{}
	if snap, err := s.status.Latest(); err == nil {
		for _, sp := range snap.Spaces {
			byID[sp.ID] = sp
		}
	}

	views := make([]SpaceView, len(s.spaces))
	for i, def := range s.spaces {
		views[i] = SpaceView{ID: def.ID, Polygon: def.Polygon}
		if st, ok := byID[def.ID]; ok {
			views[i].Status = st.Status
			views[i].OccupiedSince = st.OccupiedSince
			views[i].Elapsed = st.Elapsed
		}
	}
	httputil.WriteJSONOK(w, views)
}

func parseSessionFilter(r *http.Request, defLimit int) (db.SessionFilter, error) {
	var f db.SessionFilter
	var err error
	if f.SpaceID, err = httputil.QueryInt(r, "space", 0, 0); err != nil {
		return f, err
	}
	if f.Limit, err = httputil.QueryInt(r, "limit", defLimit, maxSessionLimit); err != nil {
		return f, err
	}
	if d := r.URL.Query().Get("date"); d != "" {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return f, errors.New("invalid date parameter, want YYYY-MM-DD")
		}
		f.Date = d
	}
	return f, nil
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	f, err := parseSessionFilter(r, defaultSessionLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	list, err := s.store.ListSessions(r.Context(), f)
	if err != nil {
		httputil.InternalServerError(w, "Failed to list sessions: "+err.Error())
		return
	}
	if list == nil {
		list = []*sessions.Session{}
	}
	httputil.WriteJSONOK(w, list)
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	f, err := parseSessionFilter(r, 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	list, err := s.store.ListSessions(r.Context(), f)
	if err != nil {
		httputil.InternalServerError(w, "Failed to list sessions: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, Summarize(list))
}
