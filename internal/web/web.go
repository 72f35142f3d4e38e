package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"famcal/internal/auth"
	"famcal/internal/cache"
	"famcal/internal/calview"
	"famcal/internal/config"
	"famcal/internal/ics"
	appLog "famcal/internal/log"
	"famcal/internal/store"
)

// maxBodyBytes caps JSON request bodies; ICS imports get importMaxBytes.
const (
	maxBodyBytes   = 1 << 20
	importMaxBytes = 4 << 20
)

// Server provides the household calendar HTTP API.
type Server struct {
	cfg   *config.Config
	store store.Store
	auth  *auth.Authenticator
	mux   *http.ServeMux
	feeds *ics.Fetcher
	// cache holds expanded windows; nil disables caching.
	cache cache.Cache

	members   map[string]struct{}
	weekStart time.Weekday

	now func() time.Time
}

// NewServer constructs a new Server. occ may be nil.
func NewServer(cfg *config.Config, st store.Store, a *auth.Authenticator, occ cache.Cache) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		auth:      a,
		mux:       http.NewServeMux(),
		feeds:     ics.NewFetcher(cfg.Import.CacheDir),
		cache:     occ,
		members:   cfg.MemberSet(),
		weekStart: calview.ParseWeekStart(cfg.WeekStart),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler: request logging around the session
// check around the router.
func (s *Server) Handler() http.Handler {
	return logRequests(s.requireSession(s.mux))
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/auth/verify", s.handleVerify)
	s.mux.HandleFunc("GET /api/auth/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	s.mux.HandleFunc("GET /api/members", s.handleMembers)
	s.mux.HandleFunc("GET /api/categories", s.handleCategories)
	s.mux.HandleFunc("GET /api/periods", s.handlePeriods)
	s.mux.HandleFunc("GET /api/timetable", s.handleTimetable)

	s.mux.HandleFunc("GET /api/events", s.handleListOccurrences)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/events/{id}/exceptions", s.handleListExceptions)
	s.mux.HandleFunc("POST /api/events/{id}/exceptions", s.handleCreateException)
	s.mux.HandleFunc("DELETE /api/events/{id}/exceptions/{exId}", s.handleDeleteException)

	s.mux.HandleFunc("GET /api/calendar.ics", s.handleExportICS)
	s.mux.HandleFunc("POST /api/import", s.handleImportICS)
}

// publicPaths never require a session.
var publicPaths = map[string]bool{
	"/health":          true,
	"/api/auth/verify": true,
	"/api/auth/status": true,
	"/api/auth/logout": true,
}

// requireSession rejects /api/* requests without a valid session cookie.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if !s.auth.Authenticated(r) {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "인증이 필요합니다.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleMembers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"members": s.cfg.Members})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.cfg.Categories})
}

func (s *Server) handlePeriods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"periods": s.cfg.Periods})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func logInternal(what string, err error) {
	appLog.Error("api: "+what+" failed", err)
}
