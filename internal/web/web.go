package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"meetfeed/internal/clock"
	"meetfeed/internal/config"
	"meetfeed/internal/engine"
	"meetfeed/internal/export"
	"meetfeed/internal/feed"
	"meetfeed/internal/format"
	appLog "meetfeed/internal/log"
	"meetfeed/internal/session"
)

// Server exposes the engine's current view and its navigation and
// selection operations over HTTP.
type Server struct {
	cfg   *config.Config
	eng   *engine.Engine
	loc   *time.Location
	clock clock.Clock
	mux   *http.ServeMux

	// icsBlocked is the reason ICS export is refused, if any.
	icsBlocked string
}

type Option func(*Server)

// WithoutICS refuses /api/meetings.ics with 409 and the given reason,
// for feeds whose dates cannot be read as Gregorian.
func WithoutICS(reason string) Option {
	return func(s *Server) { s.icsBlocked = reason }
}

// NewServer constructs a new Server. loc is the zone ICS exports place
// meeting start times in.
func NewServer(cfg *config.Config, eng *engine.Engine, loc *time.Location, opts ...Option) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:   cfg,
		eng:   eng,
		loc:   loc,
		clock: clock.Real{},
		mux:   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="meetfeed", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/page", s.handlePage)
	s.mux.HandleFunc("POST /api/page/next", s.handleNextPage)
	s.mux.HandleFunc("POST /api/page/prev", s.handlePrevPage)
	s.mux.HandleFunc("POST /api/selection/{rank}", s.handleToggle)
	s.mux.HandleFunc("DELETE /api/selection", s.handleResetSelection)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("GET /api/meetings.ics", s.handleICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, format.NewPageDTO(s.eng.CurrentPage()))
}

func (s *Server) handleNextPage(w http.ResponseWriter, _ *http.Request) {
	s.eng.NextPage()
	writeJSON(w, http.StatusOK, format.NewPageDTO(s.eng.CurrentPage()))
}

func (s *Server) handlePrevPage(w http.ResponseWriter, _ *http.Request) {
	s.eng.PrevPage()
	writeJSON(w, http.StatusOK, format.NewPageDTO(s.eng.CurrentPage()))
}

type toggleResponse struct {
	Rank     int  `json:"rank"`
	Selected bool `json:"selected"`
}

// handleToggle flips the selection of the meeting at the 1-based display
// rank in the path.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	rank, err := strconv.Atoi(r.PathValue("rank"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "rank must be an integer")
		return
	}

	selected, err := s.eng.Toggle(rank)
	if err != nil {
		if errors.Is(err, engine.ErrRankOutOfRange) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		appLog.Error("toggle failed", err, "rank", rank)
		writeError(w, http.StatusInternalServerError, "toggle failed")
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Rank: rank, Selected: selected})
}

func (s *Server) handleResetSelection(w http.ResponseWriter, _ *http.Request) {
	s.eng.ResetSelection()
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh runs one refresh cycle and returns the resulting view. The
// status code reflects the cycle outcome; the body is always the view.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.eng.Refresh(r.Context())
	writeJSON(w, refreshStatus(err), format.NewPageDTO(s.eng.CurrentPage()))
}

func refreshStatus(err error) int {
	var fetchErr *feed.FetchError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrSessionExpired), errors.Is(err, engine.ErrNoToken):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrSuperseded):
		return http.StatusConflict
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type sessionResponse struct {
	Expired bool `json:"expired"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{Expired: s.eng.Expired()})
}

// handleICS exports the full normalized feed.
//
// GET /api/meetings.ics?selected=1 limits the export to selected meetings.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	if s.icsBlocked != "" {
		writeError(w, http.StatusConflict, s.icsBlocked)
		return
	}

	meetings := s.eng.Feed()
	if r.URL.Query().Get("selected") == "1" {
		meetings = s.eng.SelectedMeetings()
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="meetings.ics"`)
	if err := export.WriteICS(w, meetings, s.loc, s.clock.Now()); err != nil {
		appLog.Error("failed to write ICS response", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
