// Package httpapi exposes the daemon's orchestration core over a local HTTP
// API consumed by the GUI front-end.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"streamhostd/internal/display"
	"streamhostd/internal/monitor"
	"streamhostd/pkg/types"
)

// StatusMonitor is the monitor surface the API fronts.
type StatusMonitor interface {
	Snapshot() monitor.Snapshot
	StartPolling()
	StopPolling()
	ForceProbe(ctx context.Context) (types.ServiceStatus, error)
}

// CredentialReconciler runs the credential protocols.
type CredentialReconciler interface {
	SyncState(latestStatus types.ServiceStatus) (types.SyncState, error)
	FirstTimeSetup(ctx context.Context, creds types.Credentials) error
	Reconnect(ctx context.Context, creds types.Credentials) error
	ChangeCredentials(ctx context.Context, next types.Credentials) error
}

// DisplayController fronts the virtual display driver. May be nil when the
// driver is not installed.
type DisplayController interface {
	Modes() ([]types.DisplayMode, error)
	State() (types.DisplayState, error)
	ApplySettings(mode types.DisplayMode) error
	Toggle() (bool, error)
}

// Deps aggregates the subsystems the HTTP layer fronts.
type Deps struct {
	Monitor    StatusMonitor
	Reconciler CredentialReconciler
	Display    DisplayController
	Log        zerolog.Logger
	StartedAt  time.Time
}

// NewMux builds the router with all routes and middleware.
func NewMux(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	s := &server{deps: deps}

	r.Get("/status", s.handleStatus)
	r.Post("/probe", s.handleProbe)
	r.Post("/polling/start", s.handlePollingStart)
	r.Post("/polling/stop", s.handlePollingStop)
	r.Post("/setup", s.handleSetup)
	r.Post("/reconnect", s.handleReconnect)
	r.Post("/credentials/change", s.handleChangeCredentials)
	r.Get("/display/modes", s.handleDisplayModes)
	r.Post("/display", s.handleDisplayApply)
	r.Post("/display/toggle", s.handleDisplayToggle)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Monitor.Snapshot().State == monitor.StatePolling {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("idle"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

type server struct {
	deps Deps
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r)
}

func (s *server) writeStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Monitor.Snapshot()
	sync, err := s.deps.Reconciler.SyncState(snap.LastStatus)
	if err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}

	resp := types.StatusResponse{
		Status:         snap.LastStatus,
		SyncState:      sync,
		Polling:        snap.State == monitor.StatePolling,
		Suspended:      snap.Suspended,
		ServerTimeUnix: time.Now().Unix(),
	}
	if !snap.LastSeen.IsZero() {
		resp.LastSeenUnix = snap.LastSeen.Unix()
	}
	if !s.deps.StartedAt.IsZero() {
		resp.UptimeSeconds = int64(time.Since(s.deps.StartedAt).Seconds())
	}
	if s.deps.Display != nil {
		st, err := s.deps.Display.State()
		if err != nil {
			// Display state is best-effort on the status surface; the
			// dedicated display routes surface the error properly.
			s.logDebug(r).Err(err).Msg("display state unavailable")
		} else {
			resp.Display = st
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleProbe(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Monitor.ForceProbe(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *server) handlePollingStart(w http.ResponseWriter, r *http.Request) {
	s.deps.Monitor.StartPolling()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handlePollingStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Monitor.StopPolling()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req types.SetupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	creds := types.Credentials{Username: req.Username, Password: req.Password}
	if err := s.deps.Reconciler.FirstTimeSetup(r.Context(), creds); err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	s.writeStatus(w, r)
}

func (s *server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	var req types.ReconnectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	creds := types.Credentials{Username: req.Username, Password: req.Password}
	if err := s.deps.Reconciler.Reconnect(r.Context(), creds); err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	s.writeStatus(w, r)
}

func (s *server) handleChangeCredentials(w http.ResponseWriter, r *http.Request) {
	var req types.ChangeCredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	next := types.Credentials{Username: req.Username, Password: req.Password}
	if err := s.deps.Reconciler.ChangeCredentials(r.Context(), next); err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	s.writeStatus(w, r)
}

func (s *server) handleDisplayModes(w http.ResponseWriter, r *http.Request) {
	if s.deps.Display == nil {
		writeJSONError(w, http.StatusNotFound, display.ErrNotInstalled().Error())
		return
	}
	modes, err := s.deps.Display.Modes()
	if err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.DisplayModesResponse{Modes: modes})
}

func (s *server) handleDisplayApply(w http.ResponseWriter, r *http.Request) {
	if s.deps.Display == nil {
		writeJSONError(w, http.StatusNotFound, display.ErrNotInstalled().Error())
		return
	}
	var req types.ApplyDisplayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode := types.DisplayMode{Width: req.Width, Height: req.Height, FPS: req.FPS}
	if err := s.deps.Display.ApplySettings(mode); err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	st, err := s.deps.Display.State()
	if err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleDisplayToggle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Display == nil {
		writeJSONError(w, http.StatusNotFound, display.ErrNotInstalled().Error())
		return
	}
	enabled, err := s.deps.Display.Toggle()
	if err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": enabled})
}

func (s *server) logDebug(r *http.Request) *zerolog.Event {
	ev := s.deps.Log.Debug()
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	return ev
}

// decodeJSON enforces content type and body size, then decodes into dst.
// Writes the error response itself and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
