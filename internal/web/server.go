// Package web serves the dashboard HTTP API, the WebSocket feed, and the
// bundled single-page frontend.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/copilot-dashboard/backend/internal/config"
	"github.com/copilot-dashboard/backend/internal/events"
	"github.com/copilot-dashboard/backend/internal/grouping"
	"github.com/copilot-dashboard/backend/internal/store"
	"github.com/copilot-dashboard/backend/internal/tracker"
)

type Server struct {
	config          *config.Config
	store           *store.Store
	tracker         *tracker.Tracker
	reader          *events.Reader
	grouper         *grouping.Grouper
	versions        *versionChecker
	broadcaster     *Broadcaster
	frontendDir     string
	dev             bool
	embeddedHandler http.Handler
}

func NewServer(cfg *config.Config, st *store.Store, tr *tracker.Tracker, rd *events.Reader, gr *grouping.Grouper, frontendDir string, dev bool, embeddedHandler http.Handler) *Server {
	return &Server{
		config:          cfg,
		store:           st,
		tracker:         tr,
		reader:          rd,
		grouper:         gr,
		versions:        newVersionChecker(cfg.Version),
		frontendDir:     frontendDir,
		dev:             dev,
		embeddedHandler: embeddedHandler,
	}
}

// SetBroadcaster configures the WebSocket broadcaster used by /ws.
// Must be called before SetupRoutes.
func (s *Server) SetBroadcaster(b *Broadcaster) {
	s.broadcaster = b
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/session/", s.handleSessionDetail)
	mux.HandleFunc("/api/files", s.handleFiles)
	mux.HandleFunc("/api/processes", s.handleProcesses)
	mux.HandleFunc("/api/kill/", s.handleKill)
	mux.HandleFunc("/api/focus/", s.handleFocus)
	mux.HandleFunc("/api/server-info", s.handleServerInfo)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/update", s.handleUpdate)
	mux.HandleFunc("/manifest.json", s.handleManifest)
	mux.HandleFunc("/sw.js", s.handleServiceWorker)

	if s.dev {
		log.Printf("Serving frontend from filesystem: %s", s.frontendDir)
		mux.Handle("/", http.FileServer(http.Dir(s.frontendDir)))
	} else if s.embeddedHandler != nil {
		log.Println("Serving embedded frontend")
		mux.Handle("/", s.embeddedHandler)
	}
}

func jsonResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}

// storeError maps a missing session store onto 503 with a remediation hint;
// everything else is a plain 500.
func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrStoreMissing) {
		jsonError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	jsonError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	views, err := s.BuildSessions(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, views)
}

type sessionDetail struct {
	Checkpoints  []store.Checkpoint `json:"checkpoints"`
	Refs         []store.Ref        `json:"refs"`
	Turns        []store.Turn       `json:"turns"`
	RecentOutput []string           `json:"recent_output"`
	ToolCounts   []events.ToolCount `json:"tool_counts"`
	Files        []string           `json:"files"`
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathSuffix(r.URL.Path, "/api/session/")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	ctx := r.Context()
	checkpoints, err := s.store.Checkpoints(ctx, sessionID)
	if err != nil {
		storeError(w, err)
		return
	}
	refs, err := s.store.Refs(ctx, sessionID)
	if err != nil {
		storeError(w, err)
		return
	}
	turns, err := s.store.RecentTurns(ctx, sessionID, 10)
	if err != nil {
		storeError(w, err)
		return
	}
	files, err := s.store.Files(ctx, sessionID)
	if err != nil {
		storeError(w, err)
		return
	}

	detail := sessionDetail{
		Checkpoints:  emptySlice(checkpoints),
		Refs:         emptySlice(refs),
		Turns:        emptySlice(turns),
		RecentOutput: emptySlice(s.reader.RecentOutput(sessionID, 10)),
		ToolCounts:   emptySlice(s.reader.ToolCounts(sessionID, 10)),
		Files:        emptySlice(files),
	}
	jsonResponse(w, http.StatusOK, detail)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.TopFiles(r.Context(), 100)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptySlice(entries))
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.tracker.RunningSessions())
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessionID, ok := pathSuffix(r.URL.Path, "/api/kill/")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	running := s.tracker.RunningSessions()
	info, found := running[sessionID]
	if !found {
		jsonResponse(w, http.StatusNotFound, tracker.FocusResult{
			Success: false, Message: "Session not found among running processes",
		})
		return
	}
	if info.PID == 0 {
		jsonResponse(w, http.StatusNotFound, tracker.FocusResult{
			Success: false, Message: "PID not available",
		})
		return
	}
	if err := tracker.TerminateProcess(info.PID); err != nil {
		jsonResponse(w, http.StatusInternalServerError, tracker.FocusResult{
			Success: false, Message: err.Error(),
		})
		return
	}
	jsonResponse(w, http.StatusOK, tracker.FocusResult{
		Success: true, Message: "Killed PID " + strconv.Itoa(info.PID),
	})
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessionID, ok := pathSuffix(r.URL.Path, "/api/focus/")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	jsonResponse(w, http.StatusOK, s.tracker.FocusSession(sessionID))
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if host == "" {
		host = "localhost:5111"
	}
	port := host
	if i := strings.LastIndex(host, ":"); i >= 0 {
		port = host[i+1:]
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"pid":  os.Getpid(),
		"port": port,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.versions.Check())
}

// handleUpdate exists for frontend compatibility. Self-update made sense
// for a pip-installed tool; a single static binary is replaced by hand.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResponse(w, http.StatusOK, tracker.FocusResult{
		Success: false,
		Message: "Self-update is not supported; download the latest release and replace the binary.",
	})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"name":             "Copilot Dashboard",
		"short_name":       "Copilot",
		"description":      "Monitor all your GitHub Copilot CLI sessions in real-time.",
		"start_url":        "/",
		"scope":            "/",
		"display":          "standalone",
		"background_color": "#0d1117",
		"theme_color":      "#0d1117",
		"icons": []map[string]string{
			{"src": "/favicon.png", "sizes": "64x64", "type": "image/png"},
		},
	})
}

func (s *Server) handleServiceWorker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Service-Worker-Allowed", "/")
	_, _ = w.Write([]byte("self.addEventListener('fetch', () => {});"))
}

// pathSuffix extracts and unescapes the id segment after prefix.
func pathSuffix(path, prefix string) (string, bool) {
	raw := strings.TrimPrefix(path, prefix)
	if raw == "" || raw == path {
		return "", false
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	return id, true
}

// emptySlice keeps JSON arrays as [] instead of null.
func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Serve runs the HTTP server until ctx is canceled, then drains in-flight
// requests before returning. A timed-out drain surfaces as the Shutdown error.
func Serve(ctx context.Context, host string, port int, mux *http.ServeMux) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
