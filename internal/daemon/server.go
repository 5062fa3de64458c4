// Package daemon serves the aggregate spending snapshot over a local unix
// socket so presentation layers can attach without embedding the engine.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spendmon/spendmon/internal/config"
	"github.com/spendmon/spendmon/internal/core"
	"github.com/spendmon/spendmon/internal/version"
)

// Engine is the surface the daemon serves. *core.Engine satisfies it.
type Engine interface {
	Snapshot() core.AggregateSnapshot
	RefreshNow(reason string)
}

type Server struct {
	cfg    Config
	engine Engine
}

func NewServer(cfg Config, engine Engine) *Server {
	return &Server{cfg: cfg, engine: engine}
}

// DefaultSocketPath is where the daemon listens unless overridden.
func DefaultSocketPath() string {
	return filepath.Join(config.ConfigDir(), "spendmon.sock")
}

// Start binds the socket and serves until ctx is cancelled. It returns once
// the listener is accepting, so callers can start the engine loop alongside.
func (s *Server) Start(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.SocketPath) == "" {
		s.cfg.SocketPath = DefaultSocketPath()
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create daemon socket dir: %w", err)
	}
	if err := EnsureSocketPathAvailable(s.cfg.SocketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen daemon socket: %w", err)
	}
	_ = os.Chmod(s.cfg.SocketPath, 0o660)
	if s.cfg.Verbose {
		log.Printf("[daemon] listening on %s", s.cfg.SocketPath)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/refresh", s.handleRefresh)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       20 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		_ = listener.Close()
		_ = os.Remove(s.cfg.SocketPath)
	}()
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[daemon] socket server error: %v", err)
		}
	}()

	return nil
}

// EnsureSocketPathAvailable verifies nothing live is bound at socketPath,
// removing a stale socket left behind by a crashed daemon.
func EnsureSocketPathAvailable(socketPath string) error {
	socketPath = strings.TrimSpace(socketPath)
	if socketPath == "" {
		return fmt.Errorf("socket path is empty")
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat socket path %s: %w", socketPath, err)
	}

	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("socket path %s already exists and is not a socket", socketPath)
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 450*time.Millisecond)
	defer cancel()
	dialer := net.Dialer{Timeout: 450 * time.Millisecond}
	conn, dialErr := dialer.DialContext(dialCtx, "unix", socketPath)
	if dialErr == nil {
		_ = conn.Close()
		return fmt.Errorf("spending daemon already running on socket %s", socketPath)
	}

	if err := os.Remove(socketPath); err != nil {
		return fmt.Errorf("remove stale daemon socket %s: %w", socketPath, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		DaemonVersion: strings.TrimSpace(version.Version),
		APIVersion:    APIVersion,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = "manual"
	}
	s.engine.RefreshNow(reason)
	writeJSON(w, http.StatusOK, RefreshResponse{Requested: true, Reason: reason})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
