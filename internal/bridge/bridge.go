// Package bridge exposes the copy/paste controller to local clients, such as
// a browser extension or the bind helper, over a token-protected HTTP API
// bound to the loopback interface.
package bridge

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grendel/clipseal/pkg/guard"
	"github.com/grendel/clipseal/pkg/protocol"
)

// TokenHeader carries the bridge token on every request
const TokenHeader = "X-Clipseal-Token"

const tokenBytes = 16

// Options configures the bridge.
type Options struct {
	// Addr must be a loopback address. Default: 127.0.0.1:0.
	Addr string
	// TokenFile and PortFile are written with mode 0600 once listening.
	TokenFile string
	PortFile  string
	// Token overrides the random token.
	Token string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() error {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:0"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Token == "" {
		token, err := NewToken()
		if err != nil {
			return err
		}
		o.Token = token
	}
	return nil
}

// Server is the local bridge
type Server struct {
	ctrl   *guard.Controller
	opts   Options
	router *chi.Mux

	// fields that received a verified paste, by target id
	mu     sync.Mutex
	fields map[string]*protocol.TextField
}

// New creates a bridge serving ctrl
func New(ctrl *guard.Controller, opts Options) (*Server, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}

	s := &Server{
		ctrl:   ctrl,
		opts:   opts,
		fields: make(map[string]*protocol.TextField),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requireToken)

	r.Post("/copy", s.handleCopy)
	r.Post("/paste", s.handlePaste)
	r.Post("/mutated", s.handleMutated)
	r.Post("/unbind", s.handleUnbind)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router = r
	return s, nil
}

// track keeps field for later mutation reports. Fields the monitor has
// stopped watching are dropped.
func (s *Server) track(field *protocol.TextField) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.fields {
		if !s.ctrl.Watching(id) {
			delete(s.fields, id)
		}
	}
	s.fields[field.ID()] = field
}

func (s *Server) tracked(id string) *protocol.TextField {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields[id]
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.fields, id)
	s.mu.Unlock()
}

// NewToken returns 32 random hex characters
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate bridge token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Token returns the token clients must present
func (s *Server) Token() string { return s.opts.Token }

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Serve listens on the loopback address, publishes the token and port
// files and serves until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	if err := requireLoopback(s.opts.Addr); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("bridge listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	// the port file last: its presence means the endpoint is complete
	for _, f := range [][2]string{
		{s.opts.TokenFile, s.opts.Token},
		{s.opts.PortFile, strconv.Itoa(port)},
	} {
		if err := writeSecret(f[0], f[1]); err != nil {
			ln.Close()
			return err
		}
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	log := s.opts.Logger
	log.Info("bridge: listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.removeFiles()
		log.Info("bridge: stopped")
		return err

	case err := <-errCh:
		s.removeFiles()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("bridge serve: %w", err)
	}
}

func (s *Server) removeFiles() {
	for _, path := range []string{s.opts.TokenFile, s.opts.PortFile} {
		if path != "" {
			_ = os.Remove(path)
		}
	}
}

func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("bridge addr %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("bridge addr %q is not a loopback address", addr)
}

func writeSecret(path, content string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadEndpoint reads the token and port files written by a running bridge
func ReadEndpoint(tokenFile, portFile string) (token string, port int, err error) {
	rawToken, err := os.ReadFile(tokenFile)
	if err != nil {
		return "", 0, fmt.Errorf("token file not found (%s): %w", tokenFile, err)
	}
	rawPort, err := os.ReadFile(portFile)
	if err != nil {
		return "", 0, fmt.Errorf("port file not found (%s): %w", portFile, err)
	}
	port, err = strconv.Atoi(strings.TrimSpace(string(rawPort)))
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %s", portFile)
	}
	return strings.TrimSpace(string(rawToken)), port, nil
}
