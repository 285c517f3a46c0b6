package fileserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PlaybackPath is the path handed to players. Any path serves the same file.
const PlaybackPath = "/video.mp4"

// Listener owns the local streaming HTTP server. Start is idempotent: while a
// server is bound, further calls return its base URL.
type Listener struct {
	host    string
	handler http.Handler
	logger  *slog.Logger

	mu      sync.Mutex
	srv     *http.Server
	baseURL string
	port    int
}

type ListenerOption func(*Listener)

func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewListener builds a listener bound to host that dispatches every request,
// on the root or any sub-path, to a Responder reading from files.
func NewListener(host string, files ServedFileSource, opts ...ListenerOption) *Listener {
	l := &Listener{
		host:   host,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.host == "" {
		l.host = "127.0.0.1"
	}

	responder := NewResponder(files, WithResponderLogger(l.logger))
	mux := http.NewServeMux()
	mux.Handle("/", responder)
	l.handler = otelhttp.NewHandler(mux, "file-server")
	return l
}

// Start binds host:port and serves in the background. Port 0 picks a free
// port. A bind failure is returned and logged; the listener stays stopped so
// the caller can retry.
func (l *Listener) Start(port int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.srv != nil {
		return l.baseURL, nil
	}

	addr := net.JoinHostPort(l.host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		l.logger.Error("failed to bind file server",
			slog.String("addr", addr),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("bind file server on %s: %w", addr, err)
	}

	boundPort := port
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		boundPort = tcpAddr.Port
	}

	srv := &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	l.srv = srv
	l.port = boundPort
	l.baseURL = "http://" + net.JoinHostPort(l.host, strconv.Itoa(boundPort))

	l.logger.Info("file server started", slog.String("addr", ln.Addr().String()))

	go l.serve(srv, ln)
	return l.baseURL, nil
}

func (l *Listener) serve(srv *http.Server, ln net.Listener) {
	err := srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.logger.Error("file server error", slog.String("error", err.Error()))
	}

	l.mu.Lock()
	if l.srv == srv {
		l.srv = nil
		l.baseURL = ""
		l.port = 0
	}
	l.mu.Unlock()
}

// BaseURL returns the base URL of the running server.
func (l *Listener) BaseURL() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baseURL, l.srv != nil
}

// Port returns the bound port, or 0 when stopped.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// PlaybackURL is the URL a player should load for the given port.
func (l *Listener) PlaybackURL(port int) string {
	return "http://" + net.JoinHostPort(l.host, strconv.Itoa(port)) + PlaybackPath
}

// Close shuts the server down, waiting for in-flight transfers until ctx ends.
func (l *Listener) Close(ctx context.Context) error {
	l.mu.Lock()
	srv := l.srv
	l.srv = nil
	l.baseURL = ""
	l.port = 0
	l.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
