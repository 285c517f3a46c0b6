package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamhost/internal/domain"
	domainports "streamhost/internal/domain/ports"
	"streamhost/internal/usecase"
)

// FileServer controls the local streaming listener.
type FileServer interface {
	Start(port int) (string, error)
	BaseURL() (string, bool)
	Port() int
	PlaybackURL(port int) string
}

type ServedFileReader interface {
	Snapshot() domain.ServedFile
}

type AttachMetadataUseCase interface {
	Execute(ctx context.Context, input usecase.AttachMetadataInput) (domain.MetadataEntry, error)
}

type PruneIndexUseCase interface {
	Execute(ctx context.Context, active []string) (int, error)
}

type SelectPlaybackUseCase interface {
	Execute(ctx context.Context, path string) (usecase.PlaybackSelection, error)
}

const (
	defaultRateLimitRPS   = 50
	defaultRateLimitBurst = 100
)

// Server is the control API. It exposes the metadata index and the streaming
// listener to the application layer; it never serves media itself.
type Server struct {
	index          domainports.MetadataIndex
	fileServer     FileServer
	servedFiles    ServedFileReader
	attachMeta     AttachMetadataUseCase
	pruneIndex     PruneIndexUseCase
	selectPlayback SelectPlaybackUseCase
	defaultPort    int
	allowedOrigins []string
	rateRPS        float64
	rateBurst      int
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithFileServer(fs FileServer, defaultPort int) ServerOption {
	return func(s *Server) {
		s.fileServer = fs
		s.defaultPort = defaultPort
	}
}

func WithServedFiles(files ServedFileReader) ServerOption {
	return func(s *Server) {
		s.servedFiles = files
	}
}

func WithAttachMetadata(uc AttachMetadataUseCase) ServerOption {
	return func(s *Server) {
		s.attachMeta = uc
	}
}

func WithPruneIndex(uc PruneIndexUseCase) ServerOption {
	return func(s *Server) {
		s.pruneIndex = uc
	}
}

func WithSelectPlayback(uc SelectPlaybackUseCase) ServerOption {
	return func(s *Server) {
		s.selectPlayback = uc
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithRateLimit sets the global token bucket. Non-positive values keep the
// defaults.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateRPS = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(index domainports.MetadataIndex, opts ...ServerOption) *Server {
	s := &Server{
		index:     index,
		rateRPS:   defaultRateLimitRPS,
		rateBurst: defaultRateLimitBurst,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/file-server", s.handleFileServer)
	mux.HandleFunc("/file-server/start", s.handleFileServerStart)
	mux.HandleFunc("/file-server/file", s.handleFileServerFile)
	mux.HandleFunc("/file-server/url", s.handleFileServerURL)
	mux.HandleFunc("/library", s.handleLibrary)
	mux.HandleFunc("/library/", s.handleLibraryItem)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "control-api",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && !strings.HasPrefix(p, "/ws")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects all WebSocket clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

type healthResponse struct {
	Status       string             `json:"status"`
	IndexEntries int                `json:"indexEntries"`
	FileServer   fileServerResponse `json:"fileServer"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := healthResponse{Status: "ok", FileServer: s.fileServerStatus()}
	if s.index != nil {
		resp.IndexEntries = s.index.Count()
	}
	writeJSON(w, http.StatusOK, resp)
}
