package fileserver

import (
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"streamhost/internal/domain"
	"streamhost/internal/metrics"
)

// DefaultBufferThreshold is the largest range span that is read fully into
// memory before responding. Larger spans are copied from the file handle.
const DefaultBufferThreshold int64 = 10 * 1024 * 1024

const (
	allowOrigin   = "*"
	allowMethods  = "GET, HEAD, OPTIONS"
	allowHeaders  = "range, content-type"
	exposeHeaders = "content-length, content-range, accept-ranges"
	varyHeaders   = "origin, access-control-request-method, access-control-request-headers"
	cacheControl  = "public, max-age=3600"
	preflightAge  = "86400"
)

type transferStrategy string

const (
	strategyFull     transferStrategy = "full"
	strategyBuffered transferStrategy = "buffered"
	strategyStreamed transferStrategy = "streamed"
	strategyNone     transferStrategy = "none"
)

// ServedFileSource supplies the file to serve for each request.
type ServedFileSource interface {
	Snapshot() domain.ServedFile
}

// readableFile is the read-only view of the served file.
type readableFile interface {
	io.ReadSeekCloser
	Stat() (fs.FileInfo, error)
}

func openReadOnly(path string) (readableFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Responder serves the currently registered file with byte-range support.
// It only ever opens files for reading.
type Responder struct {
	files     ServedFileSource
	open      func(path string) (readableFile, error)
	threshold int64
	logger    *slog.Logger
}

type ResponderOption func(*Responder)

func WithBufferThreshold(n int64) ResponderOption {
	return func(r *Responder) {
		if n >= 0 {
			r.threshold = n
		}
	}
}

func WithResponderLogger(logger *slog.Logger) ResponderOption {
	return func(r *Responder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewResponder(files ServedFileSource, opts ...ResponderOption) *Responder {
	r := &Responder{
		files:     files,
		open:      openReadOnly,
		threshold: DefaultBufferThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (s *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writePreflight(w)
		return
	}

	setCommonHeaders(w.Header())
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", allowMethods)
		s.fail(w, http.StatusMethodNotAllowed)
		return
	}

	served := s.files.Snapshot()
	if !served.Set {
		s.logger.Error("no file set")
		s.fail(w, http.StatusNotFound)
		return
	}

	file, err := s.open(served.Path)
	if err != nil {
		s.logger.Error("failed to open served file",
			slog.String("path", served.Path),
			slog.String("error", err.Error()),
		)
		s.fail(w, http.StatusNotFound)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		s.logger.Error("failed to get file metadata",
			slog.String("path", served.Path),
			slog.String("error", err.Error()),
		)
		s.fail(w, http.StatusInternalServerError)
		return
	}
	size := info.Size()

	w.Header().Set("Content-Type", contentTypeFor(served.Path))

	byteRange, ok := rangeFromHeader(r.Header.Get("Range"), size)
	if !ok {
		s.serveFull(w, r, file, size, served.Generation)
		return
	}
	s.serveRange(w, r, file, size, byteRange, served.Generation)
}

func (s *Responder) serveFull(w http.ResponseWriter, r *http.Request, file io.Reader, size int64, generation uint64) {
	s.logger.Debug("serving full file",
		slog.Int64("size", size),
		slog.Uint64("generation", generation),
	)

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	metrics.StreamRequestsTotal.WithLabelValues(string(strategyFull), strconv.Itoa(http.StatusOK)).Inc()
	if r.Method == http.MethodHead {
		return
	}

	s.copyBody(w, file, size, strategyFull)
}

func (s *Responder) serveRange(w http.ResponseWriter, r *http.Request, file io.ReadSeeker, size int64, br ByteRange, generation uint64) {
	length := br.Length()
	strategy := s.strategyFor(length)

	s.logger.Debug("serving range",
		slog.Int64("start", br.Start),
		slog.Int64("end", br.End),
		slog.Int64("size", size),
		slog.String("strategy", string(strategy)),
		slog.Uint64("generation", generation),
	)

	if _, err := file.Seek(br.Start, io.SeekStart); err != nil {
		s.logger.Error("failed to seek file", slog.String("error", err.Error()))
		s.failAfterHeaders(w, http.StatusInternalServerError)
		return
	}

	var body []byte
	if strategy == strategyBuffered && r.Method != http.MethodHead {
		body = make([]byte, length)
		if _, err := io.ReadFull(file, body); err != nil {
			s.logger.Error("failed to read file range", slog.String("error", err.Error()))
			s.failAfterHeaders(w, http.StatusInternalServerError)
			return
		}
	}

	h := w.Header()
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	h.Set("Content-Range", "bytes "+strconv.FormatInt(br.Start, 10)+"-"+strconv.FormatInt(br.End, 10)+"/"+strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusPartialContent)
	metrics.StreamRequestsTotal.WithLabelValues(string(strategy), strconv.Itoa(http.StatusPartialContent)).Inc()
	if r.Method == http.MethodHead {
		return
	}

	if strategy == strategyBuffered {
		n, err := w.Write(body)
		metrics.StreamBytesTotal.WithLabelValues(string(strategy)).Add(float64(n))
		if err != nil {
			s.logger.Debug("range write interrupted", slog.String("error", err.Error()))
		}
		return
	}

	s.copyBody(w, file, length, strategy)
}

// copyBody streams n bytes from src without materializing them. Once headers
// are out a failure can only truncate the response.
func (s *Responder) copyBody(w io.Writer, src io.Reader, n int64, strategy transferStrategy) {
	metrics.StreamActiveTransfers.Inc()
	defer metrics.StreamActiveTransfers.Dec()

	written, err := io.CopyN(w, src, n)
	metrics.StreamBytesTotal.WithLabelValues(string(strategy)).Add(float64(written))
	if err != nil {
		s.logger.Debug("stream copy interrupted",
			slog.String("strategy", string(strategy)),
			slog.Int64("written", written),
			slog.Int64("expected", n),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Responder) strategyFor(length int64) transferStrategy {
	if length > s.threshold {
		return strategyStreamed
	}
	return strategyBuffered
}

func (s *Responder) fail(w http.ResponseWriter, status int) {
	metrics.StreamRequestsTotal.WithLabelValues(string(strategyNone), strconv.Itoa(status)).Inc()
	w.WriteHeader(status)
}

// failAfterHeaders drops the success-only headers already staged on w.
func (s *Responder) failAfterHeaders(w http.ResponseWriter, status int) {
	h := w.Header()
	h.Del("Content-Type")
	h.Del("Content-Length")
	h.Del("Content-Range")
	s.fail(w, status)
}

func writePreflight(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", allowOrigin)
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Max-Age", preflightAge)
	w.WriteHeader(http.StatusNoContent)
}

func setCommonHeaders(h http.Header) {
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", cacheControl)
	h.Set("Vary", varyHeaders)
	h.Set("Access-Control-Allow-Origin", allowOrigin)
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Expose-Headers", exposeHeaders)
}

// contentTypeFor maps the served file's extension to a media type. Playback
// files are normalized to mp4 upstream, so everything else is opaque bytes.
func contentTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".mp4") {
		return "video/mp4"
	}
	return "application/octet-stream"
}
