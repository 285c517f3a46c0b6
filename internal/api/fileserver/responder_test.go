package fileserver

import (
	"bytes"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"streamhost/internal/domain"
	"streamhost/internal/metrics"
)

type fakeSource struct {
	served domain.ServedFile
	calls  atomic.Int32
}

func (f *fakeSource) Snapshot() domain.ServedFile {
	f.calls.Add(1)
	return f.served
}

func servedAt(path string) *fakeSource {
	return &fakeSource{served: domain.ServedFile{Path: path, Generation: 1, Set: true}}
}

// writeTestFile creates a file of the given size whose byte i is i%251.
func writeTestFile(t *testing.T, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

// writeSparseFile creates a zero-filled file of the given size without
// writing its contents.
func writeSparseFile(t *testing.T, name string, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create sparse file: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		t.Fatalf("truncate sparse file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close sparse file: %v", err)
	}
	return path
}

func doRequest(h http.Handler, method, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/video.mp4", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func strategyCount(strategy transferStrategy, status int) float64 {
	return testutil.ToFloat64(metrics.StreamRequestsTotal.WithLabelValues(string(strategy), strconv.Itoa(status)))
}

func assertCommonHeaders(t *testing.T, h http.Header) {
	t.Helper()
	want := map[string]string{
		"Accept-Ranges":                 "bytes",
		"Cache-Control":                 "public, max-age=3600",
		"Vary":                          "origin, access-control-request-method, access-control-request-headers",
		"Access-Control-Allow-Origin":   "*",
		"Access-Control-Allow-Methods":  "GET, HEAD, OPTIONS",
		"Access-Control-Allow-Headers":  "range, content-type",
		"Access-Control-Expose-Headers": "content-length, content-range, accept-ranges",
	}
	for key, value := range want {
		if got := h.Get(key); got != value {
			t.Errorf("%s = %q, want %q", key, got, value)
		}
	}
}

func TestResponderPreflight(t *testing.T) {
	source := servedAt("/nonexistent.mp4")
	w := doRequest(NewResponder(source), http.MethodOptions, "")

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if source.calls.Load() != 0 {
		t.Fatalf("preflight consulted the registry %d times", source.calls.Load())
	}
	h := w.Header()
	if h.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow-origin = %q", h.Get("Access-Control-Allow-Origin"))
	}
	if h.Get("Access-Control-Allow-Methods") != "GET, HEAD, OPTIONS" {
		t.Errorf("allow-methods = %q", h.Get("Access-Control-Allow-Methods"))
	}
	if h.Get("Access-Control-Allow-Headers") != "range, content-type" {
		t.Errorf("allow-headers = %q", h.Get("Access-Control-Allow-Headers"))
	}
	if h.Get("Access-Control-Max-Age") != "86400" {
		t.Errorf("max-age = %q", h.Get("Access-Control-Max-Age"))
	}
	if w.Body.Len() != 0 {
		t.Errorf("preflight body = %d bytes", w.Body.Len())
	}
}

func TestResponderNoFileSet(t *testing.T) {
	before := strategyCount(strategyNone, http.StatusNotFound)
	w := doRequest(NewResponder(&fakeSource{}), http.MethodGet, "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("body = %q, want empty", w.Body.String())
	}
	assertCommonHeaders(t, w.Header())
	if got := strategyCount(strategyNone, http.StatusNotFound) - before; got != 1 {
		t.Fatalf("404 counter delta = %v, want 1", got)
	}
}

func TestResponderMissingFile(t *testing.T) {
	source := servedAt(filepath.Join(t.TempDir(), "gone.mp4"))
	w := doRequest(NewResponder(source), http.MethodGet, "bytes=0-1")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestResponderFullBodyWithoutRange(t *testing.T) {
	path := writeTestFile(t, "movie.mp4", 1000)
	want, _ := os.ReadFile(path)

	before := strategyCount(strategyFull, http.StatusOK)
	w := doRequest(NewResponder(servedAt(path)), http.MethodGet, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), want) {
		t.Fatalf("body mismatch: got %d bytes", w.Body.Len())
	}
	if got := w.Header().Get("Content-Length"); got != "1000" {
		t.Errorf("Content-Length = %q", got)
	}
	if got := w.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("Content-Range") != "" {
		t.Errorf("unexpected Content-Range %q", w.Header().Get("Content-Range"))
	}
	assertCommonHeaders(t, w.Header())
	if got := strategyCount(strategyFull, http.StatusOK) - before; got != 1 {
		t.Fatalf("full counter delta = %v, want 1", got)
	}
}

func TestResponderContentTypeFallback(t *testing.T) {
	path := writeTestFile(t, "movie.mkv", 10)
	w := doRequest(NewResponder(servedAt(path)), http.MethodGet, "")
	if got := w.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("Content-Type = %q, want application/octet-stream", got)
	}
}

func TestResponderSmallRangeIsBuffered(t *testing.T) {
	path := writeTestFile(t, "movie.mp4", 1000)

	before := strategyCount(strategyBuffered, http.StatusPartialContent)
	w := doRequest(NewResponder(servedAt(path)), http.MethodGet, "bytes=0-1")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 0-1/1000" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != "2" {
		t.Errorf("Content-Length = %q", got)
	}
	if !bytes.Equal(w.Body.Bytes(), []byte{0, 1}) {
		t.Errorf("body = %v, want [0 1]", w.Body.Bytes())
	}
	assertCommonHeaders(t, w.Header())
	if got := strategyCount(strategyBuffered, http.StatusPartialContent) - before; got != 1 {
		t.Fatalf("buffered counter delta = %v, want 1", got)
	}
}

func TestResponderLargeRangeIsStreamed(t *testing.T) {
	path := writeSparseFile(t, "big.mp4", 50_000_000)

	before := strategyCount(strategyStreamed, http.StatusPartialContent)
	w := doRequest(NewResponder(servedAt(path)), http.MethodGet, "bytes=0-11999999")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 0-11999999/50000000" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != "12000000" {
		t.Errorf("Content-Length = %q", got)
	}
	if w.Body.Len() != 12_000_000 {
		t.Fatalf("body = %d bytes, want 12000000", w.Body.Len())
	}
	if got := strategyCount(strategyStreamed, http.StatusPartialContent) - before; got != 1 {
		t.Fatalf("streamed counter delta = %v, want 1", got)
	}
}

func TestResponderInvertedRangeServesWholeFile(t *testing.T) {
	path := writeTestFile(t, "movie.mp4", 1000)
	w := doRequest(NewResponder(servedAt(path)), http.MethodGet, "bytes=500-100")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 1000 {
		t.Fatalf("body = %d bytes, want 1000", w.Body.Len())
	}
	if w.Header().Get("Content-Range") != "" {
		t.Errorf("unexpected Content-Range")
	}
}

func TestResponderMalformedRangesDegradeToFullBody(t *testing.T) {
	path := writeTestFile(t, "movie.mp4", 100)
	for _, header := range []string{"0-1", "bytes=-10", "bytes=0-1,5-6", "bytes=0-100", "bytes=abc", "items=0-1"} {
		t.Run(header, func(t *testing.T) {
			w := doRequest(NewResponder(servedAt(path)), http.MethodGet, header)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if w.Body.Len() != 100 {
				t.Fatalf("body = %d bytes, want 100", w.Body.Len())
			}
		})
	}
}

func TestResponderOpenEndedRange(t *testing.T) {
	path := writeTestFile(t, "movie.mp4", 1000)
	want, _ := os.ReadFile(path)

	w := doRequest(NewResponder(servedAt(path)), http.MethodGet, "bytes=990-")
	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 990-999/1000" {
		t.Errorf("Content-Range = %q", got)
	}
	if !bytes.Equal(w.Body.Bytes(), want[990:]) {
		t.Errorf("body mismatch")
	}
}

func TestResponderThresholdBoundary(t *testing.T) {
	path := writeTestFile(t, "movie.mp4", 64)
	want, _ := os.ReadFile(path)
	responder := NewResponder(servedAt(path), WithBufferThreshold(4))

	tests := []struct {
		header   string
		strategy transferStrategy
		body     []byte
	}{
		{"bytes=10-13", strategyBuffered, want[10:14]},
		{"bytes=10-14", strategyStreamed, want[10:15]},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			before := strategyCount(tt.strategy, http.StatusPartialContent)
			w := doRequest(responder, http.MethodGet, tt.header)
			if w.Code != http.StatusPartialContent {
				t.Fatalf("status = %d, want 206", w.Code)
			}
			if !bytes.Equal(w.Body.Bytes(), tt.body) {
				t.Fatalf("body = %v, want %v", w.Body.Bytes(), tt.body)
			}
			if got := strategyCount(tt.strategy, http.StatusPartialContent) - before; got != 1 {
				t.Fatalf("%s counter delta = %v, want 1", tt.strategy, got)
			}
		})
	}
}

func TestResponderHeadOmitsBody(t *testing.T) {
	path := writeTestFile(t, "movie.mp4", 1000)
	responder := NewResponder(servedAt(path))

	w := doRequest(responder, http.MethodHead, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("HEAD body = %d bytes", w.Body.Len())
	}
	if got := w.Header().Get("Content-Length"); got != "1000" {
		t.Errorf("Content-Length = %q", got)
	}

	w = doRequest(responder, http.MethodHead, "bytes=0-9")
	if w.Code != http.StatusPartialContent {
		t.Fatalf("range HEAD status = %d, want 206", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("range HEAD body = %d bytes", w.Body.Len())
	}
	if got := w.Header().Get("Content-Range"); got != "bytes 0-9/1000" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestResponderRejectsWriteMethods(t *testing.T) {
	path := writeTestFile(t, "movie.mp4", 10)
	source := servedAt(path)
	w := doRequest(NewResponder(source), http.MethodPost, "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
	if source.calls.Load() != 0 {
		t.Fatalf("POST consulted the registry")
	}
}

func TestResponderEmptyFile(t *testing.T) {
	path := writeTestFile(t, "empty.mp4", 0)
	w := doRequest(NewResponder(servedAt(path)), http.MethodGet, "bytes=0-")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("body = %d bytes", w.Body.Len())
	}
}

func TestResponderNeverWritesToFile(t *testing.T) {
	path := writeTestFile(t, "movie.mp4", 100)
	if err := os.Chmod(path, 0o444); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	info, _ := os.Stat(path)

	w := doRequest(NewResponder(servedAt(path)), http.MethodGet, "bytes=0-9")
	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(info.ModTime()) || after.Size() != info.Size() {
		t.Fatal("served file was modified")
	}
}

// faultyFile wraps a real file and fails the operations that have an error set.
type faultyFile struct {
	*os.File
	statErr error
	seekErr error
	readErr error
}

func (f *faultyFile) Stat() (fs.FileInfo, error) {
	if f.statErr != nil {
		return nil, f.statErr
	}
	return f.File.Stat()
}

func (f *faultyFile) Seek(offset int64, whence int) (int64, error) {
	if f.seekErr != nil {
		return 0, f.seekErr
	}
	return f.File.Seek(offset, whence)
}

func (f *faultyFile) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.File.Read(p)
}

func faultyResponder(t *testing.T, fault faultyFile) *Responder {
	t.Helper()
	path := writeTestFile(t, "movie.mp4", 100)
	r := NewResponder(servedAt(path))
	r.open = func(p string) (readableFile, error) {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		t.Cleanup(func() { f.Close() })
		wrapped := fault
		wrapped.File = f
		return &wrapped, nil
	}
	return r
}

func TestResponderIOFailures(t *testing.T) {
	tests := []struct {
		name  string
		fault faultyFile
		rng   string
	}{
		{"stat after open", faultyFile{statErr: errors.New("stat failed")}, ""},
		{"seek", faultyFile{seekErr: errors.New("seek failed")}, "bytes=0-9"},
		{"buffered read", faultyFile{readErr: errors.New("read failed")}, "bytes=10-19"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := strategyCount(strategyNone, http.StatusInternalServerError)
			w := doRequest(faultyResponder(t, tt.fault), http.MethodGet, tt.rng)

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", w.Code)
			}
			if w.Body.Len() != 0 {
				t.Fatalf("body = %q, want empty", w.Body.String())
			}
			for _, key := range []string{"Content-Type", "Content-Length", "Content-Range"} {
				if got := w.Header().Get(key); got != "" {
					t.Errorf("%s = %q on failure", key, got)
				}
			}
			assertCommonHeaders(t, w.Header())
			if got := strategyCount(strategyNone, http.StatusInternalServerError) - before; got != 1 {
				t.Fatalf("failure counter delta = %v, want 1", got)
			}
		})
	}
}
