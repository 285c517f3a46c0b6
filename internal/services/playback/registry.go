package playback

import (
	"log/slog"
	"sync"

	"streamhost/internal/domain"
	"streamhost/internal/metrics"
)

// Registry is the single-slot holder of the file the streaming listener
// serves. Set never validates the path; existence is checked when a request
// opens it. Requests already streaming keep the handle they opened.
type Registry struct {
	mu         sync.Mutex
	path       string
	set        bool
	generation uint64
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Set replaces the served file and returns the new slot generation.
func (r *Registry) Set(path string) uint64 {
	r.mu.Lock()
	r.path = path
	r.set = true
	r.generation++
	gen := r.generation
	r.mu.Unlock()

	metrics.ServedFileChangesTotal.Inc()
	r.logger.Info("file server now serving",
		slog.String("path", path),
		slog.Uint64("generation", gen),
	)
	return gen
}

func (r *Registry) Get() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path, r.set
}

func (r *Registry) Snapshot() domain.ServedFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.ServedFile{Path: r.path, Generation: r.generation, Set: r.set}
}
