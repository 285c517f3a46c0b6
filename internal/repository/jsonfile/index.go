package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"streamhost/internal/domain"
	"streamhost/internal/metrics"
)

var tracer = otel.Tracer("streamhost/repository/jsonfile")

// document is the on-disk layout: {"entries": {"<hash>": {...}}}.
type document struct {
	Entries map[domain.InfoHash]domain.MetadataEntry `json:"entries"`
}

// Index is a metadata index persisted as a single JSON document. Every
// mutation rewrites the whole document to a temp file in the same directory
// and renames it over the durable file while the write lock is held.
type Index struct {
	path    string
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.RWMutex
	entries map[domain.InfoHash]domain.MetadataEntry
}

type Option func(*Index)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Index) {
		if now != nil {
			i.now = now
		}
	}
}

// Open loads the index at path. A missing file yields an empty index; the
// file and its directory are created on the first mutation.
func Open(path string, opts ...Option) (*Index, error) {
	idx := &Index{
		path:    path,
		logger:  slog.Default(),
		now:     time.Now,
		entries: make(map[domain.InfoHash]domain.MetadataEntry),
	}
	for _, opt := range opts {
		opt(idx)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		idx.logger.Info("index file not found, starting empty", slog.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("read index file: %w", err)
	default:
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode index file: %w", err)
		}
		idx.load(doc.Entries)
		idx.logger.Info("loaded index", slog.String("path", path), slog.Int("entries", len(idx.entries)))
	}

	metrics.IndexEntries.Set(float64(len(idx.entries)))
	return idx, nil
}

// load keys entries by their normalized hash so lookups match however the
// hash was cased on disk. On a key collision the most recently updated entry
// wins.
func (i *Index) load(entries map[domain.InfoHash]domain.MetadataEntry) {
	for key, entry := range entries {
		hash := key.Normalize()
		if hash == "" {
			i.logger.Warn("skipping index entry with empty hash")
			continue
		}
		if prev, dup := i.entries[hash]; dup {
			i.logger.Warn("duplicate index key after normalization", slog.String("infoHash", string(hash)))
			if prev.UpdatedAt >= entry.UpdatedAt {
				continue
			}
		}
		entry.InfoHash = hash
		i.entries[hash] = entry
	}
}

// Path returns the durable file location.
func (i *Index) Path() string {
	return i.path
}

// Upsert creates or merges the entry for hash. The torrent id is always
// overwritten; optional fields only when present in meta.
func (i *Index) Upsert(ctx context.Context, hash domain.InfoHash, torrentID int, meta domain.ExternalMetadata) (domain.MetadataEntry, error) {
	hash = hash.Normalize()
	now := i.now().Unix()

	i.mu.Lock()
	defer i.mu.Unlock()

	prev, existed := i.entries[hash]
	entry := prev
	if existed {
		entry.TorrentID = torrentID
		if meta.TMDBID != nil {
			entry.TMDBID = meta.TMDBID
		}
		if meta.MediaType != nil {
			entry.MediaType = meta.MediaType
		}
		if meta.EpisodeInfo != nil {
			entry.EpisodeInfo = meta.EpisodeInfo
		}
		entry.UpdatedAt = now
	} else {
		entry = domain.MetadataEntry{
			TorrentID:   torrentID,
			InfoHash:    hash,
			TMDBID:      meta.TMDBID,
			MediaType:   meta.MediaType,
			EpisodeInfo: meta.EpisodeInfo,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	i.entries[hash] = cloneEntry(entry)

	if err := i.persistLocked(ctx, "upsert"); err != nil {
		if existed {
			i.entries[hash] = prev
		} else {
			delete(i.entries, hash)
		}
		return domain.MetadataEntry{}, err
	}

	if existed {
		i.logger.Debug("updated index entry", slog.String("infoHash", string(hash)))
	} else {
		i.logger.Debug("created index entry", slog.String("infoHash", string(hash)))
	}
	return cloneEntry(entry), nil
}

func (i *Index) GetByHash(_ context.Context, hash domain.InfoHash) (domain.MetadataEntry, error) {
	hash = hash.Normalize()
	i.mu.RLock()
	defer i.mu.RUnlock()
	entry, ok := i.entries[hash]
	if !ok {
		return domain.MetadataEntry{}, domain.ErrNotFound
	}
	return cloneEntry(entry), nil
}

// GetByTorrentID scans for the entry currently carrying torrentID. The id is
// volatile, so it is not indexed.
func (i *Index) GetByTorrentID(_ context.Context, torrentID int) (domain.MetadataEntry, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if _, entry, ok := i.findByTorrentIDLocked(torrentID); ok {
		return cloneEntry(entry), nil
	}
	return domain.MetadataEntry{}, domain.ErrNotFound
}

// GetExternalID returns the catalog id and kind attached to hash. ok is false
// when the entry is missing or carries no catalog id.
func (i *Index) GetExternalID(_ context.Context, hash domain.InfoHash) (uint64, *domain.MediaKind, bool) {
	hash = hash.Normalize()
	i.mu.RLock()
	defer i.mu.RUnlock()
	entry, ok := i.entries[hash]
	if !ok || entry.TMDBID == nil {
		return 0, nil, false
	}
	var kind *domain.MediaKind
	if entry.MediaType != nil {
		k := *entry.MediaType
		kind = &k
	}
	return *entry.TMDBID, kind, true
}

func (i *Index) RemoveByHash(ctx context.Context, hash domain.InfoHash) (bool, error) {
	hash = hash.Normalize()
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, ok := i.entries[hash]
	if !ok {
		return false, nil
	}
	delete(i.entries, hash)
	if err := i.persistLocked(ctx, "remove"); err != nil {
		i.entries[hash] = entry
		return false, err
	}
	i.logger.Debug("removed index entry", slog.String("infoHash", string(hash)))
	return true, nil
}

func (i *Index) RemoveByTorrentID(ctx context.Context, torrentID int) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	hash, entry, ok := i.findByTorrentIDLocked(torrentID)
	if !ok {
		return false, nil
	}
	delete(i.entries, hash)
	if err := i.persistLocked(ctx, "remove"); err != nil {
		i.entries[hash] = entry
		return false, err
	}
	i.logger.Debug("removed index entry",
		slog.Int("torrentId", torrentID),
		slog.String("infoHash", string(hash)),
	)
	return true, nil
}

// Sync drops every entry whose hash is not in active and returns how many
// were removed. Hashes compare case-insensitively. Nothing is written when the index is already in sync.
func (i *Index) Sync(ctx context.Context, active []domain.InfoHash) (int, error) {
	keep := make(map[domain.InfoHash]struct{}, len(active))
	for _, hash := range active {
		keep[hash.Normalize()] = struct{}{}
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	removed := make(map[domain.InfoHash]domain.MetadataEntry)
	for hash, entry := range i.entries {
		if _, ok := keep[hash]; !ok {
			removed[hash] = entry
			delete(i.entries, hash)
		}
	}
	if len(removed) == 0 {
		i.logger.Debug("index is in sync with torrent list")
		return 0, nil
	}

	if err := i.persistLocked(ctx, "sync"); err != nil {
		for hash, entry := range removed {
			i.entries[hash] = entry
		}
		return 0, err
	}
	metrics.IndexPrunedTotal.Add(float64(len(removed)))
	i.logger.Info("removed stale index entries", slog.Int("count", len(removed)))
	return len(removed), nil
}

func (i *Index) List(_ context.Context) []domain.MetadataEntry {
	return i.collect(func(domain.MetadataEntry) bool { return true })
}

func (i *Index) ListWithExternalMetadata(_ context.Context) []domain.MetadataEntry {
	return i.collect(domain.MetadataEntry.HasExternalMetadata)
}

func (i *Index) ListByExternalID(_ context.Context, tmdbID uint64, kind domain.MediaKind) []domain.MetadataEntry {
	return i.collect(func(e domain.MetadataEntry) bool {
		return e.TMDBID != nil && *e.TMDBID == tmdbID && e.MediaType != nil && *e.MediaType == kind
	})
}

// ListExternalIDs returns the distinct catalog id and kind pairs in the index.
// Entries without a media kind are skipped.
func (i *Index) ListExternalIDs(_ context.Context) []domain.ExternalID {
	i.mu.RLock()
	seen := make(map[domain.ExternalID]struct{})
	for _, e := range i.entries {
		if e.TMDBID == nil || e.MediaType == nil {
			continue
		}
		seen[domain.ExternalID{TMDBID: *e.TMDBID, MediaType: *e.MediaType}] = struct{}{}
	}
	i.mu.RUnlock()

	out := make([]domain.ExternalID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].TMDBID != out[b].TMDBID {
			return out[a].TMDBID < out[b].TMDBID
		}
		return out[a].MediaType < out[b].MediaType
	})
	return out
}

func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func (i *Index) collect(keep func(domain.MetadataEntry) bool) []domain.MetadataEntry {
	i.mu.RLock()
	out := make([]domain.MetadataEntry, 0, len(i.entries))
	for _, e := range i.entries {
		if keep(e) {
			out = append(out, cloneEntry(e))
		}
	}
	i.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].InfoHash < out[b].InfoHash })
	return out
}

func (i *Index) findByTorrentIDLocked(torrentID int) (domain.InfoHash, domain.MetadataEntry, bool) {
	for hash, e := range i.entries {
		if e.TorrentID == torrentID {
			return hash, e, true
		}
	}
	return "", domain.MetadataEntry{}, false
}

// persistLocked writes the whole index atomically. Callers hold i.mu.
func (i *Index) persistLocked(ctx context.Context, op string) (err error) {
	_, span := tracer.Start(ctx, "index.persist")
	span.SetAttributes(
		attribute.String("index.op", op),
		attribute.Int("index.entries", len(i.entries)),
	)
	start := time.Now()
	defer func() {
		metrics.IndexPersistDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.IndexPersistFailuresTotal.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			i.logger.Error("index persist failed",
				slog.String("op", op),
				slog.String("path", i.path),
				slog.String("error", err.Error()),
			)
		} else {
			metrics.IndexEntries.Set(float64(len(i.entries)))
		}
		span.End()
	}()

	data, err := json.MarshalIndent(document{Entries: i.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := writeFileAtomic(i.path, data); err != nil {
		return err
	}
	i.logger.Debug("saved index", slog.Int("entries", len(i.entries)))
	return nil
}

// writeFileAtomic replaces path with data through a temp file in the same
// directory, so readers see either the old or the new document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp index file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp index file: %w", err)
	}
	return nil
}

// cloneEntry copies the pointer fields so callers cannot mutate index state.
func cloneEntry(e domain.MetadataEntry) domain.MetadataEntry {
	if e.TMDBID != nil {
		v := *e.TMDBID
		e.TMDBID = &v
	}
	if e.MediaType != nil {
		v := *e.MediaType
		e.MediaType = &v
	}
	if e.EpisodeInfo != nil {
		v := *e.EpisodeInfo
		e.EpisodeInfo = &v
	}
	if e.IMDBCode != nil {
		v := *e.IMDBCode
		e.IMDBCode = &v
	}
	return e
}
