package usecase

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"streamhost/internal/domain"
)

type fakeIndex struct {
	mu         sync.Mutex
	entries    map[domain.InfoHash]domain.MetadataEntry
	upsertErr  error
	syncErr    error
	upsertHash domain.InfoHash
	upsertMeta domain.ExternalMetadata
	synced     []domain.InfoHash
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: make(map[domain.InfoHash]domain.MetadataEntry)}
}

func (f *fakeIndex) Upsert(_ context.Context, hash domain.InfoHash, torrentID int, meta domain.ExternalMetadata) (domain.MetadataEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertHash = hash
	f.upsertMeta = meta
	if f.upsertErr != nil {
		return domain.MetadataEntry{}, f.upsertErr
	}
	entry := f.entries[hash]
	entry.InfoHash = hash
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
	f.entries[hash] = entry
	return entry, nil
}

func (f *fakeIndex) GetByHash(_ context.Context, hash domain.InfoHash) (domain.MetadataEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[hash]
	if !ok {
		return domain.MetadataEntry{}, domain.ErrNotFound
	}
	return entry, nil
}

func (f *fakeIndex) GetByTorrentID(_ context.Context, torrentID int) (domain.MetadataEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.TorrentID == torrentID {
			return e, nil
		}
	}
	return domain.MetadataEntry{}, domain.ErrNotFound
}

func (f *fakeIndex) GetExternalID(_ context.Context, hash domain.InfoHash) (uint64, *domain.MediaKind, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[hash]
	if !ok || e.TMDBID == nil {
		return 0, nil, false
	}
	return *e.TMDBID, e.MediaType, true
}

func (f *fakeIndex) RemoveByHash(_ context.Context, hash domain.InfoHash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[hash]
	delete(f.entries, hash)
	return ok, nil
}

func (f *fakeIndex) RemoveByTorrentID(_ context.Context, torrentID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for h, e := range f.entries {
		if e.TorrentID == torrentID {
			delete(f.entries, h)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIndex) Sync(_ context.Context, active []domain.InfoHash) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append([]domain.InfoHash(nil), active...)
	if f.syncErr != nil {
		return 0, f.syncErr
	}
	keep := make(map[domain.InfoHash]bool, len(active))
	for _, h := range active {
		keep[h] = true
	}
	removed := 0
	for h := range f.entries {
		if !keep[h] {
			delete(f.entries, h)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeIndex) List(_ context.Context) []domain.MetadataEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.MetadataEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].InfoHash < out[b].InfoHash })
	return out
}

func (f *fakeIndex) ListWithExternalMetadata(ctx context.Context) []domain.MetadataEntry {
	var out []domain.MetadataEntry
	for _, e := range f.List(ctx) {
		if e.HasExternalMetadata() {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeIndex) ListByExternalID(ctx context.Context, tmdbID uint64, kind domain.MediaKind) []domain.MetadataEntry {
	var out []domain.MetadataEntry
	for _, e := range f.List(ctx) {
		if e.TMDBID != nil && *e.TMDBID == tmdbID && e.MediaType != nil && *e.MediaType == kind {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeIndex) ListExternalIDs(context.Context) []domain.ExternalID { return nil }

func (f *fakeIndex) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeRegistry struct {
	path       string
	generation uint64
}

func (f *fakeRegistry) Set(path string) uint64 {
	f.path = path
	f.generation++
	return f.generation
}

func (f *fakeRegistry) Get() (string, bool) { return f.path, f.generation > 0 }

func (f *fakeRegistry) Snapshot() domain.ServedFile {
	return domain.ServedFile{Path: f.path, Generation: f.generation, Set: f.generation > 0}
}

type fakePlaybackServer struct {
	port int
}

func (f fakePlaybackServer) Port() int { return f.port }

func (f fakePlaybackServer) PlaybackURL(port int) string {
	return "http://127.0.0.1:" + strconv.Itoa(port) + "/video.mp4"
}
