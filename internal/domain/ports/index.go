package ports

import (
	"context"

	"streamhost/internal/domain"
)

// MetadataIndex is the durable hash -> metadata mapping, keyed by normalized
// hash. Every mutation is persisted before the call returns.
type MetadataIndex interface {
	Upsert(ctx context.Context, hash domain.InfoHash, torrentID int, meta domain.ExternalMetadata) (domain.MetadataEntry, error)
	GetByHash(ctx context.Context, hash domain.InfoHash) (domain.MetadataEntry, error)
	GetByTorrentID(ctx context.Context, torrentID int) (domain.MetadataEntry, error)
	GetExternalID(ctx context.Context, hash domain.InfoHash) (uint64, *domain.MediaKind, bool)
	RemoveByHash(ctx context.Context, hash domain.InfoHash) (bool, error)
	RemoveByTorrentID(ctx context.Context, torrentID int) (bool, error)
	Sync(ctx context.Context, active []domain.InfoHash) (int, error)
	List(ctx context.Context) []domain.MetadataEntry
	ListWithExternalMetadata(ctx context.Context) []domain.MetadataEntry
	ListByExternalID(ctx context.Context, tmdbID uint64, kind domain.MediaKind) []domain.MetadataEntry
	ListExternalIDs(ctx context.Context) []domain.ExternalID
	Count() int
}
