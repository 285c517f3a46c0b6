package domain

import "strings"

// InfoHash is the stable content hash identifying a download.
type InfoHash string

func (h InfoHash) Normalize() InfoHash {
	return InfoHash(strings.ToLower(strings.TrimSpace(string(h))))
}

// MetadataEntry associates a download with external catalog metadata. The JSON
// field names are the persisted index format.
type MetadataEntry struct {
	// TorrentID is the engine-assigned numeric id. It changes across engine
	// restarts and is resynchronized on every upsert.
	TorrentID   int             `json:"torrent_id"`
	InfoHash    InfoHash        `json:"info_hash"`
	TMDBID      *uint64         `json:"tmdb_id"`
	MediaType   *MediaKind      `json:"media_type"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
	EpisodeInfo *EpisodeLocator `json:"episode_info"`
	// Deprecated: IMDBCode is kept only so older index files round-trip.
	IMDBCode *string `json:"imdb_code"`
}

// HasExternalMetadata reports whether a catalog id is attached.
func (e MetadataEntry) HasExternalMetadata() bool {
	return e.TMDBID != nil
}

// ExternalMetadata carries the optional fields of an upsert. A nil field never
// erases existing data.
type ExternalMetadata struct {
	TMDBID      *uint64
	MediaType   *MediaKind
	EpisodeInfo *EpisodeLocator
}

// ExternalID is a distinct catalog id and media kind pair present in the index.
type ExternalID struct {
	TMDBID    uint64    `json:"tmdbId"`
	MediaType MediaKind `json:"mediaType"`
}
