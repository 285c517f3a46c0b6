package usecase

import (
	"context"
	"errors"

	"streamhost/internal/domain"
	"streamhost/internal/domain/ports"
)

// AttachMetadata records or refreshes the catalog metadata of a download.
type AttachMetadata struct {
	Index ports.MetadataIndex
}

type AttachMetadataInput struct {
	InfoHash    string
	Magnet      string
	TorrentID   int
	TMDBID      *uint64
	MediaType   *string
	EpisodeInfo *domain.EpisodeLocator
}

func (uc AttachMetadata) Execute(ctx context.Context, input AttachMetadataInput) (domain.MetadataEntry, error) {
	hash, err := ResolveInfoHash(input.InfoHash, input.Magnet)
	if err != nil {
		return domain.MetadataEntry{}, err
	}
	if input.TorrentID < 0 {
		return domain.MetadataEntry{}, wrapInvalid(errors.New("torrentId must not be negative"))
	}

	meta := domain.ExternalMetadata{
		TMDBID:      input.TMDBID,
		EpisodeInfo: input.EpisodeInfo,
	}
	if input.MediaType != nil {
		kind, err := domain.ParseMediaKind(*input.MediaType)
		if err != nil {
			return domain.MetadataEntry{}, wrapInvalid(err)
		}
		meta.MediaType = &kind
	}
	if ep := meta.EpisodeInfo; ep != nil {
		if ep.Season < 0 || ep.Episode < 0 {
			return domain.MetadataEntry{}, wrapInvalid(errors.New("season and episode must not be negative"))
		}
		if meta.MediaType != nil && !meta.MediaType.Episodic() {
			return domain.MetadataEntry{}, wrapInvalid(errors.New("episodeInfo requires mediaType tv"))
		}
	}

	entry, err := uc.Index.Upsert(ctx, hash, input.TorrentID, meta)
	if err != nil {
		return domain.MetadataEntry{}, wrapRepo(err)
	}
	return entry, nil
}
