package usecase

import (
	"context"
	"log/slog"

	"streamhost/internal/domain"
	"streamhost/internal/domain/ports"
)

// PruneIndex drops index entries whose download is no longer known to the
// engine. Every non-empty active hash protects its entry, including keys
// that would be rejected for new entries.
type PruneIndex struct {
	Index  ports.MetadataIndex
	Logger *slog.Logger
}

func (uc PruneIndex) Execute(ctx context.Context, active []string) (int, error) {
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hashes := make([]domain.InfoHash, 0, len(active))
	for _, raw := range active {
		hash, err := LookupInfoHash(raw)
		if err != nil {
			logger.Warn("skipping empty active hash")
			continue
		}
		hashes = append(hashes, hash)
	}

	removed, err := uc.Index.Sync(ctx, hashes)
	if err != nil {
		return 0, wrapRepo(err)
	}
	if removed > 0 {
		logger.Info("pruned index", slog.Int("removed", removed), slog.Int("active", len(hashes)))
	}
	return removed, nil
}
