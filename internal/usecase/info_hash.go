package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"streamhost/internal/domain"
)

// ResolveInfoHash picks the content hash from either a raw hash or a magnet
// URI. Exactly one of them must be set. 40-character hex hashes are
// canonicalized to lowercase; other non-empty identifiers are kept as opaque
// keys so existing index files stay addressable.
func ResolveInfoHash(raw, magnet string) (domain.InfoHash, error) {
	raw = strings.TrimSpace(raw)
	magnet = strings.TrimSpace(magnet)

	switch {
	case raw != "" && magnet != "":
		return "", wrapInvalid(errors.New("provide either infoHash or magnet, not both"))
	case magnet != "":
		m, err := metainfo.ParseMagnetUri(magnet)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidHash, err)
		}
		return domain.InfoHash(m.InfoHash.HexString()), nil
	case raw != "":
		return normalizeInfoHash(raw)
	default:
		return "", wrapInvalid(errors.New("infoHash or magnet is required"))
	}
}

// LookupInfoHash resolves a hash used to address an existing entry. Unlike
// ResolveInfoHash it accepts any non-empty identifier, so keys written by
// older versions stay reachable.
func LookupInfoHash(raw string) (domain.InfoHash, error) {
	if hash, err := normalizeInfoHash(raw); err == nil {
		return hash, nil
	}
	hash := domain.InfoHash(raw).Normalize()
	if hash == "" {
		return "", fmt.Errorf("%w: empty hash", domain.ErrInvalidHash)
	}
	return hash, nil
}

func normalizeInfoHash(raw string) (domain.InfoHash, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\r\n/") {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidHash, raw)
	}
	if len(raw) == 40 {
		var h metainfo.Hash
		if err := h.FromHexString(raw); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidHash, err)
		}
		return domain.InfoHash(h.HexString()), nil
	}
	return domain.InfoHash(raw).Normalize(), nil
}
