package apihttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"streamhost/internal/domain"
	"streamhost/internal/usecase"
)

type episodeInfoResponse struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

type libraryEntryResponse struct {
	InfoHash    domain.InfoHash      `json:"infoHash"`
	TorrentID   int                  `json:"torrentId"`
	TMDBID      *uint64              `json:"tmdbId,omitempty"`
	MediaType   *domain.MediaKind    `json:"mediaType,omitempty"`
	EpisodeInfo *episodeInfoResponse `json:"episodeInfo,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

type libraryListResponse struct {
	Items []libraryEntryResponse `json:"items"`
	Count int                    `json:"count"`
}

type externalIDListResponse struct {
	Items []domain.ExternalID `json:"items"`
	Count int                 `json:"count"`
}

type libraryEvent struct {
	Op       string          `json:"op"`
	InfoHash domain.InfoHash `json:"infoHash,omitempty"`
	Removed  int             `json:"removed,omitempty"`
}

type externalIDResponse struct {
	InfoHash  domain.InfoHash   `json:"infoHash"`
	TMDBID    uint64            `json:"tmdbId"`
	MediaType *domain.MediaKind `json:"mediaType,omitempty"`
}

type syncLibraryResponse struct {
	Removed int `json:"removed"`
}

func toEntryResponse(e domain.MetadataEntry) libraryEntryResponse {
	resp := libraryEntryResponse{
		InfoHash:  e.InfoHash,
		TorrentID: e.TorrentID,
		TMDBID:    e.TMDBID,
		MediaType: e.MediaType,
		CreatedAt: time.Unix(e.CreatedAt, 0).UTC(),
		UpdatedAt: time.Unix(e.UpdatedAt, 0).UTC(),
	}
	if e.EpisodeInfo != nil {
		resp.EpisodeInfo = &episodeInfoResponse{Season: e.EpisodeInfo.Season, Episode: e.EpisodeInfo.Episode}
	}
	return resp
}

func toListResponse(entries []domain.MetadataEntry) libraryListResponse {
	items := make([]libraryEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryResponse(e))
	}
	return libraryListResponse{Items: items, Count: len(items)}
}

func (f metadataFields) input() usecase.AttachMetadataInput {
	in := usecase.AttachMetadataInput{
		TMDBID:    f.TMDBID,
		MediaType: f.MediaType,
	}
	if f.TorrentID != nil {
		in.TorrentID = *f.TorrentID
	}
	if f.EpisodeInfo != nil {
		in.EpisodeInfo = &domain.EpisodeLocator{Season: f.EpisodeInfo.Season, Episode: f.EpisodeInfo.Episode}
	}
	return in
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListLibrary(w, r)
	case http.MethodPost:
		s.handleAttachMetadata(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleLibraryItem dispatches /library/ids, /library/sync,
// /library/by-id/{torrentId}, /library/external/{hash} and /library/{hash}.
func (s *Server) handleLibraryItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/library/"), "/")
	switch {
	case rest == "ids":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ids := s.index.ListExternalIDs(r.Context())
		writeJSON(w, http.StatusOK, externalIDListResponse{Items: ids, Count: len(ids)})
	case rest == "sync":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.handleSyncLibrary(w, r)
	case strings.HasPrefix(rest, "by-id/"):
		s.handleLibraryByTorrentID(w, r, strings.TrimPrefix(rest, "by-id/"))
	case strings.HasPrefix(rest, "external/"):
		s.handleExternalID(w, r, strings.TrimPrefix(rest, "external/"))
	case rest == "" || strings.Contains(rest, "/"):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	default:
		s.handleLibraryByHash(w, r, rest)
	}
}

func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rawID := strings.TrimSpace(q.Get("tmdbId"))
	rawKind := strings.TrimSpace(q.Get("mediaType"))
	if rawID != "" || rawKind != "" {
		if rawID == "" || rawKind == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "tmdbId and mediaType must be given together")
			return
		}
		id, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid tmdbId")
			return
		}
		kind, err := domain.ParseMediaKind(rawKind)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toListResponse(s.index.ListByExternalID(r.Context(), id, kind)))
		return
	}

	withMetadata, err := parseBoolQuery(q.Get("withMetadata"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid withMetadata")
		return
	}
	if withMetadata {
		writeJSON(w, http.StatusOK, toListResponse(s.index.ListWithExternalMetadata(r.Context())))
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(s.index.List(r.Context())))
}

func (s *Server) handleAttachMetadata(w http.ResponseWriter, r *http.Request) {
	var req attachMetadataRequest
	if err := decodeRequest(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	in := req.input()
	in.InfoHash = req.InfoHash
	in.Magnet = req.Magnet
	s.attach(w, r, in)
}

func (s *Server) attach(w http.ResponseWriter, r *http.Request, in usecase.AttachMetadataInput) {
	if s.attachMeta == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "metadata updates not configured")
		return
	}
	entry, err := s.attachMeta.Execute(r.Context(), in)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	s.wsHub.Broadcast(eventLibrary, libraryEvent{Op: "upsert", InfoHash: entry.InfoHash})
	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (s *Server) handleLibraryByHash(w http.ResponseWriter, r *http.Request, raw string) {
	hash, err := usecase.LookupInfoHash(raw)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := s.index.GetByHash(r.Context(), hash)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	case http.MethodPut:
		var req metadataFields
		if err := decodeRequest(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		in := req.input()
		in.InfoHash = string(hash)
		s.attach(w, r, in)
	case http.MethodDelete:
		removed, err := s.index.RemoveByHash(r.Context(), hash)
		s.writeRemoval(w, hash, removed, err)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleExternalID returns only the catalog id and kind for a hash; 404 when
// the entry is missing or has no catalog id.
func (s *Server) handleExternalID(w http.ResponseWriter, r *http.Request, raw string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	hash, err := usecase.LookupInfoHash(raw)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	id, kind, ok := s.index.GetExternalID(r.Context(), hash)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no external metadata")
		return
	}
	writeJSON(w, http.StatusOK, externalIDResponse{InfoHash: hash, TMDBID: id, MediaType: kind})
}

func (s *Server) handleLibraryByTorrentID(w http.ResponseWriter, r *http.Request, raw string) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid torrentId")
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := s.index.GetByTorrentID(r.Context(), id)
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	case http.MethodDelete:
		var hash domain.InfoHash
		if entry, err := s.index.GetByTorrentID(r.Context(), id); err == nil {
			hash = entry.InfoHash
		}
		removed, err := s.index.RemoveByTorrentID(r.Context(), id)
		s.writeRemoval(w, hash, removed, err)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeRemoval(w http.ResponseWriter, hash domain.InfoHash, removed bool, err error) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_found", "entry not found")
		return
	}
	s.wsHub.Broadcast(eventLibrary, libraryEvent{Op: "remove", InfoHash: hash})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSyncLibrary(w http.ResponseWriter, r *http.Request) {
	if s.pruneIndex == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "library sync not configured")
		return
	}
	var req syncLibraryRequest
	if err := decodeRequest(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	removed, err := s.pruneIndex.Execute(r.Context(), req.ActiveHashes)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	if removed > 0 {
		s.wsHub.Broadcast(eventLibrary, libraryEvent{Op: "sync", Removed: removed})
	}
	writeJSON(w, http.StatusOK, syncLibraryResponse{Removed: removed})
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "entry not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
}
