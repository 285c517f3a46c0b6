package apihttp

import (
	"log/slog"
	"net/http"
)

type fileServerResponse struct {
	Running    bool   `json:"running"`
	URL        string `json:"url,omitempty"`
	Port       int    `json:"port,omitempty"`
	Path       string `json:"path,omitempty"`
	Generation uint64 `json:"generation"`
}

type urlResponse struct {
	URL string `json:"url"`
}

func (s *Server) fileServerStatus() fileServerResponse {
	var resp fileServerResponse
	if s.fileServer != nil {
		resp.URL, resp.Running = s.fileServer.BaseURL()
		resp.Port = s.fileServer.Port()
	}
	if s.servedFiles != nil {
		snap := s.servedFiles.Snapshot()
		resp.Path = snap.Path
		resp.Generation = snap.Generation
	}
	return resp
}

func (s *Server) handleFileServer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.fileServerStatus())
}

func (s *Server) handleFileServerStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.fileServer == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "file server not configured")
		return
	}

	var req startFileServerRequest
	if err := decodeRequest(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	port := s.defaultPort
	if req.Port != nil {
		port = *req.Port
	}

	url, err := s.fileServer.Start(port)
	if err != nil {
		s.logger.Warn("file server start failed", slog.Int("port", port), slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "bind_failed", err.Error())
		return
	}
	s.wsHub.Broadcast(eventFileServer, s.fileServerStatus())
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

func (s *Server) handleFileServerFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.selectPlayback == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "playback not configured")
		return
	}

	var req selectFileRequest
	if err := decodeRequest(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sel, err := s.selectPlayback.Execute(r.Context(), req.Path)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	s.wsHub.Broadcast(eventServedFile, sel)
	writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleFileServerURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.fileServer == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "file server not configured")
		return
	}

	port, err := parsePositiveInt(r.URL.Query().Get("port"), true)
	if err != nil || port > 65535 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid port")
		return
	}
	if port == -1 {
		port = s.fileServer.Port()
		if port == 0 {
			port = s.defaultPort
		}
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: s.fileServer.PlaybackURL(port)})
}
