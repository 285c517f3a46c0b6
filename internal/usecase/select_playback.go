package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"streamhost/internal/domain/ports"
)

// PlaybackServer is the part of the streaming listener needed to build URLs.
type PlaybackServer interface {
	Port() int
	PlaybackURL(port int) string
}

// SelectPlayback points the streaming listener at a local file and returns the
// URL a player should load.
type SelectPlayback struct {
	Registry    ports.ServedFileRegistry
	Server      PlaybackServer
	DefaultPort int
}

type PlaybackSelection struct {
	Path       string `json:"path"`
	URL        string `json:"url"`
	Generation uint64 `json:"generation"`
}

func (uc SelectPlayback) Execute(_ context.Context, path string) (PlaybackSelection, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return PlaybackSelection{}, wrapInvalid(errors.New("path is required"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return PlaybackSelection{}, wrapInvalid(fmt.Errorf("resolve path: %v", err))
	}

	generation := uc.Registry.Set(abs)

	var url string
	if uc.Server != nil {
		port := uc.DefaultPort
		if p := uc.Server.Port(); p != 0 {
			port = p
		}
		url = uc.Server.PlaybackURL(port)
	}
	return PlaybackSelection{Path: abs, URL: url, Generation: generation}, nil
}
