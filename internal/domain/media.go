package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MediaKind is the catalog category of a download.
type MediaKind string

const (
	MediaMovie MediaKind = "movie"
	MediaTV    MediaKind = "tv"
)

func ParseMediaKind(raw string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(raw))) {
	case MediaMovie:
		return MediaMovie, nil
	case MediaTV:
		return MediaTV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMediaKind, raw)
	}
}

// Episodic reports whether entries of this kind may carry an episode locator.
func (k MediaKind) Episodic() bool {
	return k == MediaTV
}

// EpisodeLocator points at a single episode of a series. On disk it is stored
// as a two-element array [season, episode].
type EpisodeLocator struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

func (l EpisodeLocator) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{l.Season, l.Episode})
}

func (l *EpisodeLocator) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return errors.New("episode locator must have exactly two elements")
		}
		l.Season, l.Episode = pair[0], pair[1]
		return nil
	}

	// Accept the object form as well; the control API sends it that way.
	var obj struct {
		Season  int `json:"season"`
		Episode int `json:"episode"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode episode locator: %w", err)
	}
	l.Season, l.Episode = obj.Season, obj.Episode
	return nil
}
