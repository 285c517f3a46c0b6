package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxRequestBody = 1 << 20

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

type startFileServerRequest struct {
	Port *int `json:"port" validate:"omitempty,min=0,max=65535"`
}

type selectFileRequest struct {
	Path string `json:"path" validate:"required"`
}

type episodeInfoRequest struct {
	Season  int `json:"season" validate:"min=0"`
	Episode int `json:"episode" validate:"min=0"`
}

type metadataFields struct {
	TorrentID   *int                `json:"torrentId" validate:"required,min=0"`
	TMDBID      *uint64             `json:"tmdbId"`
	MediaType   *string             `json:"mediaType" validate:"omitempty,oneof=movie tv"`
	EpisodeInfo *episodeInfoRequest `json:"episodeInfo"`
}

type attachMetadataRequest struct {
	InfoHash string `json:"infoHash" validate:"required_without=Magnet"`
	Magnet   string `json:"magnet" validate:"omitempty,startswith=magnet:"`
	metadataFields
}

type syncLibraryRequest struct {
	ActiveHashes []string `json:"activeHashes" validate:"required"`
}

// decodeRequest reads a JSON body into dst and validates its tags. An empty
// body is accepted when allowEmpty is set and leaves dst zero-valued.
func decodeRequest(r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return fmt.Errorf("invalid json: %w", err)
		}
	}
	if err := validate.Struct(dst); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag", e.Field(), e.Tag())
	}
	return err
}
