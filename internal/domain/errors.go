package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrInvalidHash = errors.New("invalid info hash")
var ErrInvalidMediaKind = errors.New("invalid media kind")
