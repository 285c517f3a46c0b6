package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrRepository     = errors.New("repository error")
	ErrInvalidRequest = errors.New("invalid request")
)

func wrapRepo(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRepository, err)
}

func wrapInvalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}
