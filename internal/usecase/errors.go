package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrStore    = errors.New("store error")
	ErrUpstream = errors.New("upstream error")
)

func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStore, err)
}

func wrapUpstream(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
