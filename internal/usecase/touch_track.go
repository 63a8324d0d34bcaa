package usecase

import (
	"context"
	"errors"

	"trackcache/internal/domain"
	"trackcache/internal/domain/ports"
)

// TouchTrack bumps last_accessed_at for the named artifact so streams keep
// it warm against eviction. A name with no row is not an error: the row may
// have been evicted between lookup and stream.
type TouchTrack struct {
	Repo ports.TrackRepository
}

func (uc TouchTrack) Execute(ctx context.Context, fileName string) error {
	if err := uc.Repo.Touch(ctx, fileName); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return wrapStore(err)
	}
	return nil
}
