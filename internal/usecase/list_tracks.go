package usecase

import (
	"context"

	"trackcache/internal/domain"
	"trackcache/internal/domain/ports"
)

// ListTracks returns the fully cached library, most recently cached first.
type ListTracks struct {
	Repo ports.TrackRepository
}

func (uc ListTracks) Execute(ctx context.Context) ([]domain.TrackRecord, error) {
	records, err := uc.Repo.ListCachedByRecency(ctx)
	if err != nil {
		return nil, wrapStore(err)
	}
	return records, nil
}
