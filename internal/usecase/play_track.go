package usecase

import (
	"context"
	"errors"

	"trackcache/internal/domain"
	"trackcache/internal/domain/ports"
)

// PlayTrack returns the artifact name for a fully cached track. It is a
// read-only consumer: a track that is absent, still caching, failed, or
// cached with a missing file all come back as domain.ErrNotFound, and no
// fetch is ever dispatched from here. Starting fetches is the now-playing
// trigger's job.
type PlayTrack struct {
	Repo      ports.TrackRepository
	Artifacts ports.ArtifactStore
}

func (uc PlayTrack) Execute(ctx context.Context, query string) (string, error) {
	record, err := uc.Repo.Get(ctx, query)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", wrapStore(err)
	}
	if record.Status != domain.TrackCached || record.FileName == "" || !uc.Artifacts.Exists(record.FileName) {
		return "", domain.ErrNotFound
	}
	return record.FileName, nil
}
