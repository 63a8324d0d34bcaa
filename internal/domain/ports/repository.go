package ports

import (
	"context"

	"trackcache/internal/domain"
)

// TrackRepository is the metadata store behind the cache state machine. The
// transitions into "caching" (TryInsertCaching, ResetToCaching,
// RetryFromError) are compare-and-set operations: they report whether this
// caller observed the transition, and exactly one concurrent caller does.
type TrackRepository interface {
	Get(ctx context.Context, query string) (domain.TrackRecord, error)
	TryInsertCaching(ctx context.Context, query string) (bool, error)
	ResetToCaching(ctx context.Context, query string) (bool, error)
	RetryFromError(ctx context.Context, query string) (bool, error)
	MarkCached(ctx context.Context, query, fileName string, tags domain.TrackTags, duration float64) error
	MarkError(ctx context.Context, query string) error
	Touch(ctx context.Context, fileName string) error
	ListCachedLRU(ctx context.Context) ([]domain.TrackRecord, error)
	ListCachedByRecency(ctx context.Context) ([]domain.TrackRecord, error)
	DeleteByFileName(ctx context.Context, fileName string) error
}
