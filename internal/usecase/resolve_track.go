package usecase

import (
	"context"
	"errors"
	"log/slog"

	"trackcache/internal/domain"
	"trackcache/internal/domain/ports"
)

// FetchDispatcher hands a track to the background fetch pipeline. Dispatch
// must return immediately; the fetch itself runs detached from the request
// that triggered it.
type FetchDispatcher interface {
	Dispatch(query domain.TrackQuery)
}

// Resolution is the outcome of a cache lookup: the track's effective status
// and, when it is ready to serve, its artifact name.
type Resolution struct {
	Status   domain.TrackStatus
	FileName string
}

// ResolveTrack decides what the cache does about one track: serve it, start
// fetching it, or report that a fetch is already underway. Every transition
// into "caching" goes through a compare-and-set on the store, so out of any
// number of concurrent resolutions for the same query exactly one dispatches
// a fetch.
type ResolveTrack struct {
	Repo      ports.TrackRepository
	Artifacts ports.ArtifactStore
	Dispatch  FetchDispatcher
	Logger    *slog.Logger
}

func (uc ResolveTrack) Execute(ctx context.Context, query domain.TrackQuery) (Resolution, error) {
	record, err := uc.Repo.Get(ctx, query.Query)
	if errors.Is(err, domain.ErrNotFound) {
		inserted, err := uc.Repo.TryInsertCaching(ctx, query.Query)
		if err != nil {
			return Resolution{}, wrapStore(err)
		}
		if inserted {
			uc.dispatch(query)
		}
		return Resolution{Status: domain.TrackCaching}, nil
	}
	if err != nil {
		return Resolution{}, wrapStore(err)
	}

	switch record.Status {
	case domain.TrackCached:
		if record.FileName != "" && uc.Artifacts.Exists(record.FileName) {
			return Resolution{Status: domain.TrackCached, FileName: record.FileName}, nil
		}
		// The row says cached but the artifact is gone (evicted mid-flight
		// or removed by hand). Whoever wins the reset re-fetches.
		reset, err := uc.Repo.ResetToCaching(ctx, query.Query)
		if err != nil {
			return Resolution{}, wrapStore(err)
		}
		if reset {
			uc.logger().Warn("cached artifact missing, re-fetching",
				slog.String("query", query.Query),
				slog.String("fileName", record.FileName),
			)
			uc.dispatch(query)
		}
		return Resolution{Status: domain.TrackCaching}, nil

	case domain.TrackError:
		retried, err := uc.Repo.RetryFromError(ctx, query.Query)
		if err != nil {
			return Resolution{}, wrapStore(err)
		}
		if retried {
			uc.dispatch(query)
		}
		return Resolution{Status: domain.TrackCaching}, nil

	default:
		// Already caching; some other caller owns the fetch.
		return Resolution{Status: domain.TrackCaching}, nil
	}
}

func (uc ResolveTrack) dispatch(query domain.TrackQuery) {
	if uc.Dispatch == nil {
		uc.logger().Error("no fetch dispatcher configured", slog.String("query", query.Query))
		return
	}
	uc.Dispatch.Dispatch(query)
}

func (uc ResolveTrack) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
