package usecase

import (
	"context"
	"log/slog"

	"trackcache/internal/domain"
)

// FetchRunner is the single-shot fetch the dispatcher detaches.
type FetchRunner interface {
	Execute(ctx context.Context, query domain.TrackQuery) error
}

// AsyncDispatcher runs each fetch in its own goroutine on a fresh context,
// detached from the lifetime of the request that triggered it. The caller
// has already won the store-side claim, so there is nothing to rate-limit
// here: one claim, one goroutine.
type AsyncDispatcher struct {
	Fetch  FetchRunner
	Logger *slog.Logger
}

func (d *AsyncDispatcher) Dispatch(query domain.TrackQuery) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), maxFetchTimeout)
		defer cancel()
		if err := d.Fetch.Execute(ctx, query); err != nil {
			// The fetch already recorded the failure on its row.
			d.logger().Warn("background fetch failed",
				slog.String("query", query.Query),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (d *AsyncDispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
