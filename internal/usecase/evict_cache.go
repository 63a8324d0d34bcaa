package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"trackcache/internal/domain"
	"trackcache/internal/domain/ports"
	"trackcache/internal/metrics"
)

const (
	defaultSweepInterval = 15 * time.Minute
	sweepTimeout         = 5 * time.Minute
)

// EvictCache keeps the artifact directory under its byte bound. A sweep
// runs when the directory reaches LimitBytes and deletes coldest-first
// (by persisted last access) until the total drops to TargetBytes. The
// file is always unlinked before its row is deleted; a crash between the
// two leaves a stale row that repairs on the next lookup.
type EvictCache struct {
	Repo        ports.TrackRepository
	Artifacts   ports.ArtifactStore
	LimitBytes  int64
	TargetBytes int64
	Events      ports.Events
	Logger      *slog.Logger

	running atomic.Bool
}

// SweepResult reports what one sweep did. Skipped is set when another sweep
// already held the lock; dropped triggers are not queued.
type SweepResult struct {
	Deleted    int
	FreedBytes int64
	Skipped    bool
}

// Trigger starts a sweep in the background. Called fire-and-forget after
// every successful fetch; the next completion re-triggers if this one is
// dropped for contention.
func (uc *EvictCache) Trigger() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := uc.Sweep(ctx); err != nil {
			uc.logger().Error("eviction sweep failed", slog.String("error", err.Error()))
		}
	}()
}

// Sweep enforces the size bound once. At most one sweep runs per process;
// concurrent calls return immediately with Skipped set.
func (uc *EvictCache) Sweep(ctx context.Context) (SweepResult, error) {
	if !uc.running.CompareAndSwap(false, true) {
		uc.logger().Debug("eviction already running, trigger dropped")
		return SweepResult{Skipped: true}, nil
	}
	defer uc.running.Store(false)

	log := uc.logger()

	total, err := uc.Artifacts.TotalSize()
	if err != nil {
		return SweepResult{}, fmt.Errorf("measure cache: %w", err)
	}
	metrics.CacheSizeBytes.Set(float64(total))

	if total < uc.LimitBytes {
		log.Debug("cache within limit",
			slog.Int64("totalBytes", total),
			slog.Int64("limitBytes", uc.LimitBytes),
		)
		return SweepResult{}, nil
	}

	metrics.EvictionRunsTotal.Inc()
	log.Info("eviction started",
		slog.Int64("totalBytes", total),
		slog.Int64("limitBytes", uc.LimitBytes),
		slog.Int64("targetBytes", uc.TargetBytes),
	)

	victims, err := uc.Repo.ListCachedLRU(ctx)
	if err != nil {
		return SweepResult{}, wrapStore(err)
	}

	goal := total - uc.TargetBytes
	var freed int64
	var deleted int
	for _, victim := range victims {
		if freed >= goal {
			break
		}
		if victim.FileName == "" {
			continue
		}
		size, err := uc.Artifacts.Size(victim.FileName)
		if errors.Is(err, domain.ErrNotFound) {
			// File already gone; the repair path owns this row.
			continue
		}
		if err != nil {
			log.Warn("eviction stat failed",
				slog.String("fileName", victim.FileName),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := uc.Artifacts.Remove(victim.FileName); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Warn("eviction unlink failed",
					slog.String("fileName", victim.FileName),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		// Row delete comes strictly after the unlink. If it fails the row
		// goes stale and repairs on the next lookup.
		if err := uc.Repo.DeleteByFileName(ctx, victim.FileName); err != nil {
			log.Warn("eviction row delete failed",
				slog.String("fileName", victim.FileName),
				slog.String("error", err.Error()),
			)
		}
		freed += size
		deleted++
		log.Info("evicted artifact",
			slog.String("query", victim.SearchQuery),
			slog.String("fileName", victim.FileName),
			slog.Int64("bytes", size),
			slog.Time("lastAccessedAt", victim.LastAccessedAt),
		)
	}

	metrics.EvictedFilesTotal.Add(float64(deleted))
	metrics.EvictedBytesTotal.Add(float64(freed))
	metrics.CacheSizeBytes.Set(float64(total - freed))

	log.Info("eviction finished",
		slog.Int("deleted", deleted),
		slog.Int64("freedBytes", freed),
		slog.Int64("remainingBytes", total-freed),
	)
	if uc.Events != nil && deleted > 0 {
		uc.Events.CacheEvicted(deleted, freed)
	}
	return SweepResult{Deleted: deleted, FreedBytes: freed}, nil
}

// Run sweeps at boot and then on every tick until ctx is cancelled. The
// periodic pass covers growth that happens outside fetch completions, such
// as files restored from backup or bounds lowered between restarts.
func (uc *EvictCache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	uc.sweepOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uc.sweepOnce(ctx)
		}
	}
}

func (uc *EvictCache) sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	if _, err := uc.Sweep(sweepCtx); err != nil {
		uc.logger().Error("eviction sweep failed", slog.String("error", err.Error()))
	}
}

func (uc *EvictCache) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
