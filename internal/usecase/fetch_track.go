package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackcache/internal/domain"
	"trackcache/internal/domain/ports"
	"trackcache/internal/metrics"
)

// Extractor produces the audio artifact for a track under the given output
// stem and returns the path it actually wrote.
type Extractor interface {
	Fetch(ctx context.Context, title, artist, outputStem string) (string, error)
}

// TagReader reads container tags and duration from a finished artifact.
type TagReader interface {
	Probe(ctx context.Context, filePath string) (domain.ArtifactInfo, error)
}

// Sweeper triggers a cache eviction sweep.
type Sweeper interface {
	Trigger()
}

const (
	maxFetchTimeout   = 10 * time.Minute
	storeWriteTimeout = 10 * time.Second
)

// FetchTrack runs the pipeline for one claimed track: download and convert,
// move into the artifact directory, probe tags, flip the row to cached.
// Every failure collapses to status=error on the row; the worker itself
// never escalates.
type FetchTrack struct {
	Repo      ports.TrackRepository
	Artifacts ports.ArtifactStore
	Extractor Extractor
	Prober    TagReader
	Evict     Sweeper
	Events    ports.Events
	Logger    *slog.Logger
	NewID     func() string // defaults to uuid.NewString
}

func (uc FetchTrack) Execute(ctx context.Context, query domain.TrackQuery) error {
	log := uc.logger().With(slog.String("query", query.Query))
	start := time.Now()

	fileName, err := uc.run(ctx, log, query)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues("error").Inc()
		log.Error("fetch failed", slog.String("error", err.Error()))
		uc.markError(query.Query, log)
		if uc.Events != nil {
			uc.Events.TrackError(query.Query)
		}
		return err
	}

	metrics.FetchesTotal.WithLabelValues("success").Inc()
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	log.Info("track cached",
		slog.String("fileName", fileName),
		slog.Int64("tookMs", time.Since(start).Milliseconds()),
	)
	if uc.Events != nil {
		uc.Events.TrackCached(query.Query, fileName)
	}
	if uc.Evict != nil {
		uc.Evict.Trigger()
	}
	return nil
}

func (uc FetchTrack) run(ctx context.Context, log *slog.Logger, query domain.TrackQuery) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxFetchTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	if uc.NewID != nil {
		id = uc.NewID()
	}
	fileName := id + ".opus"

	stem, err := uc.Artifacts.TempBase(id)
	if err != nil {
		return "", fmt.Errorf("derive output stem: %w", err)
	}

	log.Info("fetch started",
		slog.String("title", query.Title),
		slog.String("artist", query.Artist),
		slog.String("fileName", fileName),
	)

	reported, err := uc.Extractor.Fetch(ctx, query.Title, query.Artist, stem)
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}

	finalPath, err := uc.Artifacts.Rename(reported, fileName)
	if err != nil {
		return "", fmt.Errorf("move artifact: %w", err)
	}

	info, err := uc.Prober.Probe(ctx, finalPath)
	if err != nil {
		uc.discard(fileName, log)
		return "", fmt.Errorf("probe: %w", err)
	}

	tags := info.Tags()
	if strings.TrimSpace(tags.Title) == "" {
		tags.Title = query.Title
	}
	if strings.TrimSpace(tags.Artist) == "" {
		tags.Artist = query.Artist
	}

	if err := uc.Repo.MarkCached(ctx, query.Query, fileName, tags, info.Duration); err != nil {
		uc.discard(fileName, log)
		return "", wrapStore(err)
	}
	return fileName, nil
}

// discard removes an artifact whose row never reached cached, so a failed
// fetch leaves nothing orphaned on disk.
func (uc FetchTrack) discard(fileName string, log *slog.Logger) {
	if err := uc.Artifacts.Remove(fileName); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn("discard artifact failed",
			slog.String("fileName", fileName),
			slog.String("error", err.Error()),
		)
	}
}

// markError writes the failure on a fresh context: the fetch context may
// already be expired, and the error status must land regardless.
func (uc FetchTrack) markError(query string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	if err := uc.Repo.MarkError(ctx, query); err != nil {
		log.Error("mark error failed", slog.String("error", err.Error()))
	}
}

func (uc FetchTrack) logger() *slog.Logger {
	if uc.Logger != nil {
		return uc.Logger
	}
	return slog.Default()
}
