package usecase

import (
	"context"

	"trackcache/internal/domain"
)

// NowPlayingSource reads the external account's player state. A nil track
// with a nil error means nothing is playing.
type NowPlayingSource interface {
	NowPlaying(ctx context.Context) (*domain.NowPlayingTrack, error)
}

// TrackResolver is the cache lookup the now-playing flow runs for the
// playing track.
type TrackResolver interface {
	Execute(ctx context.Context, query domain.TrackQuery) (Resolution, error)
}

type NowPlayingResult struct {
	Playing     bool
	Track       domain.NowPlayingTrack
	CacheStatus domain.TrackStatus
}

// NowPlaying reports what the account is listening to and eagerly resolves
// it against the cache, so by the time a caller asks to play the track the
// fetch has usually already started.
type NowPlaying struct {
	Source   NowPlayingSource
	Resolver TrackResolver
}

func (uc NowPlaying) Execute(ctx context.Context) (NowPlayingResult, error) {
	track, err := uc.Source.NowPlaying(ctx)
	if err != nil {
		return NowPlayingResult{}, wrapUpstream(err)
	}
	if track == nil {
		return NowPlayingResult{}, nil
	}

	resolution, err := uc.Resolver.Execute(ctx, domain.NewTrackQuery(track.Title, track.Artist))
	if err != nil {
		return NowPlayingResult{}, err
	}

	return NowPlayingResult{
		Playing:     true,
		Track:       *track,
		CacheStatus: resolution.Status,
	}, nil
}
