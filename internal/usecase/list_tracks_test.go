package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"trackcache/internal/domain"
)

func TestListTracksNewestFirst(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeTrackRepo()
	repo.put(domain.TrackRecord{SearchQuery: "q-old", Status: domain.TrackCached, FileName: "old.opus", CachedAt: base})
	repo.put(domain.TrackRecord{SearchQuery: "q-new", Status: domain.TrackCached, FileName: "new.opus", CachedAt: base.Add(time.Hour)})
	repo.put(domain.TrackRecord{SearchQuery: "q-pending", Status: domain.TrackCaching, CachedAt: base.Add(2 * time.Hour)})
	uc := ListTracks{Repo: repo}

	got, err := uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 cached tracks, got %d", len(got))
	}
	if got[0].FileName != "new.opus" || got[1].FileName != "old.opus" {
		t.Fatalf("order = %q, %q", got[0].FileName, got[1].FileName)
	}
}

func TestListTracksEmpty(t *testing.T) {
	uc := ListTracks{Repo: newFakeTrackRepo()}

	got, err := uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %d", len(got))
	}
}

func TestListTracksStoreError(t *testing.T) {
	repo := newFakeTrackRepo()
	repo.listErr = errors.New("connection reset")
	uc := ListTracks{Repo: repo}

	_, err := uc.Execute(context.Background())
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
}
