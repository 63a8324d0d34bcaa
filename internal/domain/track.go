package domain

import (
	"errors"
	"strings"
	"time"
)

type TrackRecord struct {
	SearchQuery    string      `json:"searchQuery"`
	Status         TrackStatus `json:"status"`
	FileName       string      `json:"fileName,omitempty"`
	Title          string      `json:"title,omitempty"`
	Artist         string      `json:"artist,omitempty"`
	Album          string      `json:"album,omitempty"`
	Duration       float64     `json:"duration,omitempty"`
	CachedAt       time.Time   `json:"cachedAt"`
	LastAccessedAt time.Time   `json:"lastAccessedAt"`
}

// TrackTags holds container-level tag fields read from an artifact.
type TrackTags struct {
	Title  string
	Artist string
	Album  string
}

// TrackQuery identifies one cacheable track: the canonical fingerprint plus
// the raw title/artist the Fetcher falls back to when the artifact carries
// no tags.
type TrackQuery struct {
	Query  string
	Title  string
	Artist string
}

// NewTrackQuery builds a TrackQuery from raw user-facing names.
func NewTrackQuery(title, artist string) TrackQuery {
	return TrackQuery{
		Query:  CanonicalQuery(artist, title),
		Title:  title,
		Artist: artist,
	}
}

// CanonicalQuery is the cache fingerprint for a (artist, title) pair. The
// same formula serves now-playing triggers and play lookups, so distinct
// upstream IDs for the same song collapse to one cache entry.
func CanonicalQuery(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + " - " + strings.ToLower(strings.TrimSpace(title))
}

// Validate checks domain invariants for TrackRecord.
func (r TrackRecord) Validate() error {
	if r.SearchQuery == "" {
		return errors.New("search query is required")
	}
	switch r.Status {
	case TrackCaching, TrackCached, TrackError:
		// valid
	case "":
		return errors.New("status is required")
	default:
		return errors.New("invalid status: " + string(r.Status))
	}
	if r.Status == TrackCached && r.FileName == "" {
		return errors.New("cached track requires a file name")
	}
	if r.FileName != "" && strings.ContainsAny(r.FileName, `/\`) {
		return errors.New("file name must be a pure basename")
	}
	if r.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	return nil
}
