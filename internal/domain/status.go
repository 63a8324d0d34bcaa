package domain

type TrackStatus string

const (
	TrackCaching TrackStatus = "caching"
	TrackCached  TrackStatus = "cached"
	TrackError   TrackStatus = "error"
)
