package domain

// ArtifactInfo is what the prober reads from a finished artifact: the
// container tags plus the duration in seconds. Fields the container does not
// carry stay empty; the fetch pipeline decides the fallbacks.
type ArtifactInfo struct {
	Title    string
	Artist   string
	Album    string
	Duration float64
}

// Tags returns the tag fields of the probe result as TrackTags.
func (i ArtifactInfo) Tags() TrackTags {
	return TrackTags{Title: i.Title, Artist: i.Artist, Album: i.Album}
}

// NowPlayingTrack is a snapshot of the upstream player state: what is
// playing, how far in, and the artwork to show. Artist names arrive joined
// by ", " the way the provider lists them.
type NowPlayingTrack struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	AlbumImageURL string  `json:"albumImageUrl,omitempty"`
	IsPlaying     bool    `json:"isPlaying"`
	ProgressMS    int64   `json:"progressMs"`
	DurationMS    int64   `json:"durationMs"`
	Timestamp     float64 `json:"timestamp"`
}
