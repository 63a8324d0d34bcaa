package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"trackcache/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type nowPlayingResponse struct {
	Status        string  `json:"status"`
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	AlbumImageURL *string `json:"albumImageUrl"`
	IsPlaying     bool    `json:"isPlaying"`
	TimePlayed    int64   `json:"timePlayed"`
	TimeTotal     int64   `json:"timeTotal"`
	Timestamp     float64 `json:"timestamp"`
	ID            string  `json:"id"`
}

type notPlayingResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.nowPlaying == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "now playing use case not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	result, err := s.nowPlaying.Execute(ctx)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	if !result.Playing {
		writeJSON(w, http.StatusOK, notPlayingResponse{Status: "not_playing"})
		return
	}

	resp := nowPlayingResponse{
		Status:     string(result.CacheStatus),
		Title:      result.Track.Title,
		Artist:     result.Track.Artist,
		IsPlaying:  result.Track.IsPlaying,
		TimePlayed: result.Track.ProgressMS,
		TimeTotal:  result.Track.DurationMS,
		Timestamp:  result.Track.Timestamp,
		ID:         result.Track.ID,
	}
	if url := result.Track.AlbumImageURL; url != "" {
		resp.AlbumImageURL = &url
	}
	writeJSON(w, http.StatusOK, resp)
}

type trackSummary struct {
	FileName string  `json:"fileName"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	Duration float64 `json:"duration"`
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.listTracks == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "list tracks use case not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	records, err := s.listTracks.Execute(ctx)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	summaries := make([]trackSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, trackSummary{
			FileName: record.FileName,
			Title:    record.Title,
			Artist:   record.Artist,
			Album:    record.Album,
			Duration: record.Duration,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// playRequest mirrors the player's request body. Unknown fields are
// ignored so older and newer frontends can share the endpoint.
type playRequest struct {
	SongName string `json:"song_name"`
	Artist   string `json:"artist"`
}

type playResponse struct {
	Message   string `json:"message"`
	StreamURL string `json:"stream_url"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.playTrack == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "play track use case not configured")
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return
	}

	var body playRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	songName := strings.TrimSpace(body.SongName)
	artist := strings.TrimSpace(body.Artist)
	if songName == "" || artist == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "song_name and artist are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	fileName, err := s.playTrack.Execute(ctx, domain.CanonicalQuery(artist, songName))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "track not found in cache; it may still be downloading")
			return
		}
		writeUseCaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, playResponse{
		Message:   "Track is ready.",
		StreamURL: "/api/stream/" + fileName,
	})
}
