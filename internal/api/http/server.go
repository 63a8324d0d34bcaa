package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"trackcache/internal/domain"
	"trackcache/internal/storage/artifacts"
	"trackcache/internal/usecase"
)

type NowPlayingUseCase interface {
	Execute(ctx context.Context) (usecase.NowPlayingResult, error)
}

type ListTracksUseCase interface {
	Execute(ctx context.Context) ([]domain.TrackRecord, error)
}

type PlayTrackUseCase interface {
	Execute(ctx context.Context, query string) (string, error)
}

type TouchTrackUseCase interface {
	Execute(ctx context.Context, fileName string) error
}

type Server struct {
	nowPlaying     NowPlayingUseCase
	listTracks     ListTracksUseCase
	playTrack      PlayTrackUseCase
	touchTrack     TouchTrackUseCase
	artifacts      *artifacts.Dir
	apiKey         string
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithListTracks(uc ListTracksUseCase) ServerOption {
	return func(s *Server) {
		s.listTracks = uc
	}
}

func WithPlayTrack(uc PlayTrackUseCase) ServerOption {
	return func(s *Server) {
		s.playTrack = uc
	}
}

func WithTouchTrack(uc TouchTrackUseCase) ServerOption {
	return func(s *Server) {
		s.touchTrack = uc
	}
}

func WithArtifacts(dir *artifacts.Dir) ServerOption {
	return func(s *Server) {
		s.artifacts = dir
	}
}

// WithAPIKey sets the shared key required on every /api/ route.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func NewServer(nowPlaying NowPlayingUseCase, opts ...ServerOption) *Server {
	s := &Server{
		nowPlaying: nowPlaying,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/now-playing", s.handleNowPlaying)
	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/api/play", s.handlePlay)
	mux.HandleFunc("/api/stream/", s.handleStream)
	mux.HandleFunc("/api/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, authMiddleware(s.apiKey, mux)), "trackcache",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, requestIDMiddleware(rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced)))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close shuts down the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

type trackCachedEvent struct {
	SearchQuery string `json:"searchQuery"`
	FileName    string `json:"fileName"`
}

type trackErrorEvent struct {
	SearchQuery string `json:"searchQuery"`
}

type cacheEvictedEvent struct {
	Files      int   `json:"files"`
	FreedBytes int64 `json:"freedBytes"`
}

// TrackCached implements ports.Events: cache completions fan out to all
// WebSocket subscribers.
func (s *Server) TrackCached(query, fileName string) {
	s.wsHub.Broadcast("track_cached", trackCachedEvent{SearchQuery: query, FileName: fileName})
}

// TrackError implements ports.Events.
func (s *Server) TrackError(query string) {
	s.wsHub.Broadcast("track_error", trackErrorEvent{SearchQuery: query})
}

// CacheEvicted implements ports.Events.
func (s *Server) CacheEvicted(files int, freedBytes int64) {
	s.wsHub.Broadcast("cache_evicted", cacheEvictedEvent{Files: files, FreedBytes: freedBytes})
}

// streamPath returns the artifact name addressed by a stream URL.
func streamPath(path string) string {
	return strings.TrimPrefix(path, "/api/stream/")
}
