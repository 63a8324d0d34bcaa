package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	apihttp "trackcache/internal/api/http"
	"trackcache/internal/app"
	"trackcache/internal/metrics"
	"trackcache/internal/repository/postgres"
	"trackcache/internal/services/extractor"
	"trackcache/internal/services/probe"
	"trackcache/internal/services/spotify"
	"trackcache/internal/storage/artifacts"
	"trackcache/internal/telemetry"
	"trackcache/internal/usecase"
)

const sweepInterval = 15 * time.Minute

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("configuration invalid", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "trackcache")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "trackcache"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("musicDirectory", cfg.MusicDirectory),
		slog.Int64("cacheLimitBytes", cfg.CacheLimitBytes),
		slog.Int64("cacheTargetBytes", cfg.CacheTargetBytes),
		slog.Bool("redisTokenCache", cfg.RedisAddr != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("postgres connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo := postgres.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if recovered, err := repo.RecoverStaleCaching(ctx); err != nil {
		logger.Warn("stale caching recovery failed", slog.String("error", err.Error()))
	} else if recovered > 0 {
		logger.Info("recovered stale caching rows", slog.Int64("count", recovered))
	}

	dir, err := artifacts.New(cfg.MusicDirectory)
	if err != nil {
		logger.Error("artifact directory init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The token cache degrades to in-process; not worth refusing to boot.
			logger.Warn("redis ping failed, using in-process token cache",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
			rdb = nil
		}
	}

	spotifyClient := spotify.NewClient(spotify.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		RefreshToken: cfg.SpotifyRefreshToken,
		Redis:        rdb,
	})

	evictUC := &usecase.EvictCache{
		Repo:        repo,
		Artifacts:   dir,
		LimitBytes:  cfg.CacheLimitBytes,
		TargetBytes: cfg.CacheTargetBytes,
		Logger:      logger,
	}
	fetchUC := &usecase.FetchTrack{
		Repo:      repo,
		Artifacts: dir,
		Extractor: extractor.New(extractor.Config{Binary: cfg.YTDLPPath, CookiesFile: cfg.CookiesFile}),
		Prober:    probe.New(cfg.FFProbePath),
		Evict:     evictUC,
		Logger:    logger,
	}
	dispatcher := &usecase.AsyncDispatcher{Fetch: fetchUC, Logger: logger}
	resolveUC := usecase.ResolveTrack{Repo: repo, Artifacts: dir, Dispatch: dispatcher, Logger: logger}
	nowPlayingUC := usecase.NowPlaying{Source: spotifyClient, Resolver: resolveUC}
	listUC := usecase.ListTracks{Repo: repo}
	playUC := usecase.PlayTrack{Repo: repo, Artifacts: dir}
	touchUC := usecase.TouchTrack{Repo: repo}

	handler := apihttp.NewServer(nowPlayingUC,
		apihttp.WithLogger(logger),
		apihttp.WithListTracks(listUC),
		apihttp.WithPlayTrack(playUC),
		apihttp.WithTouchTrack(touchUC),
		apihttp.WithArtifacts(dir),
		apihttp.WithAPIKey(cfg.APIKey),
		apihttp.WithAllowedOrigins(cfg.AllowedOrigins),
	)

	// The workers publish through the server's WebSocket hub; wire that up
	// before anything can dispatch, which is before the listener starts.
	fetchUC.Events = handler
	evictUC.Events = handler

	// First sweep at boot covers growth that happened while we were down.
	go evictUC.Run(rootCtx, sweepInterval)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // streaming responses have no sane upper bound
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
