package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr            string
	APIKey              string
	DatabaseDSN         string
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRefreshToken string
	MusicDirectory      string
	CacheLimitBytes     int64
	CacheTargetBytes    int64
	AllowedOrigins      []string
	RedisAddr           string // optional; empty disables the shared token cache
	YTDLPPath           string
	FFProbePath         string
	CookiesFile         string // optional
	LogLevel            string
	LogFormat           string
}

const (
	defaultCacheLimitBytes  = 3 << 30 // high-water mark that triggers eviction
	defaultCacheTargetBytes = 5 << 29 // low-water mark eviction frees down to
)

// LoadConfig reads the process environment. Credentials and the database DSN
// have no safe fallback, so a missing or malformed value is an error rather
// than a default; the caller exits.
func LoadConfig() (Config, error) {
	cfg := Config{
		APIKey:              strings.TrimSpace(os.Getenv("API_KEY")),
		DatabaseDSN:         strings.TrimSpace(os.Getenv("NEON_CONNECTION_STRING")),
		SpotifyClientID:     strings.TrimSpace(os.Getenv("SPOTIFY_CLIENT_ID")),
		SpotifyClientSecret: strings.TrimSpace(os.Getenv("SPOTIFY_CLIENT_SECRET")),
		SpotifyRefreshToken: strings.TrimSpace(os.Getenv("SPOTIFY_REFRESH_TOKEN")),
		MusicDirectory:      getEnv("MUSIC_DIRECTORY", "./music"),
		RedisAddr:           strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		YTDLPPath:           getEnv("YTDLP_PATH", "yt-dlp"),
		FFProbePath:         getEnv("FFPROBE_PATH", "ffprobe"),
		CookiesFile:         strings.TrimSpace(os.Getenv("COOKIES_FILE")),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	var missing []string
	for _, required := range []struct {
		key   string
		value string
	}{
		{"API_KEY", cfg.APIKey},
		{"NEON_CONNECTION_STRING", cfg.DatabaseDSN},
		{"SPOTIFY_CLIENT_ID", cfg.SpotifyClientID},
		{"SPOTIFY_CLIENT_SECRET", cfg.SpotifyClientSecret},
		{"SPOTIFY_REFRESH_TOKEN", cfg.SpotifyRefreshToken},
	} {
		if required.value == "" {
			missing = append(missing, required.key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	port, err := parsePort(getEnv("PORT", "4000"))
	if err != nil {
		return Config{}, err
	}
	cfg.HTTPAddr = ":" + port

	cfg.CacheLimitBytes, err = getEnvBytes("CACHE_LIMIT_BYTES", defaultCacheLimitBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.CacheTargetBytes, err = getEnvBytes("CACHE_TARGET_BYTES", defaultCacheTargetBytes)
	if err != nil {
		return Config{}, err
	}
	if cfg.CacheTargetBytes >= cfg.CacheLimitBytes {
		return Config{}, fmt.Errorf("CACHE_TARGET_BYTES (%d) must be below CACHE_LIMIT_BYTES (%d)",
			cfg.CacheTargetBytes, cfg.CacheLimitBytes)
	}

	cfg.AllowedOrigins = parseOrigins(getEnv("ALLOWED_ORIGINS", "*"))

	return cfg, nil
}

func parsePort(raw string) (string, error) {
	port := strings.TrimSpace(raw)
	if port == "" {
		return "", errors.New("PORT must not be blank")
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("PORT must contain digits only, got %q", raw)
		}
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("PORT must be between 1 and 65535, got %q", raw)
	}
	return strconv.Itoa(n), nil
}

func parseOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvBytes(key string, fallback int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%s must be a positive byte count, got %q", key, value)
	}
	return parsed, nil
}
