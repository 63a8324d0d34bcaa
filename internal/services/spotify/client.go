// Package spotify talks to the external music provider: it exchanges the
// long-lived refresh token for short-lived access tokens and reads the
// account's currently-playing state.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trackcache/internal/domain"
)

const (
	defaultTokenURL      = "https://accounts.spotify.com/api/token"
	defaultNowPlayingURL = "https://api.spotify.com/v1/me/player/currently-playing"

	redisTokenKey = "trackcache:spotify:token"

	// Refresh slightly before the provider-reported expiry.
	tokenExpirySlack = 30 * time.Second
)

type Client struct {
	clientID      string
	clientSecret  string
	refreshToken  string
	tokenURL      string
	nowPlayingURL string
	http          *http.Client
	redis         *redis.Client

	group singleflight.Group

	mu         sync.Mutex
	token      string
	tokenUntil time.Time
}

type Config struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	TokenURL      string
	NowPlayingURL string
	Client        *http.Client
	Redis         *redis.Client
}

func NewClient(cfg Config) *Client {
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	nowPlayingURL := strings.TrimSpace(cfg.NowPlayingURL)
	if nowPlayingURL == "" {
		nowPlayingURL = defaultNowPlayingURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		clientID:      strings.TrimSpace(cfg.ClientID),
		clientSecret:  cfg.ClientSecret,
		refreshToken:  cfg.RefreshToken,
		tokenURL:      tokenURL,
		nowPlayingURL: nowPlayingURL,
		http:          httpClient,
		redis:         cfg.Redis,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AccessToken returns a valid access token, refreshing through the provider
// when the cached one has expired. Concurrent refreshes collapse to one
// upstream call.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if token, ok := c.cachedToken(ctx); ok {
		return token, nil
	}

	value, err, _ := c.group.Do("token", func() (interface{}, error) {
		if token, ok := c.cachedToken(ctx); ok {
			return token, nil
		}
		return c.refreshAccessToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (c *Client) cachedToken(ctx context.Context) (string, bool) {
	if c.redis != nil {
		token, err := c.redis.Get(ctx, redisTokenKey).Result()
		if err == nil && token != "" {
			return token, true
		}
		// redis.Nil means a plain miss; other errors degrade to the
		// in-process cache.
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenUntil) {
		return c.token, true
	}
	return "", false
}

func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("spotify token HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("spotify token response missing access_token")
	}

	ttl := time.Duration(payload.ExpiresIn)*time.Second - tokenExpirySlack
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.storeToken(ctx, payload.AccessToken, ttl)
	return payload.AccessToken, nil
}

func (c *Client) storeToken(ctx context.Context, token string, ttl time.Duration) {
	if c.redis != nil {
		_ = c.redis.Set(ctx, redisTokenKey, token, ttl).Err()
	}
	c.mu.Lock()
	c.token = token
	c.tokenUntil = time.Now().Add(ttl)
	c.mu.Unlock()
}

type nowPlayingPayload struct {
	IsPlaying  bool  `json:"is_playing"`
	ProgressMS int64 `json:"progress_ms"`
	Item       *struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		DurationMS int64  `json:"duration_ms"`
		Artists    []struct {
			Name string `json:"name"`
		} `json:"artists"`
		Album struct {
			Images []struct {
				URL string `json:"url"`
			} `json:"images"`
		} `json:"album"`
	} `json:"item"`
}

// NowPlaying reads the account's player state. A nil track with nil error
// means nothing is playing (204, empty body, or a null item).
func (c *Client) NowPlaying(ctx context.Context) (*domain.NowPlayingTrack, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nowPlayingURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	timestamp := float64(time.Now().UnixMilli()) / 1000

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("spotify now-playing HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}

	var payload nowPlayingPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Item == nil {
		return nil, nil
	}

	names := make([]string, 0, len(payload.Item.Artists))
	for _, artist := range payload.Item.Artists {
		names = append(names, artist.Name)
	}
	imageURL := ""
	if len(payload.Item.Album.Images) > 0 {
		imageURL = payload.Item.Album.Images[0].URL
	}

	return &domain.NowPlayingTrack{
		ID:            payload.Item.ID,
		Title:         payload.Item.Name,
		Artist:        strings.Join(names, ", "),
		AlbumImageURL: imageURL,
		IsPlaying:     payload.IsPlaying,
		ProgressMS:    payload.ProgressMS,
		DurationMS:    payload.Item.DurationMS,
		Timestamp:     timestamp,
	}, nil
}
