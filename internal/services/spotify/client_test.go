package spotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type providerStub struct {
	tokenHits      atomic.Int64
	nowPlayingHits atomic.Int64

	tokenStatus      int
	tokenBody        string
	nowPlayingStatus int
	nowPlayingBody   string

	lastAuthHeader  string
	lastGrantType   string
	lastRefreshTok  string
	lastBearerToken string
}

func newProviderStub() *providerStub {
	return &providerStub{
		tokenStatus:      http.StatusOK,
		tokenBody:        `{"access_token":"tok-1","expires_in":3600}`,
		nowPlayingStatus: http.StatusOK,
		nowPlayingBody:   `{}`,
	}
}

func (p *providerStub) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenHits.Add(1)
		p.lastAuthHeader = r.Header.Get("Authorization")
		_ = r.ParseForm()
		p.lastGrantType = r.PostForm.Get("grant_type")
		p.lastRefreshTok = r.PostForm.Get("refresh_token")
		w.WriteHeader(p.tokenStatus)
		_, _ = w.Write([]byte(p.tokenBody))
	})
	mux.HandleFunc("/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		p.nowPlayingHits.Add(1)
		p.lastBearerToken = r.Header.Get("Authorization")
		w.WriteHeader(p.nowPlayingStatus)
		_, _ = w.Write([]byte(p.nowPlayingBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, rdb *redis.Client) *Client {
	return NewClient(Config{
		ClientID:      "cid",
		ClientSecret:  "csecret",
		RefreshToken:  "rtok",
		TokenURL:      srv.URL + "/api/token",
		NowPlayingURL: srv.URL + "/currently-playing",
		Client:        srv.Client(),
		Redis:         rdb,
	})
}

func TestAccessTokenRefreshAndMemoryCache(t *testing.T) {
	stub := newProviderStub()
	srv := stub.start(t)
	client := newTestClient(srv, nil)

	token, err := client.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("token = %q", token)
	}
	if stub.lastGrantType != "refresh_token" || stub.lastRefreshTok != "rtok" {
		t.Errorf("form = grant_type=%q refresh_token=%q", stub.lastGrantType, stub.lastRefreshTok)
	}
	// cid:csecret base64-encoded.
	if stub.lastAuthHeader != "Basic Y2lkOmNzZWNyZXQ=" {
		t.Errorf("auth header = %q", stub.lastAuthHeader)
	}

	if _, err := client.AccessToken(context.Background()); err != nil {
		t.Fatalf("second AccessToken: %v", err)
	}
	if hits := stub.tokenHits.Load(); hits != 1 {
		t.Errorf("token endpoint hit %d times, want 1", hits)
	}
}

func TestAccessTokenSharedViaRedis(t *testing.T) {
	stub := newProviderStub()
	srv := stub.start(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	first := newTestClient(srv, rdb)
	if _, err := first.AccessToken(context.Background()); err != nil {
		t.Fatalf("first AccessToken: %v", err)
	}

	// A fresh client instance (fresh process, same Redis) reuses the token.
	second := newTestClient(srv, rdb)
	token, err := second.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("second AccessToken: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("token = %q", token)
	}
	if hits := stub.tokenHits.Load(); hits != 1 {
		t.Errorf("token endpoint hit %d times, want 1", hits)
	}
}

func TestAccessTokenUpstreamError(t *testing.T) {
	stub := newProviderStub()
	stub.tokenStatus = http.StatusBadRequest
	stub.tokenBody = `{"error":"invalid_grant"}`
	srv := stub.start(t)
	client := newTestClient(srv, nil)

	if _, err := client.AccessToken(context.Background()); err == nil {
		t.Fatal("expected error for token HTTP 400")
	}
}

func TestNowPlayingMapping(t *testing.T) {
	stub := newProviderStub()
	stub.nowPlayingBody = `{
		"is_playing": true,
		"progress_ms": 61500,
		"item": {
			"id": "track-42",
			"name": "Comfortably Numb",
			"duration_ms": 382000,
			"artists": [{"name": "Pink Floyd"}, {"name": "David Gilmour"}],
			"album": {"images": [{"url": "https://img/a.jpg"}, {"url": "https://img/b.jpg"}]}
		}
	}`
	srv := stub.start(t)
	client := newTestClient(srv, nil)

	track, err := client.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if track == nil {
		t.Fatal("track = nil, want value")
	}
	if track.ID != "track-42" || track.Title != "Comfortably Numb" {
		t.Errorf("identity fields: %+v", track)
	}
	if track.Artist != "Pink Floyd, David Gilmour" {
		t.Errorf("Artist = %q", track.Artist)
	}
	if track.AlbumImageURL != "https://img/a.jpg" {
		t.Errorf("AlbumImageURL = %q", track.AlbumImageURL)
	}
	if !track.IsPlaying || track.ProgressMS != 61500 || track.DurationMS != 382000 {
		t.Errorf("playback fields: %+v", track)
	}
	if track.Timestamp <= 0 {
		t.Errorf("Timestamp = %v", track.Timestamp)
	}
	if stub.lastBearerToken != "Bearer tok-1" {
		t.Errorf("bearer = %q", stub.lastBearerToken)
	}
}

func TestNowPlayingNotPlaying(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"204 no content", http.StatusNoContent, ""},
		{"empty body", http.StatusOK, ""},
		{"null item", http.StatusOK, `{"is_playing": false, "item": null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newProviderStub()
			stub.nowPlayingStatus = tt.status
			stub.nowPlayingBody = tt.body
			srv := stub.start(t)
			client := newTestClient(srv, nil)

			track, err := client.NowPlaying(context.Background())
			if err != nil {
				t.Fatalf("NowPlaying: %v", err)
			}
			if track != nil {
				t.Errorf("track = %+v, want nil", track)
			}
		})
	}
}

func TestNowPlayingUpstreamError(t *testing.T) {
	stub := newProviderStub()
	stub.nowPlayingStatus = http.StatusBadGateway
	stub.nowPlayingBody = "upstream sad"
	srv := stub.start(t)
	client := newTestClient(srv, nil)

	if _, err := client.NowPlaying(context.Background()); err == nil {
		t.Fatal("expected error for now-playing HTTP 502")
	}
}

func TestNowPlayingMalformedPayload(t *testing.T) {
	stub := newProviderStub()
	stub.nowPlayingBody = `{"item": "not-an-object"`
	srv := stub.start(t)
	client := newTestClient(srv, nil)

	if _, err := client.NowPlaying(context.Background()); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
