package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immersion/internal/broadcast"
	"immersion/internal/broadcast/ratelimit"
	"immersion/internal/broadcast/retry"
)

func newFetcher(t *testing.T, handler http.HandlerFunc) *ClientCredentials {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientCredentials(
		Config{AuthBaseURL: srv.URL + "/", ClientID: "immersion", ClientSecret: "s3cret"},
		broadcast.NewClient("france-travail", time.Second),
		ratelimit.New("france-travail.common", 0, 0),
		retry.Strategy{Base: time.Millisecond, Deadline: time.Second},
	)
}

func TestClientCredentials_Fetch(t *testing.T) {
	fetcher := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "immersion", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "api_immersion-prov2", r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "abc",
			"token_type":   "Bearer",
			"expires_in":   1499,
		})
	})

	token, err := fetcher.Fetch(context.Background(), "api_immersion-prov2")
	require.NoError(t, err)
	assert.Equal(t, "abc", token.AccessToken)
	assert.Equal(t, 1499*time.Second, token.ExpiresIn)
}

func TestClientCredentials_RetriesOutages(t *testing.T) {
	var calls atomic.Int32
	fetcher := newFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "abc", "expires_in": "60"})
	})

	token, err := fetcher.Fetch(context.Background(), "scope")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, token.ExpiresIn)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientCredentials_RejectedCredentials(t *testing.T) {
	var calls atomic.Int32
	fetcher := newFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_client"})
	})

	_, err := fetcher.Fetch(context.Background(), "scope")
	require.Error(t, err)
	assert.Equal(t, broadcast.ErrorRejected, broadcast.CategoryOf(err))
	assert.Contains(t, err.Error(), "invalid_client")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientCredentials_MissingAccessToken(t *testing.T) {
	fetcher := newFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"expires_in": 60})
	})

	_, err := fetcher.Fetch(context.Background(), "scope")
	assert.Equal(t, broadcast.ErrorAuthentication, broadcast.CategoryOf(err))
}
