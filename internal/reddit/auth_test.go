package reddit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwatch/reddwatch/pkg/config"
)

func authConfig(endpoint string) *config.RedditConfig {
	return &config.RedditConfig{
		AuthEndpoint: endpoint,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Username:     "watcher",
		Password:     "hunter2",
		UserAgent:    "reddwatch-test/1.0",
		ReadTimeout:  5 * time.Second,
	}
}

func TestTokenSourceExchangesCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/access_token", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "reddwatch-test/1.0", r.Header.Get("User-Agent"))

		id, secret, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", id)
		assert.Equal(t, "client-secret", secret)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.FormValue("grant_type"))
		assert.Equal(t, "watcher", r.FormValue("username"))
		assert.Equal(t, "hunter2", r.FormValue("password"))

		fmt.Fprint(w, `{"access_token": "tok-1", "token_type": "bearer", "expires_in": 3600}`)
	}))
	defer server.Close()

	source, err := NewTokenSource(authConfig(server.URL))
	require.NoError(t, err)
	assert.Equal(t, "tok-1", source.Token())
	assert.False(t, source.expired())
}

func TestTokenSourceRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewTokenSource(authConfig(server.URL))
	require.Error(t, err)
}

func TestTokenSourceRejectsEmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token_type": "bearer"}`)
	}))
	defer server.Close()

	_, err := NewTokenSource(authConfig(server.URL))
	require.Error(t, err)
}
