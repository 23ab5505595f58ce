package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCreds(t *testing.T, dir string, creds oauthCreds) string {
	t.Helper()
	path := filepath.Join(dir, "oauth_creds.json")
	data, err := json.Marshal(creds)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestOAuthSession_LoadsPersistedCredentials(t *testing.T) {
	path := writeCreds(t, t.TempDir(), oauthCreds{
		AccessToken:  "tok-initial",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	})

	s := NewOAuthSession("qwen", path, "http://unused")
	tok, ok := s.Credential()
	require.True(t, ok)
	assert.Equal(t, "tok-initial", tok)
	assert.True(t, s.Valid())
}

func TestOAuthSession_MissingFileHasNoCredential(t *testing.T) {
	s := NewOAuthSession("qwen", filepath.Join(t.TempDir(), "absent.json"), "http://unused")
	_, ok := s.Credential()
	assert.False(t, ok)
	assert.False(t, s.Valid())
}

func TestOAuthSession_ExpiredTokenInvalid(t *testing.T) {
	path := writeCreds(t, t.TempDir(), oauthCreds{
		AccessToken:  "tok-old",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
	})
	s := NewOAuthSession("qwen", path, "http://unused")
	assert.False(t, s.Valid())
}

func TestOAuthSession_RefreshExchangesAndPersists(t *testing.T) {
	var gotGrant, gotRefresh string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotGrant = req["grant_type"]
		gotRefresh = req["refresh_token"]
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tok-new",
			"refresh_token": "refresh-2",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	path := writeCreds(t, t.TempDir(), oauthCreds{
		AccessToken:  "tok-old",
		RefreshToken: "refresh-1",
	})
	s := NewOAuthSession("qwen", path, srv.URL)

	require.True(t, s.Refresh(context.Background(), "tok-old"))
	assert.Equal(t, "refresh_token", gotGrant)
	assert.Equal(t, "refresh-1", gotRefresh)

	tok, ok := s.Credential()
	require.True(t, ok)
	assert.Equal(t, "tok-new", tok)
	assert.True(t, s.Valid())

	// The new triple survives a restart.
	reloaded := NewOAuthSession("qwen", path, srv.URL)
	tok, ok = reloaded.Credential()
	require.True(t, ok)
	assert.Equal(t, "tok-new", tok)
}

func TestOAuthSession_StaleTokenShortCircuitsBurst(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-new",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	path := writeCreds(t, t.TempDir(), oauthCreds{
		AccessToken:  "tok-old",
		RefreshToken: "refresh-1",
	})
	s := NewOAuthSession("qwen", path, srv.URL)

	// Two callers both observed tok-old failing; only the first refreshes.
	require.True(t, s.Refresh(context.Background(), "tok-old"))
	require.True(t, s.Refresh(context.Background(), "tok-old"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOAuthSession_NoRefreshTokenFails(t *testing.T) {
	path := writeCreds(t, t.TempDir(), oauthCreds{AccessToken: "tok-old"})
	s := NewOAuthSession("qwen", path, "http://unused")
	assert.False(t, s.Refresh(context.Background(), "tok-old"))
}

func TestOAuthSession_RejectedRefreshKeepsOldToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	path := writeCreds(t, t.TempDir(), oauthCreds{
		AccessToken:  "tok-old",
		RefreshToken: "refresh-1",
	})
	s := NewOAuthSession("qwen", path, srv.URL)

	assert.False(t, s.Refresh(context.Background(), "tok-old"))
	tok, ok := s.Credential()
	require.True(t, ok)
	assert.Equal(t, "tok-old", tok)
}
