package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/omnirelay/llm-gateway/internal/utils"
)

// expirySkew treats a token as expired slightly before its deadline so a
// request issued right at the boundary does not race the upstream clock.
const expirySkew = 30 * time.Second

// oauthCreds is the persisted credential triple. The file is the only
// durable state the gateway owns: read at startup, rewritten after every
// successful refresh.
type oauthCreds struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// OAuthSession manages a refreshable access/refresh token pair for one
// provider. The in-memory tokens and the on-disk copy are mutated under a
// single in-process lock; sharing one session between OS processes is a
// known limitation (single-writer assumption), unlike the key rotator.
type OAuthSession struct {
	provider   string
	credsPath  string
	refreshURL string
	client     *http.Client

	mu    sync.Mutex
	creds oauthCreds
}

// NewOAuthSession loads credentials from credsPath (missing or unreadable
// files leave the session empty; that only becomes an error when a request
// for the provider arrives).
func NewOAuthSession(provider, credsPath, refreshURL string) *OAuthSession {
	s := &OAuthSession{
		provider:   provider,
		credsPath:  credsPath,
		refreshURL: refreshURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	s.load()
	return s
}

func (s *OAuthSession) load() {
	data, err := os.ReadFile(s.credsPath)
	if err != nil {
		log.Warn().Str("provider", s.provider).Str("path", s.credsPath).Msg("oauth credentials file not loaded")
		return
	}
	if err := json.Unmarshal(data, &s.creds); err != nil {
		log.Error().Err(err).Str("provider", s.provider).Msg("oauth credentials file corrupt")
		return
	}
	log.Info().Str("provider", s.provider).Str("path", s.credsPath).Msg("oauth credentials loaded")
}

func (s *OAuthSession) save() {
	data, err := json.MarshalIndent(s.creds, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("provider", s.provider).Msg("oauth credentials marshal failed")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.credsPath), 0o755); err != nil {
		log.Error().Err(err).Str("provider", s.provider).Msg("oauth credentials dir create failed")
		return
	}
	if err := os.WriteFile(s.credsPath, data, 0o600); err != nil {
		log.Error().Err(err).Str("provider", s.provider).Msg("oauth credentials write failed")
	}
}

// Provider implements Store.
func (s *OAuthSession) Provider() string { return s.provider }

// Credential implements Store: it returns the cached access token without
// network I/O.
func (s *OAuthSession) Credential() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds.AccessToken, s.creds.AccessToken != ""
}

// Valid reports whether the cached token is usable: present and not within
// the expiry skew. A token without an expiry is assumed valid.
func (s *OAuthSession) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.AccessToken == "" {
		return false
	}
	if s.creds.ExpiresAt == 0 {
		return true
	}
	return time.Now().Before(time.Unix(s.creds.ExpiresAt, 0).Add(-expirySkew))
}

// Recover implements Store: a 401 triggers one token refresh.
func (s *OAuthSession) Recover(ctx context.Context, stale string) bool {
	return s.Refresh(ctx, stale)
}

// Refresh exchanges the refresh token for a new access token and persists
// the result. stale is the access token the caller observed failing: when a
// concurrent caller already replaced it, Refresh reports success without a
// second network round-trip, so a burst of 401s produces one refresh.
// Failure leaves the previous token in place and returns false.
func (s *OAuthSession) Refresh(ctx context.Context, stale string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stale != "" && s.creds.AccessToken != stale {
		return true
	}
	if s.creds.RefreshToken == "" {
		log.Error().Str("provider", s.provider).Msg("no refresh token, cannot refresh")
		return false
	}

	body, _ := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": s.creds.RefreshToken,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("provider", s.provider).Msg("refresh request build failed")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("provider", s.provider).Msg("token refresh network error")
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Error().
			Str("provider", s.provider).
			Int("status", resp.StatusCode).
			Str("body", utils.TruncateForLog(string(respBody), 256)).
			Msg("token refresh rejected")
		return false
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Error().Err(err).Str("provider", s.provider).Msg("token refresh response malformed")
		return false
	}

	if out.AccessToken != "" {
		s.creds.AccessToken = out.AccessToken
	}
	if out.RefreshToken != "" {
		s.creds.RefreshToken = out.RefreshToken
	}
	switch {
	case out.ExpiresAt != 0:
		s.creds.ExpiresAt = out.ExpiresAt
	case out.ExpiresIn != 0:
		s.creds.ExpiresAt = time.Now().Unix() + out.ExpiresIn
	}

	s.save()
	log.Info().Str("provider", s.provider).Str("token", utils.MaskKey(s.creds.AccessToken)).Msg("access token refreshed")
	return true
}

var _ Store = (*OAuthSession)(nil)
