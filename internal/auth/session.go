// Package auth provides the client-side session: requester identity and
// the bearer auth headers used by alert submission and the retry drain.
package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"quicksecure/internal/model"
)

// Session supplies the requester identity and an auth-header capability.
type Session interface {
	Identity() model.Identity
	AuthHeaders(ctx context.Context) (http.Header, error)
}

var ErrNoToken = errors.New("no authentication token available")

// TokenSession holds a bearer token, optionally rotating it through the
// backend refresh endpoint when it nears expiry.
type TokenSession struct {
	RefreshURL string
	HTTP       *http.Client

	mu           sync.Mutex
	token        string
	refreshToken string
	expiresAt    time.Time
	identity     model.Identity
}

// NewTokenSession builds a session from an existing token. Identity is
// taken from the token's claims where present.
func NewTokenSession(token, refreshToken string) *TokenSession {
	s := &TokenSession{
		HTTP:         &http.Client{Timeout: 10 * time.Second},
		token:        token,
		refreshToken: refreshToken,
	}
	if id, exp, ok := claimsFromJWT(token); ok {
		s.identity = id
		s.expiresAt = exp
	}
	return s
}

// NewSessionFromEnv reads QS_TOKEN / QS_REFRESH_TOKEN / QS_REFRESH_URL,
// with QS_USER_ID / QS_ROLE / QS_DISPLAY_NAME as identity fallbacks for
// tokens without claims.
func NewSessionFromEnv() *TokenSession {
	s := NewTokenSession(os.Getenv("QS_TOKEN"), os.Getenv("QS_REFRESH_TOKEN"))
	s.RefreshURL = os.Getenv("QS_REFRESH_URL")
	if s.identity.UserID == "" {
		s.identity = model.Identity{
			UserID:      os.Getenv("QS_USER_ID"),
			Role:        os.Getenv("QS_ROLE"),
			DisplayName: os.Getenv("QS_DISPLAY_NAME"),
		}
	}
	return s
}

func (s *TokenSession) Identity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity overrides claim-derived identity (used when the backend
// issues opaque tokens).
func (s *TokenSession) SetIdentity(id model.Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// AuthHeaders returns bearer headers for the current token, refreshing it
// first when it is about to expire and a refresh endpoint is configured.
func (s *TokenSession) AuthHeaders(ctx context.Context) (http.Header, error) {
	s.mu.Lock()
	tok := s.token
	needsRefresh := s.RefreshURL != "" && s.refreshToken != "" &&
		!s.expiresAt.IsZero() && time.Until(s.expiresAt) < 30*time.Second
	s.mu.Unlock()

	if needsRefresh {
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		tok = s.token
		s.mu.Unlock()
	}
	if tok == "" {
		return nil, ErrNoToken
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	h.Set("Accept", "application/json")
	return h, nil
}

type refreshResponse struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *TokenSession) refresh(ctx context.Context) error {
	s.mu.Lock()
	rt := s.refreshToken
	s.mu.Unlock()
	body, _ := json.Marshal(map[string]string{"refresh_token": rt})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.RefreshURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token refresh failed (%d)", resp.StatusCode)
	}
	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return err
	}
	if rr.Token == "" {
		return errors.New("token refresh returned empty token")
	}
	s.mu.Lock()
	s.token = rr.Token
	if rr.RefreshToken != "" {
		s.refreshToken = rr.RefreshToken
	}
	if rr.ExpiresIn > 0 {
		s.expiresAt = time.Now().Add(time.Duration(rr.ExpiresIn) * time.Second)
	}
	if id, exp, ok := claimsFromJWT(rr.Token); ok {
		s.identity = id
		if rr.ExpiresIn == 0 {
			s.expiresAt = exp
		}
	}
	s.mu.Unlock()
	return nil
}

// claimsFromJWT decodes identity claims from an unverified JWT payload.
// Verification belongs to the backend; the client only reads its own
// role/name for local permission gating.
func claimsFromJWT(token string) (model.Identity, time.Time, bool) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return model.Identity{}, time.Time{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(segs[1])
	if err != nil {
		return model.Identity{}, time.Time{}, false
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return model.Identity{}, time.Time{}, false
	}
	id := model.Identity{}
	if v, ok := claims["sub"].(string); ok {
		id.UserID = v
	}
	if v, ok := claims["user_id"].(float64); ok && id.UserID == "" {
		id.UserID = fmt.Sprintf("%.0f", v)
	}
	if v, ok := claims["role"].(string); ok {
		id.Role = strings.ToLower(v)
	}
	if v, ok := claims["name"].(string); ok {
		id.DisplayName = v
	}
	var exp time.Time
	if v, ok := claims["exp"].(float64); ok {
		exp = time.Unix(int64(v), 0)
	}
	return id, exp, true
}
