// Package session holds the credentials of an authenticated client.
package session

import (
	"context"
	"errors"
	"sync"

	"roombook/internal/model"
)

// ErrNoRefreshToken is returned when a refresh is needed but the session
// was never logged in.
var ErrNoRefreshToken = errors.New("session has no refresh token")

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	RefreshToken(ctx context.Context, refresh string) (string, error)
}

// Session is the explicit identity passed to remote calls. Refresh is its
// single coordination point: concurrent callers that saw the same stale
// access token share one refresh.
type Session struct {
	mu      sync.Mutex
	access  string
	refresh string
	user    *model.User

	refreshing chan struct{}
	lastErr    error
}

// New creates a session from existing tokens. Either may be empty.
func New(access, refresh string) *Session {
	return &Session{access: access, refresh: refresh}
}

// Token returns the current access token.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

// RefreshTokenValue returns the refresh token, for persisting the session.
func (s *Session) RefreshTokenValue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

// SetTokens replaces both tokens, e.g. after login.
func (s *Session) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
}

// User returns the cached current user, nil if unknown.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SetUser caches the current user.
func (s *Session) SetUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// Clear drops all credentials.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh, s.user = "", "", nil
}

// Refresh obtains a new access token after stale was rejected. If the token
// already changed since stale was read, the new one is returned without a
// remote call. Callers arriving during a refresh wait for its outcome.
func (s *Session) Refresh(ctx context.Context, r Refresher, stale string) (string, error) {
	s.mu.Lock()
	if s.access != stale && s.access != "" {
		token := s.access
		s.mu.Unlock()
		return token, nil
	}
	if wait := s.refreshing; wait != nil {
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.lastErr != nil {
			return "", s.lastErr
		}
		return s.access, nil
	}
	if s.refresh == "" {
		s.mu.Unlock()
		return "", ErrNoRefreshToken
	}
	done := make(chan struct{})
	s.refreshing = done
	refresh := s.refresh
	s.mu.Unlock()

	token, err := r.RefreshToken(ctx, refresh)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing = nil
	s.lastErr = err
	if err == nil {
		s.access = token
	}
	close(done)
	if err != nil {
		return "", err
	}
	return token, nil
}
