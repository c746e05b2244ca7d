package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"roombook/internal/model"
	"roombook/internal/store"
)

const tokenCacheTTL = 30 * time.Second

// tokenCache keeps recently resolved access tokens in Redis so that bursts
// of API calls do not hit sqlite for every request. A nil client disables it.
type tokenCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func newTokenCache(rdb *redis.Client, ttl time.Duration) *tokenCache {
	return &tokenCache{rdb: rdb, ttl: ttl}
}

func (c *tokenCache) key(token string) string {
	return "roombook:token:" + token
}

func (c *tokenCache) get(ctx context.Context, token string) (*model.User, bool) {
	if c.rdb == nil {
		return nil, false
	}
	val, err := c.rdb.Get(ctx, c.key(token)).Bytes()
	if err != nil {
		return nil, false
	}
	var u model.User
	if err := json.Unmarshal(val, &u); err != nil {
		return nil, false
	}
	return &u, true
}

func (c *tokenCache) set(ctx context.Context, token string, u *model.User) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, c.key(token), data, c.ttl).Err()
}

func (c *tokenCache) ping(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

func (s *HTTPServer) userForToken(r *http.Request, token string) (*model.User, error) {
	if u, ok := s.tokens.get(r.Context(), token); ok {
		return u, nil
	}
	u, err := s.db.UserForToken(r.Context(), token)
	if err != nil {
		return nil, err
	}
	s.tokens.set(r.Context(), token, u)
	return u, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	u, err := s.db.Authenticate(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, store.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	case errors.Is(err, store.ErrNotApproved):
		writeError(w, http.StatusForbidden, "Your account is pending approval.")
		return
	case err != nil:
		s.fail(w, err)
		return
	}

	access, refresh, err := s.db.IssueTokens(r.Context(), u.ID, s.cfg.AccessTokenTTL(), s.cfg.RefreshTokenTTL())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info().Int64("user_id", u.ID).Msg("user logged in")
	writeJSON(w, http.StatusOK, tokenResponse{Access: access, Refresh: refresh})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	access, err := s.db.RefreshAccess(r.Context(), req.Refresh, s.cfg.AccessTokenTTL())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Access: access})
}

type registerRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Password   string `json:"password"`
	TelegramID int64  `json:"telegram_id"`
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	u, err := s.svc.Register(r.Context(), store.NewUser{
		Username:   req.Username,
		Password:   req.Password,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		TelegramID: req.TelegramID,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *HTTPServer) handleCurrentUser(w http.ResponseWriter, _ *http.Request, u *model.User) {
	writeJSON(w, http.StatusOK, u)
}
