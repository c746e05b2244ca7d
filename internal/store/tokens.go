package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"roombook/internal/model"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

// IssueTokens creates an access/refresh pair for the user.
func (db *DB) IssueTokens(ctx context.Context, userID int64, accessTTL, refreshTTL time.Duration) (access, refresh string, err error) {
	access, err = db.insertToken(ctx, userID, tokenAccess, accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = db.insertToken(ctx, userID, tokenRefresh, refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// RefreshAccess exchanges a valid refresh token for a new access token.
func (db *DB) RefreshAccess(ctx context.Context, refresh string, accessTTL time.Duration) (string, error) {
	userID, err := db.tokenOwner(ctx, refresh, tokenRefresh)
	if err != nil {
		return "", err
	}
	return db.insertToken(ctx, userID, tokenAccess, accessTTL)
}

// UserForToken resolves a bearer access token.
func (db *DB) UserForToken(ctx context.Context, access string) (*model.User, error) {
	userID, err := db.tokenOwner(ctx, access, tokenAccess)
	if err != nil {
		return nil, err
	}
	u, err := db.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	return u, err
}

// PurgeExpiredTokens deletes tokens past their expiry.
func (db *DB) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at <= ?`, formatTime(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) insertToken(ctx context.Context, userID int64, kind string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO tokens (token, user_id, kind, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, kind, formatTime(time.Now().Add(ttl)),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

func (db *DB) tokenOwner(ctx context.Context, token, kind string) (int64, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	var userID int64
	err := db.QueryRowContext(ctx,
		`SELECT user_id FROM tokens WHERE token = ? AND kind = ? AND expires_at > ?`,
		token, kind, formatTime(time.Now()),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidToken
	}
	return userID, err
}
