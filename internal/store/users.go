package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"roombook/internal/model"
)

// NewUser is the input of CreateUser.
type NewUser struct {
	Username   string
	Password   string
	Email      string
	FirstName  string
	LastName   string
	Role       model.Role
	Approved   bool
	TelegramID int64
}

const userColumns = `id, username, email, first_name, last_name, role, is_approved, telegram_id`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &role, &u.Approved, &u.TelegramID); err != nil {
		return nil, err
	}
	u.Role = model.ParseRole(role)
	return &u, nil
}

// CreateUser stores a new account with a bcrypt password hash.
func (db *DB) CreateUser(ctx context.Context, in NewUser) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	if in.Role == "" {
		in.Role = model.RoleUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO users (username, email, first_name, last_name, password_hash, role, is_approved, telegram_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Username, in.Email, in.FirstName, in.LastName, string(hash), string(in.Role), in.Approved, in.TelegramID,
		formatTime(time.Now()),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetUser(ctx, id)
}

// EnsureAdmin creates the bootstrap administrator unless the username exists.
func (db *DB) EnsureAdmin(ctx context.Context, username, password, email string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := db.userByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err = db.CreateUser(ctx, NewUser{
		Username: username,
		Password: password,
		Email:    email,
		Role:     model.RoleAdmin,
		Approved: true,
	})
	if err == nil {
		db.logger.Info().Str("username", username).Msg("Admin account created")
	}
	return err
}

// Authenticate checks the password and requires an approved account.
func (db *DB) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	var hash string
	err := db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE username = ?`, strings.TrimSpace(username)).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := db.userByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !u.Approved {
		return nil, ErrNotApproved
	}
	return u, nil
}

// GetUser returns a user by id.
func (db *DB) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (db *DB) userByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, strings.TrimSpace(username)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// PendingUsers lists accounts awaiting approval, oldest first.
func (db *DB) PendingUsers(ctx context.Context) ([]model.User, error) {
	return db.listUsers(ctx, `WHERE is_approved = 0 ORDER BY created_at, id`)
}

// Admins lists approved administrators.
func (db *DB) Admins(ctx context.Context) ([]model.User, error) {
	return db.listUsers(ctx, `WHERE is_approved = 1 AND role = ? ORDER BY id`, string(model.RoleAdmin))
}

func (db *DB) listUsers(ctx context.Context, where string, args ...any) ([]model.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ApproveUser marks the account approved with the given role.
func (db *DB) ApproveUser(ctx context.Context, id int64, role model.Role) (*model.User, error) {
	res, err := db.ExecContext(ctx, `UPDATE users SET is_approved = 1, role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetUser(ctx, id)
}

// DenyUser removes a pending account. Approved accounts are left untouched.
func (db *DB) DenyUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := db.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Approved {
		return nil, fmt.Errorf("user %d is already approved", id)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ? AND is_approved = 0`, id); err != nil {
		return nil, err
	}
	return u, nil
}
