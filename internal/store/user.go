package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Sheiden1/hackathon/internal/model"
)

const userColumns = `id, username, display_name, password_hash, role, active, created_at`

func scanUser(r rowScanner) (*model.User, error) {
	var u model.User
	err := r.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user and returns its id.
func (s *Store) CreateUser(ctx context.Context, u model.User) (string, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.DisplayName, u.PasswordHash, u.Role, u.Active, time.Now().UTC(),
	)
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return "", err
	}
	slog.Info("created user", "id", u.ID, "username", u.Username, "role", u.Role)
	return u.ID, nil
}

// GetUserByUsername returns a user by username, or nil if missing.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// GetUserByID returns a user by id, or nil if missing.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ToggleUserActive flips the active flag on a user and returns the new
// value. Deactivating a user revokes all of their tokens.
func (s *Store) ToggleUserActive(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE users SET active = NOT active WHERE id = ?`, id); err != nil {
		return false, err
	}
	var active bool
	if err := tx.QueryRowContext(ctx, `SELECT active FROM users WHERE id = ?`, id).Scan(&active); err != nil {
		return false, err
	}
	if !active {
		if _, err := tx.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id = ?`, id); err != nil {
			return false, err
		}
	}
	return active, tx.Commit()
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
