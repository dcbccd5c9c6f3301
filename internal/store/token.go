package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/Sheiden1/hackathon/internal/model"
)

// DefaultTokenTTL is how long a bearer token stays valid unless configured.
const DefaultTokenTTL = 24 * time.Hour

// IssueToken creates a bearer token for a user, valid for the store's token TTL.
func (s *Store) IssueToken(ctx context.Context, userID string) (model.AccessToken, error) {
	token, err := generateToken()
	if err != nil {
		return model.AccessToken{}, err
	}
	now := time.Now().UTC()
	t := model.AccessToken{
		Token:     token,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO access_tokens (token, user_id, issued_at, expires_at) VALUES (?, ?, ?, ?)`,
		t.Token, t.UserID, t.IssuedAt, t.ExpiresAt,
	)
	if err != nil {
		return model.AccessToken{}, err
	}
	return t, nil
}

// LookupToken resolves a token to its active user. It returns nil when the
// token is unknown, expired, or belongs to a deactivated user.
func (s *Store) LookupToken(ctx context.Context, token string) (*model.User, error) {
	var (
		u         model.User
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.display_name, u.password_hash, u.role, u.active, u.created_at, t.expires_at
		 FROM access_tokens t JOIN users u ON u.id = t.user_id
		 WHERE t.token = ?`, token,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(expiresAt) {
		_ = s.RevokeToken(ctx, token)
		return nil, nil
	}
	if !u.Active {
		return nil, nil
	}
	return &u, nil
}

// RevokeToken removes one token.
func (s *Store) RevokeToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE token = ?`, token)
	return err
}

// RevokeUserTokens signs a user out everywhere.
func (s *Store) RevokeUserTokens(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeExpiredTokens deletes expired tokens and returns how many went.
func (s *Store) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
