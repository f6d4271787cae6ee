package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pavelanni/examforge/internal/model"
)

const authSessionTTL = 24 * time.Hour

// CreateAuthSession starts a login session for a user and returns its token.
func (s *Store) CreateAuthSession(userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(authSessionTTL),
	)
	if err != nil {
		return "", fmt.Errorf("insert auth session: %w", err)
	}
	return token, nil
}

// SessionUser resolves a session token to its user. It returns nil when the
// token is unknown or expired, or when the user has been disabled.
func (s *Store) SessionUser(token string) (*model.User, error) {
	var (
		u         model.User
		expiresAt time.Time
	)
	err := s.db.QueryRow(
		`SELECT u.id, u.username, u.display_name, u.password_hash, u.role, u.active, u.created_at, a.expires_at
		 FROM auth_sessions a JOIN users u ON u.id = a.user_id
		 WHERE a.id = ?`, token,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup auth session: %w", err)
	}
	if time.Now().After(expiresAt) {
		_ = s.DeleteAuthSession(token)
		return nil, nil
	}
	if !u.Active {
		return nil, nil
	}
	return &u, nil
}

// DeleteAuthSession removes a session token.
func (s *Store) DeleteAuthSession(token string) error {
	_, err := s.db.Exec(`DELETE FROM auth_sessions WHERE id = ?`, token)
	return err
}

// CleanupExpiredSessions removes expired auth sessions and reports how many
// were deleted.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, time.Now())
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
