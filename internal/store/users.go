package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"inkboard/internal/models"
)

const userColumns = "id, username, email, password_hash, role, disabled, created_at, updated_at"

// NewUser is the input for CreateUser. Username and Email must already be normalized.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         models.UserRole
	// AdminIfFirst makes the user admin when the table is empty at insert time.
	AdminIfFirst bool
	// OnlyIfFirst refuses the insert with ErrUsersExist unless the table is empty.
	OnlyIfFirst bool
}

// CountEnabledUsers returns the number of non-disabled users.
func (s *Store) CountEnabledUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE disabled = 0").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountUsers returns the number of users, disabled ones included.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateUser inserts one user. ErrDuplicate is returned for a taken username or email.
func (s *Store) CreateUser(ctx context.Context, in NewUser, now time.Time) (*models.User, error) {
	username := normalizeUsername(in.Username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return nil, fmt.Errorf("password hash is required")
	}
	if !models.IsValidRole(in.Role) {
		return nil, fmt.Errorf("invalid role: %s", in.Role)
	}

	userID, err := generateHexID(UserIDPrefix)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))

	// One statement so the emptiness check and the insert see the same table.
	var role string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, disabled, created_at, updated_at)
		SELECT ?, ?, ?, ?,
		       CASE WHEN ? AND NOT EXISTS (SELECT 1 FROM users) THEN ? ELSE ? END,
		       0, ?, ?
		WHERE NOT ? OR NOT EXISTS (SELECT 1 FROM users)
		RETURNING role
	`, userID, username, nullableString(email), in.PasswordHash,
		in.AdminIfFirst, string(models.RoleAdmin), string(in.Role),
		dbFormatTime(now), dbFormatTime(now),
		in.OnlyIfFirst).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUsersExist
	}
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("user %s: %w", username, ErrDuplicate)
		}
		return nil, err
	}

	return &models.User{
		ID:           userID,
		Username:     username,
		Email:        email,
		PasswordHash: in.PasswordHash,
		Role:         models.UserRole(role),
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}, nil
}

// GetUserByUsername returns a user by normalized username, or nil when absent.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? LIMIT 1`, username)
	return scanUser(row)
}

// GetUserByEmail returns a user by email, or nil when absent.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email)
	return scanUser(row)
}

// GetUserByID returns a user by id, or nil when absent.
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? LIMIT 1`, id)
	return scanUser(row)
}

// ListUsers returns all users sorted by username.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		if user == nil {
			continue
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// SetUserDisabled updates one user's disabled state by username.
// A nil user is returned when the username does not exist.
func (s *Store) SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*models.User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	disabledInt := 0
	if disabled {
		disabledInt = 1
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET disabled = ?, updated_at = ?
		WHERE username = ?
	`, disabledInt, dbFormatTime(now), username)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetUserByUsername(ctx, username)
}

// UpdatePasswordHash replaces one user's password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string, now time.Time) error {
	if strings.TrimSpace(passwordHash) == "" {
		return fmt.Errorf("password hash is required")
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?
	`, passwordHash, dbFormatTime(now), userID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// DeleteUser deletes one user by username. Sessions and boards cascade.
func (s *Store) DeleteUser(ctx context.Context, username string) (bool, error) {
	username = normalizeUsername(username)
	if username == "" {
		return false, fmt.Errorf("username is required")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CreateSession creates a browser session bound to one user and token hash.
func (s *Store) CreateSession(ctx context.Context, userID, tokenHash string, expiresAt, createdAt time.Time) error {
	userID = strings.TrimSpace(userID)
	tokenHash = strings.TrimSpace(tokenHash)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if tokenHash == "" {
		return fmt.Errorf("token hash is required")
	}

	sessionID, err := generateHexID(SessionIDPrefix)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, revoked_at, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)
	`, sessionID, userID, tokenHash, dbFormatTime(expiresAt), dbFormatTime(createdAt))
	return err
}

// GetUserBySessionTokenHash returns the owning user for an active, non-revoked session.
func (s *Store) GetUserBySessionTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.email, u.password_hash, u.role, u.disabled, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = ?
		  AND s.revoked_at IS NULL
		  AND s.expires_at > ?
		  AND u.disabled = 0
		LIMIT 1
	`, tokenHash, dbFormatTime(now))

	return scanUser(row)
}

// RevokeSessionByTokenHash marks one session revoked by token hash.
func (s *Store) RevokeSessionByTokenHash(ctx context.Context, tokenHash string, revokedAt time.Time) error {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET revoked_at = ?
		WHERE token_hash = ?
		  AND revoked_at IS NULL
	`, dbFormatTime(revokedAt), tokenHash)
	return err
}

// RevokeUserSessions revokes every active session of a user except keepTokenHash.
func (s *Store) RevokeUserSessions(ctx context.Context, userID, keepTokenHash string, revokedAt time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET revoked_at = ?
		WHERE user_id = ?
		  AND revoked_at IS NULL
		  AND token_hash <> ?
	`, dbFormatTime(revokedAt), userID, keepTokenHash)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CreateResetToken stores a single-use password reset token hash.
func (s *Store) CreateResetToken(ctx context.Context, userID, tokenHash string, expiresAt, createdAt time.Time) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(tokenHash) == "" {
		return fmt.Errorf("user id and token hash are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token_hash, user_id, expires_at, used_at, created_at)
		VALUES (?, ?, ?, NULL, ?)
	`, tokenHash, userID, dbFormatTime(expiresAt), dbFormatTime(createdAt))
	return err
}

// ConsumeResetToken marks a reset token used and returns its user id.
// ErrNotFound is returned when the token is unknown, used, or expired.
func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	stamp := dbFormatTime(now)
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE password_resets SET used_at = ?
		WHERE token_hash = ?
		  AND used_at IS NULL
		  AND expires_at > ?
		RETURNING user_id
	`, stamp, tokenHash, stamp).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func scanUser(scanner rowScanner) (*models.User, error) {
	var user models.User
	var email sql.NullString
	var role string
	var disabled int
	var createdAt string
	var updatedAt string
	if err := scanner.Scan(&user.ID, &user.Username, &email, &user.PasswordHash, &role, &disabled, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.Email = email.String
	user.Role = models.UserRole(role)
	user.Disabled = disabled != 0
	parsedCreated, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	parsedUpdated, err := dbParseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = parsedCreated
	user.UpdatedAt = parsedUpdated
	return &user, nil
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(strings.ToLower(username))
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
