package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists users, credentials and tokens. Lookup methods return
// (nil, nil) when the row is absent.
type Store struct {
	db *sql.DB
}

// NewStore creates a new auth store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts a user, their password credential and their initial
// group memberships in one transaction.
func (s *Store) CreateUser(ctx context.Context, user *User, passwordHash string, groupIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (username, nickname, avatar, email, create_time, update_time)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $5)
		RETURNING id
	`, user.Username, user.Nickname, user.Avatar, user.Email, now).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_identities (user_id, identity_type, identifier, credential)
		VALUES ($1, $2, $3, $4)
	`, user.ID, IdentityTypePassword, user.Username, passwordHash); err != nil {
		return fmt.Errorf("failed to create user identity: %w", err)
	}

	for _, gid := range groupIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_groups (user_id, group_id)
			VALUES ($1, $2)
		`, user.ID, gid); err != nil {
			return fmt.Errorf("failed to add user to group %d: %w", gid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", err)
	}
	user.CreateTime = now
	user.UpdateTime = now
	return nil
}

// GetUser retrieves a user by id
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(nickname, ''), COALESCE(avatar, ''), COALESCE(email, ''), create_time, update_time
		FROM users
		WHERE id = $1 AND delete_time IS NULL
	`, id))
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(nickname, ''), COALESCE(avatar, ''), COALESCE(email, ''), create_time, update_time
		FROM users
		WHERE username = $1 AND delete_time IS NULL
	`, username))
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(nickname, ''), COALESCE(avatar, ''), COALESCE(email, ''), create_time, update_time
		FROM users
		WHERE email = $1 AND delete_time IS NULL
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Nickname, &u.Avatar, &u.Email, &u.CreateTime, &u.UpdateTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns a page of users, optionally restricted to one group.
// Users holding a group at excludeLevel are filtered in the query itself,
// so pagination and counting see the same population.
func (s *Store) ListUsers(ctx context.Context, groupID int64, excludeLevel int, limit, offset int) ([]User, error) {
	var rows *sql.Rows
	var err error
	if groupID > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT u.id, u.username, COALESCE(u.nickname, ''), COALESCE(u.avatar, ''), COALESCE(u.email, ''), u.create_time, u.update_time
			FROM users u
			JOIN user_groups ug ON ug.user_id = u.id
			WHERE ug.group_id = $1 AND u.delete_time IS NULL
			AND NOT EXISTS (
				SELECT 1 FROM user_groups x
				JOIN groups g ON g.id = x.group_id
				WHERE x.user_id = u.id AND g.level = $2
			)
			ORDER BY u.id
			LIMIT $3 OFFSET $4
		`, groupID, excludeLevel, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT u.id, u.username, COALESCE(u.nickname, ''), COALESCE(u.avatar, ''), COALESCE(u.email, ''), u.create_time, u.update_time
			FROM users u
			WHERE u.delete_time IS NULL
			AND NOT EXISTS (
				SELECT 1 FROM user_groups x
				JOIN groups g ON g.id = x.group_id
				WHERE x.user_id = u.id AND g.level = $1
			)
			ORDER BY u.id
			LIMIT $2 OFFSET $3
		`, excludeLevel, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Nickname, &u.Avatar, &u.Email, &u.CreateTime, &u.UpdateTime); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// CountUsers counts users, optionally restricted to one group, applying
// the same level exclusion as ListUsers so totals match the listable rows.
func (s *Store) CountUsers(ctx context.Context, groupID int64, excludeLevel int) (int64, error) {
	var total int64
	var err error
	if groupID > 0 {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM users u
			JOIN user_groups ug ON ug.user_id = u.id
			WHERE ug.group_id = $1 AND u.delete_time IS NULL
			AND NOT EXISTS (
				SELECT 1 FROM user_groups x
				JOIN groups g ON g.id = x.group_id
				WHERE x.user_id = u.id AND g.level = $2
			)
		`, groupID, excludeLevel).Scan(&total)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM users u
			WHERE u.delete_time IS NULL
			AND NOT EXISTS (
				SELECT 1 FROM user_groups x
				JOIN groups g ON g.id = x.group_id
				WHERE x.user_id = u.id AND g.level = $1
			)
		`, excludeLevel).Scan(&total)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return total, nil
}

// UpdateUser updates a user's profile fields
func (s *Store) UpdateUser(ctx context.Context, id int64, nickname, avatar, email string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET nickname = $1, avatar = $2, email = NULLIF($3, ''), update_time = $4
		WHERE id = $5 AND delete_time IS NULL
	`, nickname, avatar, email, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user and hard-deletes their credentials,
// memberships and tokens in one transaction.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET delete_time = $1 WHERE id = $2 AND delete_time IS NULL
	`, time.Now(), id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM user_identities WHERE user_id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to delete user identities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM user_groups WHERE user_id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to delete user memberships: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM auth_tokens WHERE user_id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to delete user tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return nil
}

// GetPasswordIdentity retrieves a user's password credential
func (s *Store) GetPasswordIdentity(ctx context.Context, username string) (*UserIdentity, error) {
	var identity UserIdentity
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, identity_type, identifier, credential
		FROM user_identities
		WHERE identity_type = $1 AND identifier = $2
	`, IdentityTypePassword, username).Scan(
		&identity.ID, &identity.UserID, &identity.IdentityType, &identity.Identifier, &identity.Credential,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user identity: %w", err)
	}
	return &identity, nil
}

// UpdateCredential replaces a user's password hash
func (s *Store) UpdateCredential(ctx context.Context, userID int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_identities
		SET credential = $1, update_time = $2
		WHERE user_id = $3 AND identity_type = $4
	`, passwordHash, time.Now(), userID, IdentityTypePassword)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return nil
}

// RenameIdentity keeps the credential identifier in step with a username
// change.
func (s *Store) RenameIdentity(ctx context.Context, userID int64, identifier string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE user_identities
		SET identifier = $1, update_time = $2
		WHERE user_id = $3 AND identity_type = $4
	`, identifier, time.Now(), userID, IdentityTypePassword)
	if err != nil {
		return fmt.Errorf("failed to rename identity: %w", err)
	}
	return nil
}

// InsertToken stores a token hash
func (s *Store) InsertToken(ctx context.Context, token *Token) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auth_tokens (user_id, token_hash, kind, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, token.UserID, token.TokenHash, token.Kind, token.ExpiresAt).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// GetToken retrieves a live token by hash. Revoked and expired tokens are
// invisible.
func (s *Store) GetToken(ctx context.Context, tokenHash string) (*Token, error) {
	var t Token
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, kind, expires_at, created_at
		FROM auth_tokens
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Kind, &t.ExpiresAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &t, nil
}

// RevokeUserTokens revokes every live token of a user
func (s *Store) RevokeUserTokens(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE auth_tokens SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}

// PurgeExpiredTokens deletes tokens past their expiry, returning the count
func (s *Store) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_tokens WHERE expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged tokens: %w", err)
	}
	return purged, nil
}
