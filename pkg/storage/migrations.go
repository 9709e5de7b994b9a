package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quillcms/quill/pkg/observability"
)

// Migration represents a versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the full schema, oldest first. Uniqueness
// constraints are scoped to live rows; soft-deleted rows free their keys.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and user_identities tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(24) NOT NULL,
					nickname VARCHAR(24),
					avatar VARCHAR(500),
					email VARCHAR(100),
					create_time TIMESTAMP NOT NULL DEFAULT NOW(),
					update_time TIMESTAMP NOT NULL DEFAULT NOW(),
					delete_time TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_users_username ON users(username) WHERE delete_time IS NULL;
				CREATE UNIQUE INDEX idx_users_email ON users(email) WHERE delete_time IS NULL AND email IS NOT NULL;

				CREATE TABLE IF NOT EXISTS user_identities (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					identity_type VARCHAR(100) NOT NULL,
					identifier VARCHAR(100) NOT NULL,
					credential VARCHAR(255) NOT NULL,
					create_time TIMESTAMP NOT NULL DEFAULT NOW(),
					update_time TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_user_identities_user_id ON user_identities(user_id);
				CREATE UNIQUE INDEX idx_user_identities_identifier ON user_identities(identity_type, identifier);
			`,
		},
		{
			Version:     2,
			Description: "Create groups and permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(60) NOT NULL,
					info VARCHAR(255) NOT NULL DEFAULT '',
					level SMALLINT NOT NULL DEFAULT 3,
					create_time TIMESTAMP NOT NULL DEFAULT NOW(),
					update_time TIMESTAMP NOT NULL DEFAULT NOW(),
					delete_time TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_groups_name ON groups(name) WHERE delete_time IS NULL;
				CREATE INDEX idx_groups_level ON groups(level);

				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(60) NOT NULL,
					module VARCHAR(50) NOT NULL,
					mount SMALLINT NOT NULL DEFAULT 1,
					create_time TIMESTAMP NOT NULL DEFAULT NOW(),
					update_time TIMESTAMP NOT NULL DEFAULT NOW(),
					delete_time TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_permissions_name_module ON permissions(name, module) WHERE delete_time IS NULL;
				CREATE INDEX idx_permissions_mount ON permissions(mount);
			`,
		},
		{
			Version:     3,
			Description: "Create group_permissions and user_groups junctions",
			SQL: `
				CREATE TABLE IF NOT EXISTS group_permissions (
					id BIGSERIAL PRIMARY KEY,
					group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					UNIQUE(group_id, permission_id)
				);

				CREATE INDEX idx_group_permissions_group_id ON group_permissions(group_id);
				CREATE INDEX idx_group_permissions_permission_id ON group_permissions(permission_id);

				CREATE TABLE IF NOT EXISTS user_groups (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					UNIQUE(user_id, group_id)
				);

				CREATE INDEX idx_user_groups_user_id ON user_groups(user_id);
				CREATE INDEX idx_user_groups_group_id ON user_groups(group_id);
			`,
		},
		{
			Version:     4,
			Description: "Create auth_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS auth_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					kind VARCHAR(10) NOT NULL,
					expires_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP
				);

				CREATE INDEX idx_auth_tokens_user_id ON auth_tokens(user_id);
				CREATE INDEX idx_auth_tokens_expires_at ON auth_tokens(expires_at);
			`,
		},
		{
			Version:     5,
			Description: "Create request_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS request_logs (
					id BIGSERIAL PRIMARY KEY,
					message VARCHAR(450) NOT NULL,
					user_id BIGINT NOT NULL,
					username VARCHAR(24) NOT NULL,
					status_code INT NOT NULL,
					method VARCHAR(20) NOT NULL,
					path VARCHAR(500) NOT NULL,
					permission VARCHAR(100) NOT NULL DEFAULT '',
					create_time TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_request_logs_username ON request_logs(username);
				CREATE INDEX idx_request_logs_create_time ON request_logs(create_time);
			`,
		},
		{
			Version:     6,
			Description: "Create books table",
			SQL: `
				CREATE TABLE IF NOT EXISTS books (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(50) NOT NULL,
					author VARCHAR(30) NOT NULL DEFAULT '',
					summary VARCHAR(1000) NOT NULL DEFAULT '',
					image VARCHAR(100) NOT NULL DEFAULT '',
					create_time TIMESTAMP NOT NULL DEFAULT NOW(),
					update_time TIMESTAMP NOT NULL DEFAULT NOW(),
					delete_time TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_books_title ON books(title) WHERE delete_time IS NULL;
			`,
		},
		{
			Version:     7,
			Description: "Create files table",
			SQL: `
				CREATE TABLE IF NOT EXISTS files (
					id BIGSERIAL PRIMARY KEY,
					path VARCHAR(500) NOT NULL,
					type VARCHAR(10) NOT NULL DEFAULT 'LOCAL',
					name VARCHAR(100) NOT NULL,
					extension VARCHAR(50) NOT NULL DEFAULT '',
					size BIGINT NOT NULL DEFAULT 0,
					md5 VARCHAR(40) NOT NULL,
					create_time TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(md5)
				);
			`,
		},
	}
}

// RunMigrations applies every pending migration, each in its own
// transaction.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("applying migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
