package logs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store persists log entries
type Store struct {
	db *sql.DB
}

// NewStore creates a new log store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert records one entry
func (s *Store) Insert(ctx context.Context, entry *Entry) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO request_logs (message, user_id, username, status_code, method, path, permission)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, create_time
	`, entry.Message, entry.UserID, entry.Username, entry.StatusCode, entry.Method, entry.Path, entry.Permission).
		Scan(&entry.ID, &entry.CreateTime)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first, with the total
// count before pagination.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, int64, error) {
	where, args := buildConditions(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM request_logs" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count log entries: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, message, user_id, username, status_code, method, path, permission, create_time
		FROM request_logs%s
		ORDER BY create_time DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Message, &e.UserID, &e.Username, &e.StatusCode, &e.Method, &e.Path, &e.Permission, &e.CreateTime); err != nil {
			return nil, 0, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate log entries: %w", err)
	}
	return entries, total, nil
}

func buildConditions(filter Filter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Username != "" {
		args = append(args, filter.Username)
		conditions = append(conditions, fmt.Sprintf("username = $%d", len(args)))
	}
	if filter.Start != nil && filter.End != nil {
		args = append(args, *filter.Start, *filter.End)
		conditions = append(conditions, fmt.Sprintf("create_time BETWEEN $%d AND $%d", len(args)-1, len(args)))
	}
	if filter.Keyword != "" {
		args = append(args, "%"+filter.Keyword+"%")
		conditions = append(conditions, fmt.Sprintf("message LIKE $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ListUsernames returns the distinct usernames appearing in the log
func (s *Store) ListUsernames(ctx context.Context, limit, offset int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username FROM request_logs
		GROUP BY username
		ORDER BY username
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list log usernames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usernames: %w", err)
	}
	return names, nil
}

// DeleteBefore removes entries older than the cutoff, returning the count
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM request_logs WHERE create_time < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old log entries: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted log entries: %w", err)
	}
	return deleted, nil
}
