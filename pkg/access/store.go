package access

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store persists groups, permissions and their junctions. Lookup methods
// return (nil, nil) when the row is absent; callers attach the business
// error. Soft-deleted rows are invisible to every method here.
type Store struct {
	db *sql.DB
}

// NewStore creates a new access store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components that manage their own
// transactions (the Synchronizer).
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateGroup inserts a group and its initial grants in one transaction.
// Either the group row and every grant land, or nothing does.
func (s *Store) CreateGroup(ctx context.Context, group *Group, permissionIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO groups (name, info, level, create_time, update_time)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id
	`, group.Name, group.Info, group.Level, now).Scan(&group.ID)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_permissions (group_id, permission_id)
			VALUES ($1, $2)
		`, group.ID, pid); err != nil {
			return fmt.Errorf("failed to grant permission %d: %w", pid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group creation: %w", err)
	}
	group.CreateTime = now
	group.UpdateTime = now
	return nil
}

// GetGroup retrieves a group by id
func (s *Store) GetGroup(ctx context.Context, id int64) (*Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx, `
		SELECT id, name, info, level, create_time, update_time
		FROM groups
		WHERE id = $1 AND delete_time IS NULL
	`, id))
}

// GetGroupByName retrieves a group by name
func (s *Store) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx, `
		SELECT id, name, info, level, create_time, update_time
		FROM groups
		WHERE name = $1 AND delete_time IS NULL
	`, name))
}

// GetGroupByLevel retrieves the group holding the given level. Root and
// guest are singletons by initialization; if several exist the oldest wins.
func (s *Store) GetGroupByLevel(ctx context.Context, level GroupLevel) (*Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx, `
		SELECT id, name, info, level, create_time, update_time
		FROM groups
		WHERE level = $1 AND delete_time IS NULL
		ORDER BY id
		LIMIT 1
	`, level))
}

func (s *Store) scanGroup(row *sql.Row) (*Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.Name, &g.Info, &g.Level, &g.CreateTime, &g.UpdateTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// ListGroups returns a page of groups. The root group is administrative
// plumbing and never appears in listings.
func (s *Store) ListGroups(ctx context.Context, limit, offset int) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, info, level, create_time, update_time
		FROM groups
		WHERE level != $1 AND delete_time IS NULL
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, LevelRoot, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

// ListAllGroups returns every non-root group without pagination
func (s *Store) ListAllGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, info, level, create_time, update_time
		FROM groups
		WHERE level != $1 AND delete_time IS NULL
		ORDER BY id
	`, LevelRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

func scanGroups(rows *sql.Rows) ([]Group, error) {
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Info, &g.Level, &g.CreateTime, &g.UpdateTime); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// CountGroups counts listable groups
func (s *Store) CountGroups(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM groups
		WHERE level != $1 AND delete_time IS NULL
	`, LevelRoot).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count groups: %w", err)
	}
	return total, nil
}

// UpdateGroup updates a group's name and info
func (s *Store) UpdateGroup(ctx context.Context, id int64, name, info string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE groups
		SET name = $1, info = $2, update_time = $3
		WHERE id = $4 AND delete_time IS NULL
	`, name, info, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return nil
}

// DeleteGroup soft-deletes a group and hard-deletes its grants and
// memberships in one transaction.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE groups SET delete_time = $1 WHERE id = $2 AND delete_time IS NULL
	`, time.Now(), id); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM group_permissions WHERE group_id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to delete group grants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM user_groups WHERE group_id = $1
	`, id); err != nil {
		return fmt.Errorf("failed to delete group memberships: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group deletion: %w", err)
	}
	return nil
}

// ListMountedPermissions returns all mounted permissions
func (s *Store) ListMountedPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, module, mount, create_time, update_time
		FROM permissions
		WHERE mount = $1 AND delete_time IS NULL
		ORDER BY module, name
	`, Mounted)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// GetPermissionsByIDs returns the mounted permissions among the given ids.
// Absent or unmounted ids are simply missing from the result; the caller
// compares lengths to detect them.
func (s *Store) GetPermissionsByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, module, mount, create_time, update_time
		FROM permissions
		WHERE id = ANY($1) AND mount = $2 AND delete_time IS NULL
	`, pq.Array(ids), Mounted)
	if err != nil {
		return nil, fmt.Errorf("failed to get permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// PermissionsForGroup returns the mounted permissions granted to a group
func (s *Store) PermissionsForGroup(ctx context.Context, groupID int64) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.module, p.mount, p.create_time, p.update_time
		FROM permissions p
		JOIN group_permissions gp ON gp.permission_id = p.id
		WHERE gp.group_id = $1 AND p.mount = $2 AND p.delete_time IS NULL
		ORDER BY p.module, p.name
	`, groupID, Mounted)
	if err != nil {
		return nil, fmt.Errorf("failed to get group permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Module, &p.Mount, &p.CreateTime, &p.UpdateTime); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}
	return perms, nil
}

// GrantExists reports whether a (group, permission) grant is present
func (s *Store) GrantExists(ctx context.Context, groupID, permissionID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM group_permissions
			WHERE group_id = $1 AND permission_id = $2
		)
	`, groupID, permissionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check grant: %w", err)
	}
	return exists, nil
}

// CreateGrant inserts a single grant. A concurrent duplicate surfaces as
// the driver's unique-violation error for the caller to classify.
func (s *Store) CreateGrant(ctx context.Context, groupID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_permissions (group_id, permission_id)
		VALUES ($1, $2)
	`, groupID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}
	return nil
}

// CreateGrants inserts a batch of grants atomically
func (s *Store) CreateGrants(ctx context.Context, groupID int64, permissionIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, pid := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_permissions (group_id, permission_id)
			VALUES ($1, $2)
		`, groupID, pid); err != nil {
			return fmt.Errorf("failed to create grant for permission %d: %w", pid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grants: %w", err)
	}
	return nil
}

// DeleteGrants removes matching grants. Absent pairs are no-ops.
func (s *Store) DeleteGrants(ctx context.Context, groupID int64, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM group_permissions
		WHERE group_id = $1 AND permission_id = ANY($2)
	`, groupID, pq.Array(permissionIDs))
	if err != nil {
		return fmt.Errorf("failed to delete grants: %w", err)
	}
	return nil
}

// GroupIDsForUser returns the ids of the groups a user belongs to
func (s *Store) GroupIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id FROM user_groups WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user groups: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user groups: %w", err)
	}
	return ids, nil
}

// GroupsForUser returns the groups a user belongs to
func (s *Store) GroupsForUser(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.info, g.level, g.create_time, g.update_time
		FROM groups g
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1 AND g.delete_time IS NULL
		ORDER BY g.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user groups: %w", err)
	}
	defer rows.Close()
	return scanGroups(rows)
}

// UserHasLevel reports whether any of the user's groups holds the level
func (s *Store) UserHasLevel(ctx context.Context, userID int64, level GroupLevel) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM user_groups ug
			JOIN groups g ON g.id = ug.group_id
			WHERE ug.user_id = $1 AND g.level = $2 AND g.delete_time IS NULL
		)
	`, userID, level).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user level: %w", err)
	}
	return exists, nil
}

// GroupsHaveMountedPermission answers the grant question in one round trip:
// is a mounted permission with this name and module granted to any of the
// given groups.
func (s *Store) GroupsHaveMountedPermission(ctx context.Context, groupIDs []int64, name, module string) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM group_permissions gp
			JOIN permissions p ON p.id = gp.permission_id
			WHERE gp.group_id = ANY($1)
			  AND p.name = $2 AND p.module = $3
			  AND p.mount = $4 AND p.delete_time IS NULL
		)
	`, pq.Array(groupIDs), name, module, Mounted).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check permission grant: %w", err)
	}
	return exists, nil
}

// AddUserToGroup places a user into a group
func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_groups (user_id, group_id)
		VALUES ($1, $2)
	`, userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to add user to group: %w", err)
	}
	return nil
}

// ReplaceUserGroups swaps a user's entire membership set in one transaction
func (s *Store) ReplaceUserGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM user_groups WHERE user_id = $1
	`, userID); err != nil {
		return fmt.Errorf("failed to clear user groups: %w", err)
	}
	for _, gid := range groupIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_groups (user_id, group_id)
			VALUES ($1, $2)
		`, userID, gid); err != nil {
			return fmt.Errorf("failed to add user to group %d: %w", gid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group reassignment: %w", err)
	}
	return nil
}

// DeleteUserGroups removes all memberships for a user
func (s *Store) DeleteUserGroups(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_groups WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user groups: %w", err)
	}
	return nil
}
