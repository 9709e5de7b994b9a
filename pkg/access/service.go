package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/quillcms/quill/pkg/apperr"
	"github.com/quillcms/quill/pkg/observability"
)

// Service implements the administrative mutations on groups and grants.
// Side-effect-free validation (existence, mount status, duplicate grant,
// protected levels) runs before any transaction opens, so a failed call
// never leaves partial state. Concurrent mutations that slip past the
// pre-checks land on the database's unique constraints and come back as
// conflicts, not crashes.
type Service struct {
	store  *Store
	logger *observability.Logger
}

// NewService creates a new management service
func NewService(store *Store, logger *observability.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Store exposes the underlying store for read-side collaborators
func (s *Service) Store() *Store {
	return s.store
}

// ListPermissions returns all mounted permissions grouped by module
func (s *Service) ListPermissions(ctx context.Context) (map[string][]Permission, error) {
	perms, err := s.store.ListMountedPermissions(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Permission)
	for _, p := range perms {
		grouped[p.Module] = append(grouped[p.Module], p)
	}
	return grouped, nil
}

// ListGroups returns a page of groups with the total count
func (s *Service) ListGroups(ctx context.Context, limit, offset int) ([]Group, int64, error) {
	groups, err := s.store.ListGroups(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountGroups(ctx)
	if err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

// ListAllGroups returns every assignable group
func (s *Service) ListAllGroups(ctx context.Context) ([]Group, error) {
	return s.store.ListAllGroups(ctx)
}

// GetGroup returns a group with its mounted permissions
func (s *Service) GetGroup(ctx context.Context, id int64) (*GroupWithPermissions, error) {
	group, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apperr.NotFound(apperr.CodeGroupNotFound, "group not found")
	}
	perms, err := s.store.PermissionsForGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []Permission{}
	}
	return &GroupWithPermissions{Group: *group, Permissions: perms}, nil
}

// CreateGroup creates a user-level group, optionally with an initial
// permission set. Every referenced permission must be mounted.
func (s *Service) CreateGroup(ctx context.Context, name, info string, permissionIDs []int64) (*Group, error) {
	existing, err := s.store.GetGroupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict(apperr.CodeGroupNameTaken, "a group with this name already exists")
	}
	if err := s.requireMounted(ctx, permissionIDs); err != nil {
		return nil, err
	}

	group := &Group{Name: name, Info: info, Level: LevelUser}
	if err := s.store.CreateGroup(ctx, group, permissionIDs); err != nil {
		return nil, classifyConflict(err, apperr.CodeGroupNameTaken, "a group with this name already exists")
	}
	s.logger.WithFields(map[string]interface{}{
		"group_id": group.ID,
		"name":     name,
		"grants":   len(permissionIDs),
	}).Info("group created")
	return group, nil
}

// UpdateGroup renames a group or changes its info
func (s *Service) UpdateGroup(ctx context.Context, id int64, name, info string) error {
	group, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if group == nil {
		return apperr.NotFound(apperr.CodeGroupNotFound, "group not found")
	}
	if name != group.Name {
		other, err := s.store.GetGroupByName(ctx, name)
		if err != nil {
			return err
		}
		if other != nil {
			return apperr.Conflict(apperr.CodeGroupNameTaken, "a group with this name already exists")
		}
	}
	if err := s.store.UpdateGroup(ctx, id, name, info); err != nil {
		return classifyConflict(err, apperr.CodeGroupNameTaken, "a group with this name already exists")
	}
	return nil
}

// DeleteGroup removes a group together with its grants and memberships.
// Root and guest groups are protected and can never be deleted.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	group, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if group == nil {
		return apperr.NotFound(apperr.CodeGroupNotFound, "group not found")
	}
	switch group.Level {
	case LevelRoot:
		return apperr.Forbidden(apperr.CodeRootUndeletable, "the root group cannot be deleted")
	case LevelGuest:
		return apperr.Forbidden(apperr.CodeGuestUndeletable, "the guest group cannot be deleted")
	}
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("group_id", id).Info("group deleted")
	return nil
}

// DispatchPermission grants one permission to a group. The permission
// must be mounted and the grant must not already exist; a concurrent
// duplicate insert surfaces as the same conflict.
func (s *Service) DispatchPermission(ctx context.Context, groupID, permissionID int64) error {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.requireMounted(ctx, []int64{permissionID}); err != nil {
		return err
	}
	exists, err := s.store.GrantExists(ctx, groupID, permissionID)
	if err != nil {
		return err
	}
	if exists {
		return apperr.Conflict(apperr.CodeDuplicateGrant, "permission already granted to this group")
	}
	if err := s.store.CreateGrant(ctx, groupID, permissionID); err != nil {
		return classifyConflict(err, apperr.CodeDuplicateGrant, "permission already granted to this group")
	}
	return nil
}

// DispatchPermissions grants a batch of permissions atomically
func (s *Service) DispatchPermissions(ctx context.Context, groupID int64, permissionIDs []int64) error {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.requireMounted(ctx, permissionIDs); err != nil {
		return err
	}
	for _, pid := range permissionIDs {
		exists, err := s.store.GrantExists(ctx, groupID, pid)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict(apperr.CodeDuplicateGrant, "permission already granted to this group")
		}
	}
	if err := s.store.CreateGrants(ctx, groupID, permissionIDs); err != nil {
		return classifyConflict(err, apperr.CodeDuplicateGrant, "permission already granted to this group")
	}
	return nil
}

// RemovePermissions revokes a batch of grants. Each permission id must
// resolve to a mounted row; revoking an absent grant is a silent no-op.
func (s *Service) RemovePermissions(ctx context.Context, groupID int64, permissionIDs []int64) error {
	if err := s.requireGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.requireMounted(ctx, permissionIDs); err != nil {
		return err
	}
	return s.store.DeleteGrants(ctx, groupID, permissionIDs)
}

// ReassignUserGroups replaces a user's entire membership set. All target
// groups are validated before any mutation: each must exist and none may
// be root level, root membership is never grantable through this path.
func (s *Service) ReassignUserGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	for _, gid := range groupIDs {
		group, err := s.store.GetGroup(ctx, gid)
		if err != nil {
			return err
		}
		if group == nil {
			return apperr.NotFound(apperr.CodeTargetGroupAbsent, fmt.Sprintf("group %d does not exist", gid))
		}
		if group.Level == LevelRoot {
			return apperr.Forbidden(apperr.CodeRootGrantRefused, "users cannot be added to the root group")
		}
	}
	return s.store.ReplaceUserGroups(ctx, userID, groupIDs)
}

func (s *Service) requireGroup(ctx context.Context, groupID int64) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return apperr.NotFound(apperr.CodeGroupNotFound, "group not found")
	}
	return nil
}

// requireMounted fails unless every id resolves to a mounted permission
func (s *Service) requireMounted(ctx context.Context, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	perms, err := s.store.GetPermissionsByIDs(ctx, permissionIDs)
	if err != nil {
		return err
	}
	if len(perms) != len(distinct(permissionIDs)) {
		return apperr.NotFound(apperr.CodePermissionAbsent, "permission does not exist or is not mounted")
	}
	return nil
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	var out []int64
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// classifyConflict turns a unique-constraint violation into the given
// business conflict; anything else passes through unchanged.
func classifyConflict(err error, code int, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperr.Conflict(code, message)
	}
	return err
}
