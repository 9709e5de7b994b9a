// Package users implements account registration, login and profile
// endpoints, plus the administrative user-management API.
package users

import (
	"context"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/apperr"
	"github.com/quillcms/quill/pkg/auth"
	"github.com/quillcms/quill/pkg/observability"
)

// Service coordinates the auth layer and the access layer for user
// operations. Users holding root membership are shielded from every
// mutation on the general management path.
type Service struct {
	authService   *auth.Service
	accessService *access.Service
	checker       *access.Checker
	logger        *observability.Logger
}

// NewService creates a new user service
func NewService(authService *auth.Service, accessService *access.Service, checker *access.Checker, logger *observability.Logger) *Service {
	return &Service{
		authService:   authService,
		accessService: accessService,
		checker:       checker,
		logger:        logger,
	}
}

// Register creates a new account. With no explicit groups the user lands
// in guest; root membership is never grantable here.
func (s *Service) Register(ctx context.Context, username, password, email string, groupIDs []int64) (*auth.User, error) {
	store := s.accessService.Store()
	if len(groupIDs) == 0 {
		guest, err := store.GetGroupByLevel(ctx, access.LevelGuest)
		if err != nil {
			return nil, err
		}
		if guest == nil {
			return nil, apperr.NotFound(apperr.CodeGroupNotFound, "guest group is missing")
		}
		groupIDs = []int64{guest.ID}
	} else {
		for _, gid := range groupIDs {
			group, err := store.GetGroup(ctx, gid)
			if err != nil {
				return nil, err
			}
			if group == nil {
				return nil, apperr.NotFound(apperr.CodeTargetGroupAbsent, "target group does not exist")
			}
			if group.Level == access.LevelRoot {
				return nil, apperr.Forbidden(apperr.CodeRootGrantRefused, "users cannot be added to the root group")
			}
		}
	}

	user := &auth.User{Username: username, Email: email}
	if err := s.authService.CreateUser(ctx, user, password, groupIDs); err != nil {
		return nil, err
	}
	return user, nil
}

// UserWithGroups is a user together with their group memberships
type UserWithGroups struct {
	auth.User
	Groups []access.Group `json:"groups"`
}

// Information returns a user's profile with their groups
func (s *Service) Information(ctx context.Context, userID int64) (*UserWithGroups, error) {
	user, err := s.authService.Store().GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}
	groups, err := s.accessService.Store().GroupsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []access.Group{}
	}
	return &UserWithGroups{User: *user, Groups: groups}, nil
}

// PermissionView is a user's profile plus everything they may do
type PermissionView struct {
	auth.User
	Admin       bool                           `json:"admin"`
	Permissions map[string][]access.Permission `json:"permissions"`
}

// Permissions returns the caller's profile with their effective mounted
// permissions grouped by module. Root users are flagged admin; their
// permission map is empty because no check ever reaches it.
func (s *Service) Permissions(ctx context.Context, userID int64) (*PermissionView, error) {
	user, err := s.authService.Store().GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}

	isRoot, err := s.checker.IsRoot(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &PermissionView{
		User:        *user,
		Admin:       isRoot,
		Permissions: make(map[string][]access.Permission),
	}
	if isRoot {
		return view, nil
	}

	store := s.accessService.Store()
	groupIDs, err := store.GroupIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	for _, gid := range groupIDs {
		perms, err := store.PermissionsForGroup(ctx, gid)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			view.Permissions[p.Module] = append(view.Permissions[p.Module], p)
		}
	}
	return view, nil
}

// UpdateSelf updates the caller's own profile
func (s *Service) UpdateSelf(ctx context.Context, userID int64, nickname, avatar, email string) error {
	store := s.authService.Store()
	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}
	if email != "" && email != user.Email {
		other, err := store.GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if other != nil && other.ID != userID {
			return apperr.Conflict(apperr.CodeEmailTaken, "email is already registered")
		}
	}
	return store.UpdateUser(ctx, userID, nickname, avatar, email)
}

// ListUsers returns a page of non-root users with their groups. Root
// administrators are managed outside this API and never listed; they are
// excluded in the queries so pages stay full and the total matches what
// is listable.
func (s *Service) ListUsers(ctx context.Context, groupID int64, limit, offset int) ([]UserWithGroups, int64, error) {
	authStore := s.authService.Store()
	users, err := authStore.ListUsers(ctx, groupID, int(access.LevelRoot), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := authStore.CountUsers(ctx, groupID, int(access.LevelRoot))
	if err != nil {
		return nil, 0, err
	}

	accessStore := s.accessService.Store()
	result := make([]UserWithGroups, 0, len(users))
	for _, user := range users {
		groups, err := accessStore.GroupsForUser(ctx, user.ID)
		if err != nil {
			return nil, 0, err
		}
		if groups == nil {
			groups = []access.Group{}
		}
		result = append(result, UserWithGroups{User: user, Groups: groups})
	}
	return result, total, nil
}

// ChangeUserPassword is the administrative password reset
func (s *Service) ChangeUserPassword(ctx context.Context, targetID int64, newPassword string) error {
	if err := s.requireEditable(ctx, targetID, apperr.CodeRootUserImmutable, "root administrators cannot be modified here"); err != nil {
		return err
	}
	return s.authService.SetPassword(ctx, targetID, newPassword)
}

// DeleteUser removes an account and everything attached to it
func (s *Service) DeleteUser(ctx context.Context, targetID int64) error {
	if err := s.requireEditable(ctx, targetID, apperr.CodeRootUndeletable2, "root administrators cannot be deleted"); err != nil {
		return err
	}
	if err := s.authService.Store().DeleteUser(ctx, targetID); err != nil {
		return err
	}
	s.logger.WithField("user_id", targetID).Info("user deleted")
	return nil
}

// UpdateUserGroups replaces a user's group memberships
func (s *Service) UpdateUserGroups(ctx context.Context, targetID int64, groupIDs []int64) error {
	if err := s.requireEditable(ctx, targetID, apperr.CodeAdminUntouchable, "root administrators cannot be reassigned"); err != nil {
		return err
	}
	return s.accessService.ReassignUserGroups(ctx, targetID, groupIDs)
}

// requireEditable fails when the target is absent or holds root
// membership.
func (s *Service) requireEditable(ctx context.Context, targetID int64, rootCode int, rootMessage string) error {
	user, err := s.authService.Store().GetUser(ctx, targetID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}
	isRoot, err := s.checker.IsRoot(ctx, targetID)
	if err != nil {
		return err
	}
	if isRoot {
		return apperr.Forbidden(rootCode, rootMessage)
	}
	return nil
}
