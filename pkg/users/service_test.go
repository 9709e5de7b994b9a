package users

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/pkg/access"
	"github.com/quillcms/quill/pkg/apperr"
	"github.com/quillcms/quill/pkg/auth"
	"github.com/quillcms/quill/pkg/observability"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	authService, err := auth.NewService(auth.NewStore(db), 64, time.Hour, 24*time.Hour, logger)
	require.NoError(t, err)

	registry := access.NewRegistry()
	registry.Freeze()
	accessStore := access.NewStore(db)
	accessService := access.NewService(accessStore, logger)
	checker := access.NewChecker(accessStore, registry, nil)

	service := NewService(authService, accessService, checker, logger)
	return service, mock, func() { db.Close() }
}

func groupColumns() []string {
	return []string{"id", "name", "info", "level", "create_time", "update_time"}
}

func groupRow(id int64, name string, level access.GroupLevel) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(groupColumns()).AddRow(id, name, "", level, now, now)
}

func userColumns() []string {
	return []string{"id", "username", "nickname", "avatar", "email", "create_time", "update_time"}
}

func userRow(id int64, username string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userColumns()).AddRow(id, username, "", "", "", now, now)
}

func expectIsRoot(mock sqlmock.Sqlmock, isRoot bool) {
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(isRoot))
}

func TestService_RegisterDefaultsToGuest(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").
		WithArgs(access.LevelGuest).
		WillReturnRows(groupRow(2, "guest", access.LevelGuest))
	mock.ExpectQuery("SELECT id, username").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumns()))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("INSERT INTO user_identities").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO user_groups").
		WithArgs(int64(9), int64(2)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user, err := service.Register(context.Background(), "alice", "passw0rd", "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9), user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_RegisterRefusesRootGroup(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(1)).
		WillReturnRows(groupRow(1, "root", access.LevelRoot))

	_, err := service.Register(context.Background(), "mallory", "passw0rd", "", []int64{1})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRootGrantRefused, apperr.CodeOf(err))
}

func TestService_RegisterMissingGroup(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(groupColumns()))

	_, err := service.Register(context.Background(), "alice", "passw0rd", "", []int64{99})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTargetGroupAbsent, apperr.CodeOf(err))
}

func TestService_ChangeUserPasswordShieldsRoot(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username").WithArgs(int64(1)).
		WillReturnRows(userRow(1, "root"))
	expectIsRoot(mock, true)

	err := service.ChangeUserPassword(context.Background(), 1, "new-pass")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRootUserImmutable, apperr.CodeOf(err))
}

func TestService_DeleteUserShieldsRoot(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username").WithArgs(int64(1)).
		WillReturnRows(userRow(1, "root"))
	expectIsRoot(mock, true)

	err := service.DeleteUser(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRootUndeletable2, apperr.CodeOf(err))
}

func TestService_DeleteUserCascades(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username").WithArgs(int64(9)).
		WillReturnRows(userRow(9, "alice"))
	expectIsRoot(mock, false)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET delete_time").
		WithArgs(sqlmock.AnyArg(), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM user_identities").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM user_groups").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM auth_tokens").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, service.DeleteUser(context.Background(), 9))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_UpdateUserGroupsShieldsRoot(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username").WithArgs(int64(1)).
		WillReturnRows(userRow(1, "root"))
	expectIsRoot(mock, true)

	err := service.UpdateUserGroups(context.Background(), 1, []int64{3})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAdminUntouchable, apperr.CodeOf(err))
}

func TestService_ListUsersExcludesRootMembersInQueries(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	now := time.Now()
	// Both the page and the count carry the root-level exclusion, so a
	// root member elsewhere in the table never pads the total or punches
	// a hole in a page.
	mock.ExpectQuery("SELECT u.id, u.username").
		WithArgs(int(access.LevelRoot), 2, 0).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(9, "alice", "", "", "", now, now).
			AddRow(10, "bob", "", "", "", now, now))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int(access.LevelRoot)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT g.id, g.name").WithArgs(int64(9)).
		WillReturnRows(groupRow(2, "guest", access.LevelGuest))
	mock.ExpectQuery("SELECT g.id, g.name").WithArgs(int64(10)).
		WillReturnRows(groupRow(3, "editors", access.LevelUser))

	users, total, err := service.ListUsers(context.Background(), 0, 2, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(len(users)), total)
	assert.Equal(t, "alice", users[0].Username)
	require.Len(t, users[0].Groups, 1)
	assert.Equal(t, access.LevelGuest, users[0].Groups[0].Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ListUsersByGroupKeepsExclusion(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT u.id, u.username").
		WithArgs(int64(3), int(access.LevelRoot), 10, 0).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(10, "bob", "", "", "", now, now))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(3), int(access.LevelRoot)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT g.id, g.name").WithArgs(int64(10)).
		WillReturnRows(groupRow(3, "editors", access.LevelUser))

	users, total, err := service.ListUsers(context.Background(), 3, 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(1), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_PermissionsForRootAreEmpty(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, username").WithArgs(int64(1)).
		WillReturnRows(userRow(1, "root"))
	expectIsRoot(mock, true)

	view, err := service.Permissions(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, view.Admin)
	assert.Empty(t, view.Permissions)
}

func TestService_PermissionsGroupedByModule(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT id, username").WithArgs(int64(9)).
		WillReturnRows(userRow(9, "alice"))
	expectIsRoot(mock, false)
	mock.ExpectQuery("SELECT group_id FROM user_groups").WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(3))
	mock.ExpectQuery("SELECT p.id, p.name").WithArgs(int64(3), access.Mounted).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "module", "mount", "create_time", "update_time"}).
			AddRow(4, "创建图书", "图书", access.Mounted, now, now).
			AddRow(5, "查询所有日志", "日志", access.Mounted, now, now))

	view, err := service.Permissions(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, view.Admin)
	require.Len(t, view.Permissions["图书"], 1)
	require.Len(t, view.Permissions["日志"], 1)
	assert.Equal(t, "创建图书", view.Permissions["图书"][0].Name)
}
