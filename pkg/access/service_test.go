package access

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/pkg/apperr"
	"github.com/quillcms/quill/pkg/observability"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	service := NewService(NewStore(db), logger)
	return service, mock, func() { db.Close() }
}

func groupColumns() []string {
	return []string{"id", "name", "info", "level", "create_time", "update_time"}
}

func groupRow(id int64, name string, level GroupLevel) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(groupColumns()).AddRow(id, name, "", level, now, now)
}

func permissionColumns() []string {
	return []string{"id", "name", "module", "mount", "create_time", "update_time"}
}

func permissionRow(id int64, name, module string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(permissionColumns()).AddRow(id, name, module, Mounted, now, now)
}

func TestService_DispatchPermission(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(3)).
		WillReturnRows(groupRow(3, "editors", LevelUser))
	mock.ExpectQuery("SELECT id, name, module, mount").
		WithArgs(pq.Array([]int64{7}), Mounted).
		WillReturnRows(permissionRow(7, "创建图书", "图书"))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO group_permissions").
		WithArgs(int64(3), int64(7)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, service.DispatchPermission(context.Background(), 3, 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_DispatchDuplicateGrantConflicts(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(3)).
		WillReturnRows(groupRow(3, "editors", LevelUser))
	mock.ExpectQuery("SELECT id, name, module, mount").
		WithArgs(pq.Array([]int64{7}), Mounted).
		WillReturnRows(permissionRow(7, "创建图书", "图书"))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	// No insert is attempted.

	err := service.DispatchPermission(context.Background(), 3, 7)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDuplicateGrant, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_DispatchUnmountedPermissionFails(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(3)).
		WillReturnRows(groupRow(3, "editors", LevelUser))
	// The id resolves to nothing mounted.
	mock.ExpectQuery("SELECT id, name, module, mount").
		WithArgs(pq.Array([]int64{9}), Mounted).
		WillReturnRows(sqlmock.NewRows(permissionColumns()))

	err := service.DispatchPermission(context.Background(), 3, 9)
	require.Error(t, err)
	assert.Equal(t, apperr.CodePermissionAbsent, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_DeleteProtectedGroupsForbidden(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(1)).
		WillReturnRows(groupRow(1, "root", LevelRoot))
	err := service.DeleteGroup(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRootUndeletable, apperr.CodeOf(err))

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(2)).
		WillReturnRows(groupRow(2, "guest", LevelGuest))
	err = service.DeleteGroup(context.Background(), 2)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeGuestUndeletable, apperr.CodeOf(err))

	// Neither attempt opened a transaction.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_DeleteGroupCascades(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(3)).
		WillReturnRows(groupRow(3, "editors", LevelUser))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE groups SET delete_time").
		WithArgs(sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM group_permissions").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM user_groups").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	require.NoError(t, service.DeleteGroup(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CreateGroupNameConflict(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs("editors").
		WillReturnRows(groupRow(3, "editors", LevelUser))

	_, err := service.CreateGroup(context.Background(), "editors", "", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeGroupNameTaken, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_CreateGroupWithGrants(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs("editors").
		WillReturnRows(sqlmock.NewRows(groupColumns()))
	mock.ExpectQuery("SELECT id, name, module, mount").
		WithArgs(pq.Array([]int64{7, 8}), Mounted).
		WillReturnRows(permissionRow(7, "创建图书", "图书").
			AddRow(8, "更新图书", "图书", Mounted, time.Now(), time.Now()))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO groups").
		WithArgs("editors", "book editors", LevelUser, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec("INSERT INTO group_permissions").
		WithArgs(int64(3), int64(7)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO group_permissions").
		WithArgs(int64(3), int64(8)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	group, err := service.CreateGroup(context.Background(), "editors", "book editors", []int64{7, 8})
	require.NoError(t, err)
	assert.Equal(t, int64(3), group.ID)
	assert.Equal(t, LevelUser, group.Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_RemovePermissionsRequiresMountedIDs(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(3)).
		WillReturnRows(groupRow(3, "editors", LevelUser))
	// Only one of the two ids is mounted: the whole call fails.
	mock.ExpectQuery("SELECT id, name, module, mount").
		WithArgs(pq.Array([]int64{7, 9}), Mounted).
		WillReturnRows(permissionRow(7, "创建图书", "图书"))

	err := service.RemovePermissions(context.Background(), 3, []int64{7, 9})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePermissionAbsent, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_RemovePermissionsIgnoresAbsentGrants(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(3)).
		WillReturnRows(groupRow(3, "editors", LevelUser))
	mock.ExpectQuery("SELECT id, name, module, mount").
		WithArgs(pq.Array([]int64{7}), Mounted).
		WillReturnRows(permissionRow(7, "创建图书", "图书"))
	// The group never held this grant; the delete touches zero rows and
	// the call still succeeds.
	mock.ExpectExec("DELETE FROM group_permissions").
		WithArgs(int64(3), pq.Array([]int64{7})).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, service.RemovePermissions(context.Background(), 3, []int64{7}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ReassignUserGroupsRefusesRoot(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(1)).
		WillReturnRows(groupRow(1, "root", LevelRoot))

	err := service.ReassignUserGroups(context.Background(), 8, []int64{1})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRootGrantRefused, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ReassignUserGroupsValidatesBeforeMutation(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(3)).
		WillReturnRows(groupRow(3, "editors", LevelUser))
	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(groupColumns()))
	// No transaction was opened: the second target is missing.

	err := service.ReassignUserGroups(context.Background(), 8, []int64{3, 99})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTargetGroupAbsent, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ReassignUserGroupsReplacesMemberships(t *testing.T) {
	service, mock, cleanup := newTestService(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, name, info, level").WithArgs(int64(3)).
		WillReturnRows(groupRow(3, "editors", LevelUser))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM user_groups").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO user_groups").
		WithArgs(int64(8), int64(3)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, service.ReassignUserGroups(context.Background(), 8, []int64{3}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyConflict(t *testing.T) {
	// Unique violations become the given business conflict.
	uniqueErr := fmt.Errorf("failed to create grant: %w", &pq.Error{Code: "23505"})
	err := classifyConflict(uniqueErr, apperr.CodeDuplicateGrant, "duplicate")
	assert.Equal(t, apperr.CodeDuplicateGrant, apperr.CodeOf(err))

	// Anything else passes through unchanged.
	plain := fmt.Errorf("connection reset")
	assert.Equal(t, plain, classifyConflict(plain, apperr.CodeDuplicateGrant, "duplicate"))
}
