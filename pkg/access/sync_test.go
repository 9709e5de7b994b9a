package access

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/pkg/observability"
)

func newTestSynchronizer(t *testing.T, declared ...[4]string) (*Synchronizer, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	registry := NewRegistry()
	for _, d := range declared {
		require.NoError(t, registry.Register(d[0], d[1], d[2], d[3]))
	}
	registry.Freeze()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	sync := NewSynchronizer(db, registry, logger, nil)
	return sync, mock, func() { db.Close() }
}

func persistedRows(rows ...[4]interface{}) *sqlmock.Rows {
	result := sqlmock.NewRows([]string{"id", "name", "module", "mount"})
	for _, r := range rows {
		result.AddRow(r[0], r[1], r[2], r[3])
	}
	return result
}

func TestSynchronizer_InsertsNewDeclarations(t *testing.T) {
	sync, mock, cleanup := newTestSynchronizer(t,
		[4]string{"GET", "/cms/admin/users", "查看用户", "用户管理"})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, module, mount").WillReturnRows(persistedRows())
	mock.ExpectExec("INSERT INTO permissions").
		WithArgs("查看用户", "用户管理", Mounted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, sync.Synchronize(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSynchronizer_SecondRunIsNoOp(t *testing.T) {
	sync, mock, cleanup := newTestSynchronizer(t,
		[4]string{"GET", "/cms/admin/users", "查看用户", "用户管理"})
	defer cleanup()

	// The row already exists and is mounted: no insert, no flag churn.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, module, mount").
		WillReturnRows(persistedRows([4]interface{}{1, "查看用户", "用户管理", Mounted}))
	mock.ExpectCommit()

	require.NoError(t, sync.Synchronize(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSynchronizer_UnmountsStaleAndPurgesGrants(t *testing.T) {
	sync, mock, cleanup := newTestSynchronizer(t)
	defer cleanup()

	// Permission 9 lost its declaring route: it is unmounted first, then
	// every grant referencing it goes, all in the same transaction.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, module, mount").
		WillReturnRows(persistedRows([4]interface{}{9, "删除图书", "图书", Mounted}))
	mock.ExpectExec("UPDATE permissions SET mount").
		WithArgs(Unmounted, sqlmock.AnyArg(), pq.Array([]int64{9})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM group_permissions").
		WithArgs(pq.Array([]int64{9})).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, sync.Synchronize(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSynchronizer_RemountsRedeclaredPermission(t *testing.T) {
	sync, mock, cleanup := newTestSynchronizer(t,
		[4]string{"POST", "/v1/book", "创建图书", "图书"})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, module, mount").
		WillReturnRows(persistedRows([4]interface{}{4, "创建图书", "图书", Unmounted}))
	mock.ExpectExec("UPDATE permissions SET mount").
		WithArgs(Mounted, sqlmock.AnyArg(), pq.Array([]int64{4})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, sync.Synchronize(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSynchronizer_FailureRollsBackEverything(t *testing.T) {
	sync, mock, cleanup := newTestSynchronizer(t,
		[4]string{"GET", "/cms/admin/users", "查看用户", "用户管理"})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name, module, mount").WillReturnRows(persistedRows())
	mock.ExpectExec("INSERT INTO permissions").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := sync.Synchronize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
