package access

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/quill/pkg/apperr"
)

func newTestChecker(t *testing.T, declared ...[4]string) (*Checker, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	registry := NewRegistry()
	for _, d := range declared {
		require.NoError(t, registry.Register(d[0], d[1], d[2], d[3]))
	}
	registry.Freeze()

	checker := NewChecker(NewStore(db), registry, nil)
	return checker, mock, func() { db.Close() }
}

func expectGroupIDs(mock sqlmock.Sqlmock, ids ...int64) {
	rows := sqlmock.NewRows([]string{"group_id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	mock.ExpectQuery("SELECT group_id FROM user_groups").WillReturnRows(rows)
}

func expectRootCheck(mock sqlmock.Sqlmock, isRoot bool) {
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(isRoot))
}

func expectGrantCheck(mock sqlmock.Sqlmock, granted bool) {
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(granted))
}

func TestChecker_RootShortCircuits(t *testing.T) {
	checker, mock, cleanup := newTestChecker(t,
		[4]string{"DELETE", "/v1/book/{id}", "删除图书", "图书"})
	defer cleanup()

	expectGroupIDs(mock, 1)
	expectRootCheck(mock, true)
	// No grant lookup happens for root users.

	err := checker.Check(context.Background(), 1, "DELETE", "/v1/book/{id}")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChecker_UnregisteredRoutePassesThrough(t *testing.T) {
	checker, mock, cleanup := newTestChecker(t)
	defer cleanup()

	expectGroupIDs(mock, 5)
	expectRootCheck(mock, false)

	err := checker.Check(context.Background(), 2, "GET", "/v1/book")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChecker_GrantedPermissionAllows(t *testing.T) {
	checker, mock, cleanup := newTestChecker(t,
		[4]string{"POST", "/v1/book", "创建图书", "图书"})
	defer cleanup()

	expectGroupIDs(mock, 5)
	expectRootCheck(mock, false)
	expectGrantCheck(mock, true)

	err := checker.Check(context.Background(), 2, "POST", "/v1/book")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChecker_MissingGrantDenies(t *testing.T) {
	checker, mock, cleanup := newTestChecker(t,
		[4]string{"DELETE", "/v1/book/{id}", "删除图书", "图书"})
	defer cleanup()

	expectGroupIDs(mock, 5)
	expectRootCheck(mock, false)
	expectGrantCheck(mock, false)

	err := checker.Check(context.Background(), 2, "DELETE", "/v1/book/{id}")
	require.Error(t, err)

	e := apperr.From(err)
	require.NotNil(t, e)
	assert.Equal(t, apperr.CodeAuthDenied, e.Code)
	// Denials never reveal which permission was missing.
	assert.Equal(t, "permission denied", e.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChecker_GuestWithoutGrantsDenied(t *testing.T) {
	checker, mock, cleanup := newTestChecker(t,
		[4]string{"DELETE", "/v1/book/{id}", "删除图书", "图书"})
	defer cleanup()

	// User belongs only to the guest group, which has no grants.
	expectGroupIDs(mock, 2)
	expectRootCheck(mock, false)
	expectGrantCheck(mock, false)

	err := checker.Check(context.Background(), 9, "DELETE", "/v1/book/{id}")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAuthDenied, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChecker_CheckAdmin(t *testing.T) {
	checker, mock, cleanup := newTestChecker(t)
	defer cleanup()

	expectRootCheck(mock, true)
	require.NoError(t, checker.CheckAdmin(context.Background(), 1))

	expectRootCheck(mock, false)
	err := checker.CheckAdmin(context.Background(), 2)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAuthDenied, apperr.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
