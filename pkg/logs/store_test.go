package logs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db), mock, func() { db.Close() }
}

func entryColumns() []string {
	return []string{"id", "message", "user_id", "username", "status_code", "method", "path", "permission", "create_time"}
}

func TestStore_Insert(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO request_logs").
		WithArgs("alice DELETE /v1/book/3", int64(7), "alice", 201, "DELETE", "/v1/book/3", "删除图书").
		WillReturnRows(sqlmock.NewRows([]string{"id", "create_time"}).AddRow(1, time.Now()))

	entry := &Entry{
		Message:    "alice DELETE /v1/book/3",
		UserID:     7,
		Username:   "alice",
		StatusCode: 201,
		Method:     "DELETE",
		Path:       "/v1/book/3",
		Permission: "删除图书",
	}
	require.NoError(t, store.Insert(context.Background(), entry))
	assert.Equal(t, int64(1), entry.ID)
}

func TestStore_ListUnfiltered(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT id, message").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow(2, "alice POST /v1/book", 7, "alice", 201, "POST", "/v1/book", "创建图书", time.Now()).
			AddRow(1, "alice PUT /v1/book/1", 7, "alice", 201, "PUT", "/v1/book/1", "更新图书", time.Now()))

	entries, total, err := store.List(context.Background(), Filter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, "创建图书", entries[0].Permission)
}

func TestStore_ListCombinedFilter(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	// Username, time window and keyword all become placeholders in order.
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("alice", start, end, "%book%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT id, message").
		WithArgs("alice", start, end, "%book%", 10, 0).
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow(1, "alice POST /v1/book", 7, "alice", 201, "POST", "/v1/book", "创建图书", time.Now()))

	entries, total, err := store.List(context.Background(), Filter{
		Username: "alice",
		Keyword:  "book",
		Start:    &start,
		End:      &end,
		Limit:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, entries, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildConditions(t *testing.T) {
	where, args := buildConditions(Filter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = buildConditions(Filter{Username: "alice"})
	assert.Equal(t, " WHERE username = $1", where)
	assert.Equal(t, []interface{}{"alice"}, args)

	where, args = buildConditions(Filter{Keyword: "book"})
	assert.Equal(t, " WHERE message LIKE $1", where)
	assert.Equal(t, []interface{}{"%book%"}, args)

	start := time.Now().Add(-time.Hour)
	end := time.Now()
	where, args = buildConditions(Filter{Username: "alice", Keyword: "book", Start: &start, End: &end})
	assert.Equal(t, " WHERE username = $1 AND create_time BETWEEN $2 AND $3 AND message LIKE $4", where)
	assert.Len(t, args, 4)
}

func TestStore_ListUsernames(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT username FROM request_logs").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"username"}).AddRow("alice").AddRow("root"))

	names, err := store.ListUsernames(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "root"}, names)
}

func TestStore_DeleteBefore(t *testing.T) {
	store, mock, cleanup := newTestStore(t)
	defer cleanup()

	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM request_logs").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 17))

	deleted, err := store.DeleteBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(17), deleted)
}
