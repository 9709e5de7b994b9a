package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("GET", "/cms/log", "查询所有日志", "日志"))
	require.NoError(t, r.Register("POST", "/v1/book", "创建图书", "图书"))

	meta, ok := r.Lookup("GET", "/cms/log")
	require.True(t, ok)
	assert.Equal(t, "查询所有日志", meta.Permission)
	assert.Equal(t, "日志", meta.Module)

	// Method is part of the key
	_, ok = r.Lookup("POST", "/cms/log")
	assert.False(t, ok)

	_, ok = r.Lookup("GET", "/nope")
	assert.False(t, ok)
}

func TestRegistry_LookupIsCaseInsensitiveOnMethod(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("get", "/v1/book", "创建图书", "图书"))

	_, ok := r.Lookup("GET", "/v1/book")
	assert.True(t, ok)
}

func TestRegistry_DuplicateRouteFailsFast(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("GET", "/cms/log", "查询所有日志", "日志"))

	err := r.Register("GET", "/cms/log", "别的权限", "日志")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_SharedPermissionAcrossRoutes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("GET", "/cms/log", "查询所有日志", "日志"))
	require.NoError(t, r.Register("GET", "/cms/log/search", "查询所有日志", "日志"))

	declared := r.Declared()
	assert.Len(t, declared, 1)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_DeclaredIsSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("DELETE", "/v1/book/{id}", "删除图书", "图书"))
	require.NoError(t, r.Register("GET", "/cms/log", "查询所有日志", "日志"))
	require.NoError(t, r.Register("POST", "/v1/book", "创建图书", "图书"))

	declared := r.Declared()
	require.Len(t, declared, 3)
	assert.Equal(t, Meta{Permission: "创建图书", Module: "图书"}, declared[0])
	assert.Equal(t, Meta{Permission: "删除图书", Module: "图书"}, declared[1])
	assert.Equal(t, Meta{Permission: "查询所有日志", Module: "日志"}, declared[2])
}

func TestRegistry_FreezeRejectsRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("GET", "/cms/log", "查询所有日志", "日志"))
	r.Freeze()

	err := r.Register("GET", "/cms/log/users", "查询日志记录的用户", "日志")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")

	// Lookups still work
	_, ok := r.Lookup("GET", "/cms/log")
	assert.True(t, ok)
}

func TestRegistry_RejectsEmptyDeclaration(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("GET", "/x", "", "日志"))
	assert.Error(t, r.Register("GET", "/x", "查询", ""))
}
