package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination_Defaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/cms/admin/users", nil)
	p, err := ParsePagination(r)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Page)
	assert.Equal(t, 10, p.Count)
	assert.Equal(t, 0, p.Offset())
}

func TestParsePagination_Explicit(t *testing.T) {
	r := httptest.NewRequest("GET", "/cms/admin/users?page=3&count=25", nil)
	p, err := ParsePagination(r)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 25, p.Count)
	assert.Equal(t, 75, p.Offset())
}

func TestParsePagination_Invalid(t *testing.T) {
	for _, query := range []string{
		"page=-1",
		"count=0",
		"count=101",
		"page=abc",
		"count=abc",
	} {
		r := httptest.NewRequest("GET", "/cms/admin/users?"+query, nil)
		_, err := ParsePagination(r)
		assert.Error(t, err, query)
	}
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?n=7", nil)
	n, err := ParseQueryInt(r, "n", 1)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = ParseQueryInt(r, "missing", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
