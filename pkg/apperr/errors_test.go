package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromUnwrapsChain(t *testing.T) {
	base := NotFound(CodeBookNotFound, "book not found")
	wrapped := fmt.Errorf("handling request: %w", base)

	e := From(wrapped)
	require.NotNil(t, e)
	assert.Equal(t, CodeBookNotFound, e.Code)
	assert.Equal(t, http.StatusNotFound, e.Status)

	assert.Nil(t, From(errors.New("plain failure")))
	assert.Nil(t, From(nil))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeGroupNameTaken, CodeOf(Conflict(CodeGroupNameTaken, "taken")))
	assert.Equal(t, 0, CodeOf(errors.New("plain failure")))
}

func TestDeniedIsGeneric(t *testing.T) {
	e := Denied()
	assert.Equal(t, CodeAuthDenied, e.Code)
	assert.Equal(t, "permission denied", e.Message)
	assert.Equal(t, http.StatusForbidden, e.Status)
}

func TestConstructorStatuses(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound(CodeUserNotFound, "x").Status)
	assert.Equal(t, http.StatusForbidden, Forbidden(CodeRootUndeletable, "x").Status)
	assert.Equal(t, http.StatusConflict, Conflict(CodeDuplicateGrant, "x").Status)
	assert.Equal(t, http.StatusUnauthorized, AuthFailed(CodeAuthDenied, "x").Status)
	assert.Equal(t, http.StatusBadRequest, BadRequest(CodePasswordWrong, "x").Status)
}
