package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillcms/quill/pkg/middleware"
)

func TestStatusRecorder(t *testing.T) {
	var recorder *middleware.StatusRecorder = middleware.NewStatusRecorder(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, recorder.Status())

	recorder.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, recorder.Status())
}
