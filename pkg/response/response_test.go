package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dfworx/chat-backend/pkg/apperror"
)

func run(t *testing.T, path string, h gin.HandlerFunc) (int, Body) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x/:id", h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var b Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return w.Code, b
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		field  string
	}{
		{apperror.Validation("title", "title is required"), http.StatusBadRequest, CodeValidation, "title"},
		{apperror.NotFound("thread", uuid.New()), http.StatusNotFound, CodeNotFound, ""},
		{apperror.Conflict("name", "slug taken"), http.StatusConflict, CodeConflict, "name"},
		{apperror.TenantMismatch("tag", "other org"), http.StatusForbidden, CodeTenantMismatch, ""},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal, ""},
	}
	for _, tc := range cases {
		status, body := run(t, "/x/1", func(c *gin.Context) { Fail(c, zap.NewNop(), tc.err, "failed") })
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, body.Code)
		assert.Equal(t, tc.field, body.Field)
		assert.False(t, body.Success)
	}

	_, body := run(t, "/x/1", func(c *gin.Context) { Error(c, apperror.NotFound("message", uuid.New()), "x") })
	assert.Equal(t, "message is no longer available", body.Error)
}

func TestParamUUID(t *testing.T) {
	id := uuid.New()
	status, body := run(t, "/x/"+id.String(), func(c *gin.Context) {
		got, ok := ParamUUID(c, "id", "thread")
		require.True(t, ok)
		OK(c, got)
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, id.String(), body.Data)

	status, body = run(t, "/x/nope", func(c *gin.Context) {
		_, ok := ParamUUID(c, "id", "thread")
		assert.False(t, ok)
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid thread id", body.Error)
}

func TestQueryUUID(t *testing.T) {
	status, _ := run(t, "/x/1?thread_id=bad", func(c *gin.Context) {
		_, ok := QueryUUID(c, "thread_id")
		assert.False(t, ok)
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = run(t, "/x/1", func(c *gin.Context) {
		id, ok := QueryUUID(c, "thread_id")
		assert.True(t, ok)
		assert.Nil(t, id)
		OK(c, nil)
	})
	assert.Equal(t, http.StatusOK, status)
}
