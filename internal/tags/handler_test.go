package tags

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/testutil"
)

func TestTagRegistry(t *testing.T) {
	svc, _ := testutil.NewChat(chat.Options{})
	sc := testutil.NewScope(models.RoleUser)
	srv := testutil.NewServer(sc)
	NewHandler(svc, nil).Register(srv.API)

	create := func(name string, cat models.TagCategory) models.Tag {
		t.Helper()
		code, body := srv.Do(t, http.MethodPost, "/tags", map[string]interface{}{"name": name, "color": "#123456", "category": cat})
		require.Equal(t, http.StatusCreated, code, body.Error)
		var tag models.Tag
		body.Decode(t, &tag)
		return tag
	}
	bug := create("Bug Report", models.TagTopic)
	create("High", models.TagPriority)
	assert.Equal(t, "bug-report", bug.Slug)
	assert.True(t, bug.IsActive)

	code, body := srv.Do(t, http.MethodPost, "/tags", map[string]interface{}{"name": "bug report", "color": "#fff", "category": "topic"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body.Code)

	code, _ = srv.Do(t, http.MethodPost, "/tags", map[string]interface{}{"name": "x", "color": "#fff", "category": "mood"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = srv.Do(t, http.MethodGet, "/tags?category=topic", nil)
	require.Equal(t, http.StatusOK, code)
	var list []models.Tag
	body.Decode(t, &list)
	require.Len(t, list, 1)
	assert.Equal(t, bug.ID, list[0].ID)

	code, _ = srv.Do(t, http.MethodPost, "/tags/"+bug.ID.String()+"/deactivate", nil)
	assert.Equal(t, http.StatusForbidden, code)

	srv.As(testutil.Peer(sc, models.RoleModerator))
	code, body = srv.Do(t, http.MethodPost, "/tags/"+bug.ID.String()+"/deactivate", nil)
	require.Equal(t, http.StatusOK, code)
	var got models.Tag
	body.Decode(t, &got)
	assert.False(t, got.IsActive)

	_, body = srv.Do(t, http.MethodGet, "/tags/assignable", nil)
	body.Decode(t, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "high", list[0].Slug)

	_, body = srv.Do(t, http.MethodGet, "/tags?active=false", nil)
	body.Decode(t, &list)
	require.Len(t, list, 1)
	assert.Equal(t, bug.ID, list[0].ID)

	code, body = srv.Do(t, http.MethodGet, "/tags/"+bug.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	body.Decode(t, &got)
	assert.Equal(t, "Bug Report", got.Name)

	srv.As(testutil.NewScope(models.RoleAdmin))
	code, _ = srv.Do(t, http.MethodGet, "/tags/"+bug.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
}
