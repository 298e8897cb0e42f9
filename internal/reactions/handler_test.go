package reactions

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/testutil"
)

func TestReactionsIdempotent(t *testing.T) {
	svc, _ := testutil.NewChat(chat.Options{})
	sc := testutil.NewScope(models.RoleUser)
	ctx := context.Background()
	th, err := svc.CreateThread(ctx, sc, chat.CreateThreadInput{Type: models.ThreadGlobal, Title: "t"})
	require.NoError(t, err)
	m, err := svc.SendMessage(ctx, sc, chat.SendMessageInput{ThreadID: th.ID, Content: "ship it"})
	require.NoError(t, err)

	srv := testutil.NewServer(sc)
	NewHandler(svc, nil).Register(srv.API)
	base := "/messages/" + m.ID.String() + "/reactions"

	code, body := srv.Do(t, http.MethodPost, base, map[string]string{"emoji": "🎉"})
	assert.Equal(t, http.StatusCreated, code)
	var first, again models.Reaction
	body.Decode(t, &first)
	code, body = srv.Do(t, http.MethodPost, base, map[string]string{"emoji": "🎉"})
	assert.Equal(t, http.StatusOK, code)
	body.Decode(t, &again)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, first.CreatedAt.Equal(again.CreatedAt))

	code, body = srv.Do(t, http.MethodPost, base, map[string]string{"emoji": "a b"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "emoji", body.Field)

	srv.As(testutil.Peer(sc, models.RoleUser))
	code, _ = srv.Do(t, http.MethodPost, base, map[string]string{"emoji": "🎉"})
	assert.Equal(t, http.StatusCreated, code)

	_, body = srv.Do(t, http.MethodGet, base, nil)
	var list []models.Reaction
	body.Decode(t, &list)
	assert.Len(t, list, 2)

	path := base + "/" + url.PathEscape("🎉")
	code, body = srv.Do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, code)
	var res struct {
		Removed bool `json:"removed"`
	}
	body.Decode(t, &res)
	assert.True(t, res.Removed)

	_, body = srv.Do(t, http.MethodDelete, path, nil)
	body.Decode(t, &res)
	assert.False(t, res.Removed)

	srv.As(testutil.NewScope(models.RoleUser))
	code, _ = srv.Do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
