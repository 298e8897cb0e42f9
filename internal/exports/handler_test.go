package exports

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/export"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/internal/testutil"
	"github.com/dfworx/chat-backend/pkg/queue"
)

type fakePresigner struct{}

func (fakePresigner) PresignExportDownload(_ context.Context, key, _ string) (string, error) {
	return "https://objects.test/" + key, nil
}

type env struct {
	srv    *testutil.Server
	jobs   *export.Jobs
	thread *models.Thread
	sc     tenant.Scope
}

func setup(t *testing.T, withJobs bool) *env {
	t.Helper()
	svc, _ := testutil.NewChat(chat.Options{})
	sc := testutil.NewScope(models.RoleUser)
	ctx := context.Background()
	th, err := svc.CreateThread(ctx, sc, chat.CreateThreadInput{Type: models.ThreadGlobal, Title: "Quarterly Review"})
	require.NoError(t, err)
	for _, content := range []string{"numbers look good", "agreed"} {
		_, err := svc.SendMessage(ctx, sc, chat.SendMessageInput{ThreadID: th.ID, Content: content})
		require.NoError(t, err)
	}

	e := &env{thread: th, sc: sc}
	if withJobs {
		s := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		e.jobs = export.NewJobs(rdb, queue.NewQueue(rdb, nil), svc, 0, nil)
	}
	e.srv = testutil.NewServer(sc)
	NewHandler(export.NewExporter(svc, 0, nil, nil), e.jobs, fakePresigner{}, nil).Register(e.srv.API)
	return e
}

func TestSyncExportReturnsFile(t *testing.T) {
	e := setup(t, false)
	w := e.srv.Raw(t, http.MethodPost, "/threads/"+e.thread.ID.String()+"/export", map[string]interface{}{"format": "json"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), `attachment; filename=quarterly-review-`))

	var doc export.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Len(t, doc.Messages, 2)
	assert.Equal(t, "Quarterly Review", doc.Thread.Title)

	w = e.srv.Raw(t, http.MethodPost, "/threads/"+e.thread.ID.String()+"/export", map[string]interface{}{"format": "markdown"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# Quarterly Review")

	code, body := e.srv.Do(t, http.MethodPost, "/threads/"+e.thread.ID.String()+"/export", map[string]interface{}{"format": "pdf"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "format", body.Field)
}

func TestExportIncludeDeletedNeedsModerator(t *testing.T) {
	e := setup(t, false)
	path := "/threads/" + e.thread.ID.String() + "/export"
	body := map[string]interface{}{"format": "json", "include_deleted": true}

	code, _ := e.srv.Do(t, http.MethodPost, path, body)
	assert.Equal(t, http.StatusForbidden, code)

	e.srv.As(testutil.Peer(e.sc, models.RoleModerator))
	w := e.srv.Raw(t, http.MethodPost, path, body)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAsyncExportWithoutJobs(t *testing.T) {
	e := setup(t, false)
	code, _ := e.srv.Do(t, http.MethodPost, "/threads/"+e.thread.ID.String()+"/export?async=true", map[string]interface{}{"format": "json"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAsyncExportLifecycle(t *testing.T) {
	e := setup(t, true)
	code, body := e.srv.Do(t, http.MethodPost, "/threads/"+e.thread.ID.String()+"/export?async=true", map[string]interface{}{"format": "markdown"})
	require.Equal(t, http.StatusAccepted, code, body.Error)
	var job export.Job
	body.Decode(t, &job)
	assert.Equal(t, export.JobQueued, job.State)

	code, body = e.srv.Do(t, http.MethodGet, "/exports/"+job.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	var view JobView
	body.Decode(t, &view)
	assert.Equal(t, export.JobQueued, view.State)
	assert.Empty(t, view.DownloadURL)

	stored, err := e.jobs.Load(context.Background(), job.ID)
	require.NoError(t, err)
	stored.State = export.JobCompleted
	stored.Filename = "quarterly-review.md"
	stored.ObjectKey = export.ObjectKey(stored.OrganizationID, stored.ID, stored.Filename)
	require.NoError(t, e.jobs.Save(context.Background(), stored))

	_, body = e.srv.Do(t, http.MethodGet, "/exports/"+job.ID.String(), nil)
	body.Decode(t, &view)
	assert.Equal(t, export.JobCompleted, view.State)
	assert.Equal(t, "https://objects.test/"+stored.ObjectKey, view.DownloadURL)

	e.srv.As(testutil.NewScope(models.RoleAdmin))
	code, _ = e.srv.Do(t, http.MethodGet, "/exports/"+job.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.srv.Do(t, http.MethodPost, "/threads/"+e.thread.ID.String()+"/export?async=true", map[string]interface{}{"format": "json"})
	assert.Equal(t, http.StatusNotFound, code)
}
