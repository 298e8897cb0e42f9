package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfworx/chat-backend/internal/chat"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

type stubEngine struct {
	mu      sync.Mutex
	healthy bool
	hits    []Hit
	err     error
	queries []Query
	indexed map[string]MessageRecord
	log     []string
}

func newStubEngine() *stubEngine {
	return &stubEngine{healthy: true, indexed: map[string]MessageRecord{}}
}

func (e *stubEngine) Healthy() bool { return e.healthy }

func (e *stubEngine) Search(q Query) ([]Hit, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, q)
	return e.hits, len(e.hits), e.err
}

func (e *stubEngine) IndexMessage(rec MessageRecord) error {
	return e.IndexMessages([]MessageRecord{rec})
}

func (e *stubEngine) IndexMessages(recs []MessageRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range recs {
		e.indexed[r.ID] = r
		e.log = append(e.log, "index:"+r.Content)
	}
	return nil
}

func (e *stubEngine) DeleteMessage(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.indexed, id)
	e.log = append(e.log, "delete")
	return nil
}

type env struct {
	chat   *chat.Service
	search *Service
	engine *stubEngine
	sc     tenant.Scope
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := store.NewMemory()
	e := &env{
		engine: newStubEngine(),
		sc:     tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: models.RoleUser, Email: "ana@acme.test"},
	}
	e.search = NewService(e.engine, st, nil, nil)
	e.chat = chat.NewService(chat.Deps{Store: st, Indexer: e.search}, chat.Options{})
	return e
}

func (e *env) thread(t *testing.T, sc tenant.Scope) *models.Thread {
	t.Helper()
	th, err := e.chat.CreateThread(context.Background(), sc, chat.CreateThreadInput{Type: models.ThreadGlobal, Title: "General"})
	require.NoError(t, err)
	return th
}

func (e *env) send(t *testing.T, sc tenant.Scope, threadID uuid.UUID, content string) *models.Message {
	t.Helper()
	m, err := e.chat.SendMessage(context.Background(), sc, chat.SendMessageInput{ThreadID: threadID, Content: content})
	require.NoError(t, err)
	return m
}

func TestIndexerFollowsMessageWrites(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	th := e.thread(t, e.sc)
	m := e.send(t, e.sc, th.ID, "deploy is green")

	_, err := e.chat.EditMessage(ctx, e.sc, m.ID, "deploy is red")
	require.NoError(t, err)
	e.search.Wait()
	rec, ok := e.engine.indexed[m.ID.String()]
	require.True(t, ok)
	assert.Equal(t, "deploy is red", rec.Content)
	assert.Equal(t, e.sc.OrganizationID.String(), rec.OrganizationID)
	assert.Equal(t, "ana", rec.AuthorName)

	_, err = e.chat.SoftDeleteMessage(ctx, e.sc, m.ID)
	require.NoError(t, err)
	e.search.Wait()
	assert.NotContains(t, e.engine.indexed, m.ID.String())
}

func TestIndexWritesApplyInOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	th := e.thread(t, e.sc)
	m := e.send(t, e.sc, th.ID, "v0")

	want := []string{"index:v0"}
	for i := 1; i <= 50; i++ {
		content := fmt.Sprintf("v%d", i)
		_, err := e.chat.EditMessage(ctx, e.sc, m.ID, content)
		require.NoError(t, err)
		want = append(want, "index:"+content)
	}
	_, err := e.chat.SoftDeleteMessage(ctx, e.sc, m.ID)
	require.NoError(t, err)
	want = append(want, "delete")

	e.search.Wait()
	assert.Equal(t, want, e.engine.log)
	assert.NotContains(t, e.engine.indexed, m.ID.String())
}

func TestSearchHydratesEngineHits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	th := e.thread(t, e.sc)
	live := e.send(t, e.sc, th.ID, "release notes drafted")
	gone := e.send(t, e.sc, th.ID, "release blocked")
	_, err := e.chat.SoftDeleteMessage(ctx, e.sc, gone.ID)
	require.NoError(t, err)

	other := tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: models.RoleUser}
	foreign := e.send(t, other, e.thread(t, other).ID, "release elsewhere")

	e.engine.hits = []Hit{
		{ID: live.ID, Snippet: "<mark>release</mark> notes drafted", Score: 0.9},
		{ID: gone.ID, Score: 0.8},
		{ID: foreign.ID, Score: 0.7},
		{ID: uuid.New(), Score: 0.6},
	}
	resp, err := e.search.SearchMessages(ctx, e.sc, Input{Text: "release", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, EngineMeili, resp.Engine)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, live.ID, resp.Messages[0].Message.ID)
	assert.Equal(t, 0.9, resp.Messages[0].RelevanceScore)
	require.NotNil(t, resp.Messages[0].Thread)
	assert.Equal(t, th.ID, resp.Messages[0].Thread.ID)

	require.Len(t, e.engine.queries, 1)
	assert.Equal(t, e.sc.OrganizationID, e.engine.queries[0].OrganizationID)
}

func TestSearchFallsBackToStore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	th := e.thread(t, e.sc)
	e.send(t, e.sc, th.ID, "Quarterly planning starts Monday")
	e.send(t, e.sc, th.ID, "unrelated")
	other := tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: models.RoleUser}
	e.send(t, other, e.thread(t, other).ID, "planning for them")

	e.engine.err = errors.New("meili down")
	resp, err := e.search.SearchMessages(ctx, e.sc, Input{Text: "PLANNING"})
	require.NoError(t, err)
	assert.Equal(t, EngineStore, resp.Engine)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "Quarterly <mark>planning</mark> starts Monday", resp.Messages[0].MatchSnippet)
	assert.Zero(t, resp.Messages[0].RelevanceScore)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, defaultLimit, resp.PageSize)

	e.engine.healthy = false
	resp, err = e.search.SearchMessages(ctx, e.sc, Input{Text: "planning", ThreadID: &th.ID})
	require.NoError(t, err)
	assert.Len(t, resp.Messages, 1)
}

func TestSearchValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.search.SearchMessages(ctx, e.sc, Input{Text: "  "})
	assert.True(t, apperror.IsValidation(err))

	missing := uuid.New()
	_, err = e.search.SearchMessages(ctx, e.sc, Input{Text: "x", ThreadID: &missing})
	assert.True(t, apperror.IsNotFound(err))

	other := tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: models.RoleUser}
	theirs := e.thread(t, other)
	_, err = e.search.SearchMessages(ctx, e.sc, Input{Text: "x", ThreadID: &theirs.ID})
	assert.True(t, apperror.IsNotFound(err))
}

func TestReindexBatches(t *testing.T) {
	e := newEnv(t)
	th := e.thread(t, e.sc)
	for i := 0; i < 5; i++ {
		e.send(t, e.sc, th.ID, "message")
	}
	e.search.Wait()
	e.engine.indexed = map[string]MessageRecord{}

	n, err := e.search.Reindex(context.Background(), e.sc.OrganizationID, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, e.engine.indexed, 5)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "say <mark>Hello</mark> there", Snippet("say Hello there", "hello"))
	assert.Equal(t, "no match here", Snippet("no match here", "missing"))

	long := strings.Repeat("a", 100) + "needle" + strings.Repeat("b", 100)
	got := Snippet(long, "needle")
	assert.True(t, strings.HasPrefix(got, "…"))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Contains(t, got, "<mark>needle</mark>")
}

func TestHitDecoding(t *testing.T) {
	raw := func(v interface{}) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	hit := meili.Hit{
		"id":            raw("abc"),
		"content":       raw("plain"),
		"_rankingScore": raw(0.42),
		"_formatted":    raw(map[string]string{"content": "<mark>plain</mark>"}),
	}
	assert.Equal(t, "abc", decodeString(hit, "id"))
	assert.Equal(t, 0.42, decodeFloat(hit, "_rankingScore"))
	assert.Equal(t, "<mark>plain</mark>", decodeFormattedString(hit, "content"))
	assert.Equal(t, "", decodeString(hit, "missing"))
	assert.Equal(t, "fallback", firstNonBlank(" ", "fallback"))
}
