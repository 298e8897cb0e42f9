package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfworx/chat-backend/internal/models"
)

// runStoreTests checks the behavior every Store must share. open returns a
// store that may hold other tests' rows; each case works in fresh
// organizations.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"seq breaks created_at ties", testSeqOrder},
		{"lists are tenant scoped", testTenantScoped},
		{"thread and message queries ignore case", testQueries},
		{"duplicate link leaves no message", testDuplicateLink},
		{"tag slug unique per org", testTagSlug},
		{"concurrent reactions insert once", testConcurrentReactions},
		{"tombstones stay listable", testTombstone},
		{"thread activity counts live messages", testThreadActivity},
		{"missing rows are not found", testNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func newThread(org uuid.UUID) *models.Thread {
	now := time.Now().UTC()
	return &models.Thread{ID: uuid.New(), Type: models.ThreadGlobal, Title: "general", OrganizationID: org,
		CreatedBy: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

func newMessage(th *models.Thread, at time.Time) *models.Message {
	return &models.Message{ID: uuid.New(), ThreadID: th.ID, Content: "hi", AuthorID: uuid.New(),
		OrganizationID: th.OrganizationID, CreatedAt: at, UpdatedAt: at}
}

func newTag(org uuid.UUID, slug string) *models.Tag {
	return &models.Tag{ID: uuid.New(), Name: slug, Slug: slug, Color: "#0a0", Category: models.TagTopic,
		OrganizationID: org, CreatedBy: uuid.New(), IsActive: true, CreatedAt: time.Now().UTC()}
}

func seedThread(t *testing.T, s Store, org uuid.UUID) *models.Thread {
	t.Helper()
	th := newThread(org)
	require.NoError(t, s.CreateThread(context.Background(), th, nil))
	return th
}

func seedMessage(t *testing.T, s Store, th *models.Thread, content string, at time.Time) *models.Message {
	t.Helper()
	m := newMessage(th, at)
	m.Content = content
	require.NoError(t, s.CreateMessage(context.Background(), m, nil))
	return m
}

func testSeqOrder(t *testing.T, s Store) {
	ctx := context.Background()
	th := seedThread(t, s, uuid.New())

	at := time.Now().UTC().Truncate(time.Millisecond)
	var ids []uuid.UUID
	var lastSeq int64
	for i := 0; i < 5; i++ {
		m := seedMessage(t, s, th, "tie", at)
		assert.Greater(t, m.Seq, lastSeq)
		lastSeq = m.Seq
		ids = append(ids, m.ID)
	}

	list, err := s.ListMessages(ctx, th.OrganizationID, models.MessageFilter{ThreadID: &th.ID})
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i, m := range list {
		assert.Equal(t, ids[i], m.ID)
	}

	page, err := s.ListMessages(ctx, th.OrganizationID, models.MessageFilter{ThreadID: &th.ID, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
}

func testTenantScoped(t *testing.T, s Store) {
	ctx := context.Background()
	o1, o2 := uuid.New(), uuid.New()
	t1, t2 := seedThread(t, s, o1), seedThread(t, s, o2)
	seedMessage(t, s, t1, "one", time.Now().UTC())
	seedMessage(t, s, t2, "two", time.Now().UTC())

	threads, err := s.ListThreads(ctx, o1, models.ThreadFilter{})
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, t1.ID, threads[0].ID)

	msgs, err := s.ListMessages(ctx, o2, models.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, o2, msgs[0].OrganizationID)

	n, last, err := s.ThreadActivity(ctx, o2, t1.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, last)
}

func testQueries(t *testing.T, s Store) {
	ctx := context.Background()
	org := uuid.New()
	th := newThread(org)
	th.Title = "Release Planning"
	require.NoError(t, s.CreateThread(ctx, th, nil))
	other := newThread(org)
	other.Description = "planning notes"
	require.NoError(t, s.CreateThread(ctx, other, nil))
	seedThread(t, s, org)

	threads, err := s.ListThreads(ctx, org, models.ThreadFilter{Query: "PLANNING"})
	require.NoError(t, err)
	assert.Len(t, threads, 2)

	hit := seedMessage(t, s, th, "Ship It on Friday", time.Now().UTC())
	seedMessage(t, s, th, "unrelated", time.Now().UTC())
	msgs, err := s.ListMessages(ctx, org, models.MessageFilter{ThreadID: &th.ID, Query: "ship it"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, hit.ID, msgs[0].ID)
}

func testDuplicateLink(t *testing.T, s Store) {
	ctx := context.Background()
	org := uuid.New()
	th := seedThread(t, s, org)
	tag := newTag(org, "bug")
	require.NoError(t, s.CreateTag(ctx, tag))

	m := newMessage(th, time.Now().UTC())
	link := models.TagLink{ID: uuid.New(), Kind: models.KindMessage, EntityID: m.ID, TagID: tag.ID, OrganizationID: org, CreatedAt: time.Now().UTC()}
	again := link
	again.ID = uuid.New()
	err := s.CreateMessage(ctx, m, []models.TagLink{link, again})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.GetMessage(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	ids, err := s.EntityIDsByTag(ctx, org, models.KindMessage, tag.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testTagSlug(t *testing.T, s Store) {
	ctx := context.Background()
	org := uuid.New()
	require.NoError(t, s.CreateTag(ctx, newTag(org, "bug")))
	assert.ErrorIs(t, s.CreateTag(ctx, newTag(org, "bug")), ErrDuplicate)
	assert.NoError(t, s.CreateTag(ctx, newTag(uuid.New(), "bug")))
}

func testConcurrentReactions(t *testing.T, s Store) {
	ctx := context.Background()
	th := seedThread(t, s, uuid.New())
	m := seedMessage(t, s, th, "react", time.Now().UTC())
	userID := uuid.New()

	var inserted int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.AddReaction(ctx, &models.Reaction{ID: uuid.New(), MessageID: m.ID, UserID: userID,
				Emoji: "👍", OrganizationID: th.OrganizationID, CreatedAt: time.Now().UTC()})
			if assert.NoError(t, err) && ok {
				atomic.AddInt32(&inserted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inserted)
	list, err := s.ListReactions(ctx, th.OrganizationID, m.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	removed, err := s.RemoveReaction(ctx, m.ID, userID, "👍")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveReaction(ctx, m.ID, userID, "👍")
	require.NoError(t, err)
	assert.False(t, removed)
}

func testTombstone(t *testing.T, s Store) {
	ctx := context.Background()
	th := seedThread(t, s, uuid.New())
	org := th.OrganizationID
	m := seedMessage(t, s, th, "hi", time.Now().UTC())

	changed, err := s.MarkMessageDeleted(ctx, m.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.MarkMessageDeleted(ctx, m.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.UpdateMessageContent(ctx, m.ID, "x", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)

	live, err := s.ListMessages(ctx, org, models.MessageFilter{ThreadID: &th.ID})
	require.NoError(t, err)
	assert.Empty(t, live)

	all, err := s.ListMessages(ctx, org, models.MessageFilter{ThreadID: &th.ID, IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "hi", all[0].Content)
	assert.True(t, all[0].IsDeleted)
}

func testThreadActivity(t *testing.T, s Store) {
	ctx := context.Background()
	th := seedThread(t, s, uuid.New())
	org := th.OrganizationID

	n, last, err := s.ThreadActivity(ctx, org, th.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, last)

	base := time.Now().UTC().Truncate(time.Millisecond)
	seedMessage(t, s, th, "first", base)
	tieA := seedMessage(t, s, th, "tie a", base.Add(time.Second))
	tieB := seedMessage(t, s, th, "tie b", base.Add(time.Second))
	seedMessage(t, s, seedThread(t, s, org), "elsewhere", base.Add(time.Hour))

	n, last, err = s.ThreadActivity(ctx, org, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NotNil(t, last)
	assert.Equal(t, tieB.ID, last.ID)

	_, err = s.MarkMessageDeleted(ctx, tieB.ID, time.Now().UTC())
	require.NoError(t, err)
	n, last, err = s.ThreadActivity(ctx, org, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NotNil(t, last)
	assert.Equal(t, tieA.ID, last.ID)
}

func testNotFound(t *testing.T, s Store) {
	ctx := context.Background()
	_, err := s.GetThread(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetMessage(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTag(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.MarkMessageDeleted(ctx, uuid.New(), time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)
}
