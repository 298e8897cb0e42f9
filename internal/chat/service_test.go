package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfworx/chat-backend/internal/metrics"
	"github.com/dfworx/chat-backend/internal/models"
	"github.com/dfworx/chat-backend/internal/store"
	"github.com/dfworx/chat-backend/internal/tenant"
	"github.com/dfworx/chat-backend/pkg/apperror"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) count(t models.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type stubPosts map[uuid.UUID]*models.PostContext

func (s stubPosts) Resolve(_ context.Context, orgID, postID uuid.UUID) *models.PostContext {
	p, ok := s[postID]
	if !ok || p.OrganizationID != orgID {
		return nil
	}
	return p
}

type stubDirectory map[uuid.UUID]*models.User

func (d stubDirectory) GetUser(_ context.Context, orgID, userID uuid.UUID) (*models.User, error) {
	u, ok := d[userID]
	if !ok || u.OrganizationID != orgID {
		return nil, errors.New("no such user")
	}
	return u, nil
}

type fixture struct {
	svc   *Service
	store *store.Memory
	pub   *recordingPublisher
	posts stubPosts
	dir   stubDirectory
	o1    tenant.Scope
	o2    tenant.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemory(),
		pub:   &recordingPublisher{},
		posts: stubPosts{},
		dir:   stubDirectory{},
		o1:    tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: models.RoleUser, Email: "u1@o1.test"},
		o2:    tenant.Scope{OrganizationID: uuid.New(), UserID: uuid.New(), Role: models.RoleUser, Email: "u2@o2.test"},
	}
	f.svc = NewService(Deps{
		Store:     f.store,
		Directory: f.dir,
		Posts:     f.posts,
		Publisher: f.pub,
		Metrics:   metrics.New(),
	}, Options{MaxAttachmentBytes: 1024})
	return f
}

func (f *fixture) thread(t *testing.T, sc tenant.Scope, title string) *models.Thread {
	t.Helper()
	th, err := f.svc.CreateThread(context.Background(), sc, CreateThreadInput{Type: models.ThreadGlobal, Title: title})
	require.NoError(t, err)
	return th
}

func (f *fixture) send(t *testing.T, sc tenant.Scope, threadID uuid.UUID, content string, parent *uuid.UUID) *models.Message {
	t.Helper()
	m, err := f.svc.SendMessage(context.Background(), sc, SendMessageInput{ThreadID: threadID, Content: content, ParentID: parent})
	require.NoError(t, err)
	return m
}

func (f *fixture) tag(t *testing.T, sc tenant.Scope, name string) *models.Tag {
	t.Helper()
	tag, err := f.svc.CreateTag(context.Background(), sc, CreateTagInput{Name: name, Color: "#f00", Category: models.TagTopic})
	require.NoError(t, err)
	return tag
}

func TestThreadTypePostIDBiconditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	postID := uuid.New()

	_, err := f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: models.ThreadPost, Title: "p"})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: models.ThreadGlobal, Title: "g", PostID: &postID})
	assert.True(t, apperror.IsValidation(err))

	th, err := f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: models.ThreadPost, Title: "p", PostID: &postID})
	require.NoError(t, err)
	assert.Equal(t, postID, *th.PostID)

	_, err = f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: "forum", Title: "x"})
	assert.True(t, apperror.IsValidation(err))
	_, err = f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: models.ThreadGlobal, Title: "   "})
	assert.True(t, apperror.IsValidation(err))
}

func TestMessageLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.thread(t, f.o1, "General")

	hello := f.send(t, f.o1, general.ID, "hello", nil)
	reply := f.send(t, f.o1, general.ID, "first reply", &hello.ID)

	edited, err := f.svc.EditMessage(ctx, f.o1, reply.ID, "edited reply")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)

	_, err = f.svc.SoftDeleteMessage(ctx, f.o1, reply.ID)
	require.NoError(t, err)

	live, err := f.svc.ListMessages(ctx, f.o1, models.MessageFilter{ThreadID: &general.ID})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "hello", live[0].Content)

	all, err := f.svc.ListMessages(ctx, f.o1, models.MessageFilter{ThreadID: &general.ID, IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, hello.ID, all[0].ID)
	assert.Equal(t, reply.ID, all[1].ID)
	assert.True(t, all[1].IsDeleted)
	assert.True(t, all[1].IsEdited)
	assert.Equal(t, "edited reply", all[1].Content)

	assert.Equal(t, 2, f.pub.count(models.EventMessageCreated))
	assert.Equal(t, 1, f.pub.count(models.EventMessageUpdated))
	assert.Equal(t, 1, f.pub.count(models.EventMessageDeleted))
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.thread(t, f.o1, "A")
	b := f.thread(t, f.o1, "B")
	inB := f.send(t, f.o1, b.ID, "in b", nil)

	_, err := f.svc.SendMessage(ctx, f.o1, SendMessageInput{ThreadID: uuid.New(), Content: "x"})
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.svc.SendMessage(ctx, f.o1, SendMessageInput{ThreadID: a.ID, Content: "x", ParentID: &inB.ID})
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "parent_message_id", verr.Field)

	_, err = f.svc.SendMessage(ctx, f.o1, SendMessageInput{ThreadID: a.ID, Content: "  "})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.SendMessage(ctx, f.o1, SendMessageInput{ThreadID: a.ID, Content: "x", Mentions: []string{"bob"}})
	assert.True(t, apperror.IsValidation(err))

	other := f.thread(t, f.o2, "theirs")
	_, err = f.svc.SendMessage(ctx, f.o1, SendMessageInput{ThreadID: other.ID, Content: "x"})
	assert.True(t, apperror.IsNotFound(err))
}

func TestSendMessageSnapshotsAuthorAndMentions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dir[f.o1.UserID] = &models.User{ID: f.o1.UserID, OrganizationID: f.o1.OrganizationID, Name: "Ana", Email: "ana@o1.test"}
	th := f.thread(t, f.o1, "General")
	mention := uuid.New()

	m, err := f.svc.SendMessage(ctx, f.o1, SendMessageInput{ThreadID: th.ID, Content: "hi",
		Mentions: []string{mention.String(), mention.String()}})
	require.NoError(t, err)
	assert.Equal(t, "Ana", m.AuthorName)
	assert.Equal(t, "ana@o1.test", m.AuthorEmail)
	assert.Equal(t, []uuid.UUID{mention}, m.Mentions)

	f.dir[f.o1.UserID].Name = "Ana Renamed"
	got, err := f.svc.GetMessage(ctx, f.o1, m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.AuthorName)
}

func TestSendMessageFallsBackToTokenIdentity(t *testing.T) {
	f := newFixture(t)
	th := f.thread(t, f.o1, "General")
	m := f.send(t, f.o1, th.ID, "hi", nil)
	assert.Equal(t, "u1", m.AuthorName)
	assert.Equal(t, "u1@o1.test", m.AuthorEmail)
}

func TestEditAndDeletePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	m := f.send(t, f.o1, th.ID, "mine", nil)

	other := tenant.Scope{OrganizationID: f.o1.OrganizationID, UserID: uuid.New(), Role: models.RoleUser}
	_, err := f.svc.EditMessage(ctx, other, m.ID, "hijack")
	var verr *apperror.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "author_id", verr.Field)

	_, err = f.svc.SoftDeleteMessage(ctx, other, m.ID)
	assert.True(t, apperror.IsValidation(err))

	mod := tenant.Scope{OrganizationID: f.o1.OrganizationID, UserID: uuid.New(), Role: models.RoleModerator}
	deleted, err := f.svc.SoftDeleteMessage(ctx, mod, m.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, "mine", deleted.Content)

	_, err = f.svc.SoftDeleteMessage(ctx, mod, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.pub.count(models.EventMessageDeleted))

	_, err = f.svc.EditMessage(ctx, f.o1, m.ID, "too late")
	assert.True(t, apperror.IsNotFound(err))
}

func TestStableOrderWithIdenticalTimestamps(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }
	th := f.thread(t, f.o1, "General")

	var want []uuid.UUID
	for i := 0; i < 10; i++ {
		want = append(want, f.send(t, f.o1, th.ID, "same instant", nil).ID)
	}
	var got []uuid.UUID
	for offset := 0; offset < 10; offset += 3 {
		page, err := f.svc.ListMessages(context.Background(), f.o1, models.MessageFilter{ThreadID: &th.ID, Limit: 3, Offset: offset})
		require.NoError(t, err)
		for _, m := range page {
			got = append(got, m.ID)
		}
	}
	assert.Equal(t, want, got)
}

func TestTagSlugConflictScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bug := f.tag(t, f.o1, "bug")
	assert.Equal(t, "bug", bug.Slug)

	_, err := f.svc.CreateTag(ctx, f.o1, CreateTagInput{Name: "Bug!", Color: "#00ff00", Category: models.TagTopic})
	require.Error(t, err)
	assert.True(t, apperror.IsConflict(err))

	_, err = f.svc.CreateTag(ctx, f.o2, CreateTagInput{Name: "Bug!", Color: "#00ff00", Category: models.TagTopic})
	assert.NoError(t, err)
}

func TestCreateTagValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []CreateTagInput{
		{Name: "", Color: "#fff", Category: models.TagApp},
		{Name: "!!!", Color: "#fff", Category: models.TagApp},
		{Name: "ok", Color: "red", Category: models.TagApp},
		{Name: "ok", Color: "#fff", Category: "mood"},
	}
	for _, in := range cases {
		_, err := f.svc.CreateTag(ctx, f.o1, in)
		assert.True(t, apperror.IsValidation(err), "%+v", in)
	}
}

func TestAttachTagAcrossTenantsScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	m := f.send(t, f.o1, th.ID, "hello", nil)
	foreign := f.tag(t, f.o2, "theirs")

	_, err := f.svc.AttachTag(ctx, f.o1, models.KindMessage, m.ID, foreign.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsTenantMismatch(err))

	_, err = f.svc.SendMessage(ctx, f.o1, SendMessageInput{ThreadID: th.ID, Content: "x", TagIDs: []uuid.UUID{foreign.ID}})
	assert.True(t, apperror.IsTenantMismatch(err))
}

func TestAttachDetachTag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	m := f.send(t, f.o1, th.ID, "hello", nil)
	tag := f.tag(t, f.o1, "decision")

	_, err := f.svc.AttachTag(ctx, f.o1, models.KindMessage, m.ID, tag.ID)
	require.NoError(t, err)
	_, err = f.svc.AttachTag(ctx, f.o1, models.KindMessage, m.ID, tag.ID)
	assert.True(t, apperror.IsConflict(err))

	got, err := f.svc.GetMessage(ctx, f.o1, m.ID, false)
	require.NoError(t, err)
	require.Len(t, got.Tags, 1)

	require.NoError(t, f.svc.DetachTag(ctx, f.o1, models.KindMessage, m.ID, tag.ID))
	assert.True(t, apperror.IsNotFound(f.svc.DetachTag(ctx, f.o1, models.KindMessage, m.ID, tag.ID)))

	_, err = f.svc.AttachTag(ctx, f.o1, models.KindTag, m.ID, tag.ID)
	assert.True(t, apperror.IsValidation(err))
}

func TestDeactivatedTagStaysAttachedButIsNotAssignable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	tag := f.tag(t, f.o1, "legacy")
	_, err := f.svc.AttachTag(ctx, f.o1, models.KindThread, th.ID, tag.ID)
	require.NoError(t, err)

	_, err = f.svc.DeactivateTag(ctx, f.o1, tag.ID)
	require.NoError(t, err)
	_, err = f.svc.DeactivateTag(ctx, f.o1, tag.ID)
	require.NoError(t, err)

	view, err := f.svc.GetThread(ctx, f.o1, th.ID)
	require.NoError(t, err)
	require.Len(t, view.Tags, 1)
	assert.False(t, view.Tags[0].IsActive)

	assignable, err := f.svc.AssignableTags(ctx, f.o1, nil)
	require.NoError(t, err)
	assert.Empty(t, assignable)

	other := f.thread(t, f.o1, "Other")
	_, err = f.svc.AttachTag(ctx, f.o1, models.KindThread, other.ID, tag.ID)
	assert.True(t, apperror.IsValidation(err))
}

func TestListThreadsIntersectsTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.tag(t, f.o1, "a")
	b := f.tag(t, f.o1, "b")

	both, err := f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: models.ThreadGlobal, Title: "both", TagIDs: []uuid.UUID{a.ID, b.ID}})
	require.NoError(t, err)
	_, err = f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: models.ThreadGlobal, Title: "only a", TagIDs: []uuid.UUID{a.ID}})
	require.NoError(t, err)
	archived, err := f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: models.ThreadGlobal, Title: "both archived", TagIDs: []uuid.UUID{a.ID, b.ID}})
	require.NoError(t, err)
	_, err = f.svc.ArchiveThread(ctx, f.o1, archived.ID)
	require.NoError(t, err)

	no := false
	list, err := f.svc.ListThreads(ctx, f.o1, models.ThreadFilter{TagIDs: []uuid.UUID{a.ID, b.ID}, IsArchived: &no})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, both.ID, list[0].ID)

	onlyA, err := f.svc.ListThreads(ctx, f.o1, models.ThreadFilter{TagIDs: []uuid.UUID{a.ID}})
	require.NoError(t, err)
	assert.Len(t, onlyA, 3)
}

func TestArchiveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")

	for i := 0; i < 3; i++ {
		got, err := f.svc.ArchiveThread(ctx, f.o1, th.ID)
		require.NoError(t, err)
		assert.True(t, got.IsArchived)
	}
	assert.Equal(t, 1, f.pub.count(models.EventThreadUpdated))

	got, err := f.svc.UnarchiveThread(ctx, f.o1, th.ID)
	require.NoError(t, err)
	assert.False(t, got.IsArchived)
	assert.Equal(t, 2, f.pub.count(models.EventThreadUpdated))
}

func TestDeletedPostDegradesToPlaceholderScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	live := uuid.New()
	gone := uuid.New()
	f.posts[live] = &models.PostContext{ID: live, OrganizationID: f.o1.OrganizationID, Title: "Launch"}

	withPost, err := f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: models.ThreadPost, Title: "comments", PostID: &live})
	require.NoError(t, err)
	dangling, err := f.svc.CreateThread(ctx, f.o1, CreateThreadInput{Type: models.ThreadPost, Title: "orphan", PostID: &gone})
	require.NoError(t, err)

	view, err := f.svc.GetThread(ctx, f.o1, withPost.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Post)
	assert.Equal(t, "Launch", view.Post.Title)
	assert.False(t, view.PostUnavailable)

	view, err = f.svc.GetThread(ctx, f.o1, dangling.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Post)
	assert.True(t, view.PostUnavailable)
}

func TestGetThreadReportsActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")

	view, err := f.svc.GetThread(ctx, f.o1, th.ID)
	require.NoError(t, err)
	assert.Zero(t, view.MessageCount)
	assert.Nil(t, view.LastMessage)

	f.send(t, f.o1, th.ID, "first", nil)
	second := f.send(t, f.o1, th.ID, "second", nil)
	third := f.send(t, f.o1, th.ID, "third", nil)
	_, err = f.svc.SoftDeleteMessage(ctx, f.o1, third.ID)
	require.NoError(t, err)

	view, err = f.svc.GetThread(ctx, f.o1, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.MessageCount)
	require.NotNil(t, view.LastMessage)
	assert.Equal(t, second.ID, view.LastMessage.ID)
}

func TestCrossTenantReadsAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "secret")
	m := f.send(t, f.o1, th.ID, "classified", nil)

	_, err := f.svc.GetThread(ctx, f.o2, th.ID)
	assert.True(t, apperror.IsNotFound(err))
	_, err = f.svc.GetMessage(ctx, f.o2, m.ID, true)
	assert.True(t, apperror.IsNotFound(err))
	_, _, err = f.svc.AddReaction(ctx, f.o2, m.ID, "👍")
	assert.True(t, apperror.IsNotFound(err))

	list, err := f.svc.ListThreads(ctx, f.o2, models.ThreadFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConcurrentDuplicateReactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	m := f.send(t, f.o1, th.ID, "hello", nil)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.AddReaction(ctx, f.o1, m.ID, "🎉")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	reactions, err := f.svc.ListReactions(ctx, f.o1, m.ID)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)
	assert.Equal(t, 1, f.pub.count(models.EventReactionAdded))

	removed, err := f.svc.RemoveReaction(ctx, f.o1, m.ID, "🎉")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = f.svc.RemoveReaction(ctx, f.o1, m.ID, "🎉")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 1, f.pub.count(models.EventReactionRemoved))

	_, _, err = f.svc.AddReaction(ctx, f.o1, m.ID, "thumbs up")
	assert.True(t, apperror.IsValidation(err))
}

func TestRepeatReactionReturnsStoredRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	m := f.send(t, f.o1, th.ID, "hello", nil)

	first, inserted, err := f.svc.AddReaction(ctx, f.o1, m.ID, "👍")
	require.NoError(t, err)
	assert.True(t, inserted)

	again, inserted, err := f.svc.AddReaction(ctx, f.o1, m.ID, "👍")
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, first.CreatedAt.Equal(again.CreatedAt))
	assert.Equal(t, 1, f.pub.count(models.EventReactionAdded))
}

func TestAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	m := f.send(t, f.o1, th.ID, "see file", nil)
	key := AttachmentKey(f.o1.OrganizationID, m.ID, "report.pdf")

	in := AddAttachmentInput{MessageID: m.ID, StorageKey: key, Filename: "report.pdf", MimeType: "application/pdf", Size: 512}
	a, err := f.svc.AddAttachment(ctx, f.o1, in)
	require.NoError(t, err)

	tooBig := in
	tooBig.Size = 4096
	_, err = f.svc.AddAttachment(ctx, f.o1, tooBig)
	assert.True(t, apperror.IsValidation(err))

	foreignKey := in
	foreignKey.StorageKey = AttachmentKey(f.o2.OrganizationID, m.ID, "report.pdf")
	_, err = f.svc.AddAttachment(ctx, f.o1, foreignKey)
	assert.True(t, apperror.IsValidation(err))

	got, err := f.svc.GetMessage(ctx, f.o1, m.ID, false)
	require.NoError(t, err)
	require.Len(t, got.Attachments, 1)

	removed, err := f.svc.RemoveAttachment(ctx, f.o1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, key, removed.StorageKey)

	_, err = f.svc.SoftDeleteMessage(ctx, f.o1, m.ID)
	require.NoError(t, err)
	_, err = f.svc.AddAttachment(ctx, f.o1, in)
	assert.True(t, apperror.IsNotFound(err))
}

func TestReplyChainAndReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	root := f.send(t, f.o1, th.ID, "root", nil)
	mid := f.send(t, f.o1, th.ID, "mid", &root.ID)
	leaf := f.send(t, f.o1, th.ID, "leaf", &mid.ID)
	f.send(t, f.o1, th.ID, "sibling", &root.ID)

	chain, err := f.svc.ReplyChain(ctx, f.o1, leaf.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []uuid.UUID{root.ID, mid.ID, leaf.ID}, []uuid.UUID{chain[0].ID, chain[1].ID, chain[2].ID})

	replies, err := f.svc.Replies(ctx, f.o1, root.ID)
	require.NoError(t, err)
	assert.Len(t, replies, 2)

	_, err = f.svc.SoftDeleteMessage(ctx, f.o1, mid.ID)
	require.NoError(t, err)
	chain, err = f.svc.ReplyChain(ctx, f.o1, leaf.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Empty(t, chain[1].Content)
	assert.True(t, chain[1].IsDeleted)

	complete, err := f.svc.GetMessage(ctx, f.o1, root.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, complete.ReplyCount)
}

func TestListMessagesByTagAndAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	tag := f.tag(t, f.o1, "decision")
	other := tenant.Scope{OrganizationID: f.o1.OrganizationID, UserID: uuid.New(), Role: models.RoleUser}

	tagged, err := f.svc.SendMessage(ctx, f.o1, SendMessageInput{ThreadID: th.ID, Content: "we ship friday", TagIDs: []uuid.UUID{tag.ID}})
	require.NoError(t, err)
	f.send(t, f.o1, th.ID, "untagged", nil)
	f.send(t, other, th.ID, "from someone else", nil)

	byTag, err := f.svc.ListMessages(ctx, f.o1, models.MessageFilter{TagID: &tag.ID})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, tagged.ID, byTag[0].ID)

	byUser, err := f.svc.ListMessages(ctx, f.o1, models.MessageFilter{UserID: &other.UserID})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "from someone else", byUser[0].Content)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("redis down")
	th := f.thread(t, f.o1, "General")
	m := f.send(t, f.o1, th.ID, "still saved", nil)

	got, err := f.svc.GetMessage(context.Background(), f.o1, m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "still saved", got.Content)
}

func TestEventPayloadCarriesTenantAndActor(t *testing.T) {
	f := newFixture(t)
	th := f.thread(t, f.o1, "General")
	m := f.send(t, f.o1, th.ID, "hello", nil)

	require.NotEmpty(t, f.pub.events)
	ev := f.pub.events[len(f.pub.events)-1]
	assert.Equal(t, models.EventMessageCreated, ev.Type)
	assert.Equal(t, m.ID, ev.EntityID)
	assert.Equal(t, f.o1.OrganizationID, ev.OrganizationID)
	assert.Equal(t, th.ID, ev.ThreadID)
	assert.Equal(t, f.o1.UserID, ev.ActorID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestUpdateThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	th := f.thread(t, f.o1, "General")
	title := "Renamed"
	meta := &models.Metadata{Version: models.MetadataVersion, Values: map[string]string{"pinned": "true"}}

	got, err := f.svc.UpdateThread(ctx, f.o1, th.ID, UpdateThreadInput{Title: &title, Metadata: meta})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "true", got.Metadata.Get("pinned"))

	bad := &models.Metadata{Version: models.MetadataVersion, Values: map[string]string{"color": "red"}}
	_, err = f.svc.UpdateThread(ctx, f.o1, th.ID, UpdateThreadInput{Metadata: bad})
	assert.True(t, apperror.IsValidation(err))
}
