package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecursiveDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	root, err := s.CreateTask(ctx, NewTask{Content: "root"})
	require.NoError(t, err)
	child, err := s.CreateTask(ctx, NewTask{Content: "child", ParentID: &root.ID})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, NewTask{Content: "grandchild", ParentID: &child.ID})
	require.NoError(t, err)
	other, err := s.CreateTask(ctx, NewTask{Content: "unrelated"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteTask(ctx, root.ID))

	all, err := s.ListTasks(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, other.ID, all[0].ID)

	// no survivor may reference a deleted parent
	for _, task := range all {
		if task.ParentID != nil {
			_, err := s.GetTask(ctx, *task.ParentID)
			assert.NoError(t, err)
		}
	}

	assert.ErrorIs(t, s.DeleteTask(ctx, root.ID), ErrNotFound)
}

func TestCompleteCreditsLedgerOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	require.NoError(t, s.SeedMonuments(ctx))

	career, err := s.GetMonumentBySlug(ctx, "career")
	require.NoError(t, err)

	task, err := s.CreateTask(ctx, NewTask{Content: "read", MonumentID: &career.ID, XPValue: 10})
	require.NoError(t, err)

	done, err := s.CompleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	// second completion must not credit again
	_, err = s.CompleteTask(ctx, task.ID)
	require.NoError(t, err)

	m, err := s.GetMonument(ctx, career.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, m.TotalXP)

	undone, err := s.UncompleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, undone.Status)
	assert.Nil(t, undone.CompletedAt)

	m, err = s.GetMonument(ctx, career.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalXP)

	// uncompleting a pending task leaves the ledger alone
	_, err = s.UncompleteTask(ctx, task.ID)
	require.NoError(t, err)
	m, _ = s.GetMonument(ctx, career.ID)
	assert.Equal(t, 0, m.TotalXP)
}

func TestCompleteWithoutMonument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	task, err := s.CreateTask(ctx, NewTask{Content: "orphan", XPValue: 25})
	require.NoError(t, err)

	done, err := s.CompleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestSessionTaskScoping(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	sess, err := s.CreateSession(ctx, FlowTask, nil)
	require.NoError(t, err)
	other, err := s.CreateSession(ctx, FlowTask, nil)
	require.NoError(t, err)

	_, err = s.CreateTask(ctx, NewTask{Content: "a", SessionID: &sess.ID})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, NewTask{Content: "b", SessionID: &sess.ID})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, NewTask{Content: "elsewhere", SessionID: &other.ID})
	require.NoError(t, err)

	tasks, err := s.ListSessionTasks(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	// creation order preserved
	assert.Equal(t, "a", tasks[0].Content)
	assert.Equal(t, "b", tasks[1].Content)
}

func TestSeedMonumentsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.SeedMonuments(ctx))
	require.NoError(t, s.SeedMonuments(ctx))

	ms, err := s.ListMonuments(ctx)
	require.NoError(t, err)
	assert.Len(t, ms, 6)

	slugs := map[string]bool{}
	for _, m := range ms {
		slugs[m.Slug] = true
		assert.Zero(t, m.TotalXP)
	}
	for _, want := range []string{"career", "wealth", "emotion", "family", "health", "experience"} {
		assert.True(t, slugs[want], "missing monument %q", want)
	}
}

func TestAppendMessagesIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	sess, err := s.CreateSession(ctx, FlowMood, nil)
	require.NoError(t, err)

	require.NoError(t, s.AppendMessages(ctx, sess.ID,
		Message{Role: "user", Content: "hi"},
		Message{Role: "assistant", Content: "hello"},
	))
	require.NoError(t, s.AppendMessages(ctx, sess.ID,
		Message{Role: "user", Content: "more"},
	))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "hi", got.Messages[0].Content)
	assert.Equal(t, 1, got.AssistantMessageCount())
}
