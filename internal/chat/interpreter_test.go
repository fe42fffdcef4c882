package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifebuilder-backend/internal/ai"
	"lifebuilder-backend/internal/storage"
)

func TestOutOfRangeIndicesAreIgnored(t *testing.T) {
	ctx := context.Background()
	gen := &stubGen{reply: &ai.Reply{
		Content: "noted",
		TaskUpdates: &ai.TaskUpdates{
			Remove:   []int{7},
			Complete: []int{12},
		},
	}}
	f := newFixture(t, gen, ai.DefaultIntent())
	sess := f.taskSession(t, "")

	_, err := f.store.CreateTask(ctx, storage.NewTask{Content: "only one", SessionID: &sess.ID})
	require.NoError(t, err)

	res, err := f.orch.HandleTurn(ctx, sess.ID, "do things", nil)
	require.NoError(t, err)

	assert.Len(t, res.Tasks, 1)
	assert.Equal(t, storage.StatusPending, res.Tasks[0].Status)
	assert.Empty(t, res.ToolCalls, "nothing applied, nothing recorded")
}

func TestAlreadyCompletedIndexIsSkipped(t *testing.T) {
	ctx := context.Background()
	gen := &stubGen{reply: &ai.Reply{
		Content:     "done",
		TaskUpdates: &ai.TaskUpdates{Complete: []int{0, 1}},
	}}
	f := newFixture(t, gen, ai.DefaultIntent())

	career, err := f.store.GetMonumentBySlug(ctx, "career")
	require.NoError(t, err)
	sess := f.taskSession(t, "career")

	done, err := f.store.CreateTask(ctx, storage.NewTask{
		Content: "done already", SessionID: &sess.ID, MonumentID: &career.ID, XPValue: 10,
	})
	require.NoError(t, err)
	_, err = f.store.CompleteTask(ctx, done.ID)
	require.NoError(t, err)

	_, err = f.store.CreateTask(ctx, storage.NewTask{
		Content: "fresh", SessionID: &sess.ID, MonumentID: &career.ID, XPValue: 7,
	})
	require.NoError(t, err)

	res, err := f.orch.HandleTurn(ctx, sess.ID, "finish them", nil)
	require.NoError(t, err)

	got, err := f.store.GetMonument(ctx, career.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, got.TotalXP, "first task credited once at 10, second now at 7")

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "complete_tasks", res.ToolCalls[0].Name)
	assert.Equal(t, 1, res.ToolCalls[0].Result["completed"])
}

func TestMutationOrderWithinOneTurn(t *testing.T) {
	ctx := context.Background()
	gen := &stubGen{reply: &ai.Reply{
		Content:  "rebuilt",
		TaskList: []ai.TaskDraft{{Content: "bulk", XPValue: 1}},
		TaskUpdates: &ai.TaskUpdates{
			Add:    []ai.TaskDraft{{Content: "added", XPValue: 2}},
			Remove: []int{0},
		},
	}}
	f := newFixture(t, gen, ai.DefaultIntent())
	sess := f.taskSession(t, "")

	_, err := f.store.CreateTask(ctx, storage.NewTask{Content: "pre-existing", SessionID: &sess.ID})
	require.NoError(t, err)

	res, err := f.orch.HandleTurn(ctx, sess.ID, "rework", nil)
	require.NoError(t, err)

	// remove[0] targets "pre-existing" (the snapshot), not tasks created by
	// the bulk/add groups that ran earlier in the same turn
	contents := map[string]bool{}
	for _, task := range res.Tasks {
		contents[task.Content] = true
	}
	assert.False(t, contents["pre-existing"])
	assert.True(t, contents["bulk"])
	assert.True(t, contents["added"])

	require.Len(t, res.ToolCalls, 3)
	assert.Equal(t, "create_task_list", res.ToolCalls[0].Name)
	assert.Equal(t, "add_tasks", res.ToolCalls[1].Name)
	assert.Equal(t, "remove_tasks", res.ToolCalls[2].Name)
}

func TestBreakdownAttachesChildren(t *testing.T) {
	ctx := context.Background()
	gen := &stubGen{reply: &ai.Reply{
		Content: "smaller steps",
		TaskUpdates: &ai.TaskUpdates{
			Breakdown: &ai.Breakdown{
				TaskIndex: 0,
				NewTasks:  []ai.TaskDraft{{Content: "step one"}, {Content: "step two"}},
			},
		},
	}}
	f := newFixture(t, gen, ai.Intent{Mode: ai.IntentBreakdown})
	sess := f.taskSession(t, "")

	parent, err := f.store.CreateTask(ctx, storage.NewTask{Content: "daunting", SessionID: &sess.ID})
	require.NoError(t, err)

	res, err := f.orch.HandleTurn(ctx, sess.ID, "stuck", nil)
	require.NoError(t, err)

	require.Len(t, res.Tasks, 3)
	children := 0
	for _, task := range res.Tasks {
		if task.ParentID != nil && *task.ParentID == parent.ID {
			children++
		}
	}
	assert.Equal(t, 2, children)

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "breakdown_task", res.ToolCalls[0].Name)
	assert.Equal(t, 0, res.ToolCalls[0].Args["taskIndex"])
}

func TestBreakdownTargetRemovedSameTurn(t *testing.T) {
	// remove and breakdown reference the same snapshot slot; the removal runs
	// first, so the breakdown finds its target gone and degrades to a no-op
	ctx := context.Background()
	gen := &stubGen{reply: &ai.Reply{
		Content: "restructured",
		TaskUpdates: &ai.TaskUpdates{
			Remove: []int{0},
			Breakdown: &ai.Breakdown{
				TaskIndex: 0,
				NewTasks:  []ai.TaskDraft{{Content: "orphan step"}},
			},
		},
	}}
	f := newFixture(t, gen, ai.DefaultIntent())
	sess := f.taskSession(t, "")

	_, err := f.store.CreateTask(ctx, storage.NewTask{Content: "victim", SessionID: &sess.ID})
	require.NoError(t, err)

	res, err := f.orch.HandleTurn(ctx, sess.ID, "redo", nil)
	require.NoError(t, err)

	assert.Empty(t, res.Tasks)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "remove_tasks", res.ToolCalls[0].Name)
}

func TestLegacySingleTaskCreate(t *testing.T) {
	ctx := context.Background()
	gen := &stubGen{reply: &ai.Reply{
		Content:      "added it",
		TaskToCreate: &ai.TaskDraft{Content: "one thing", Category: "P", XPValue: 5},
	}}
	f := newFixture(t, gen, ai.DefaultIntent())
	sess := f.taskSession(t, "")

	res, err := f.orch.HandleTurn(ctx, sess.ID, "just one", nil)
	require.NoError(t, err)

	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "one thing", res.Tasks[0].Content)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "create_smart_task", res.ToolCalls[0].Name)
}

func TestLegacyChildTasksAttachToLastSnapshotTask(t *testing.T) {
	ctx := context.Background()
	gen := &stubGen{reply: &ai.Reply{
		Content:    "split up",
		ChildTasks: []ai.TaskDraft{{Content: "sub a"}, {Content: "sub b"}},
	}}
	f := newFixture(t, gen, ai.DefaultIntent())
	sess := f.taskSession(t, "")

	_, err := f.store.CreateTask(ctx, storage.NewTask{Content: "first", SessionID: &sess.ID})
	require.NoError(t, err)
	last, err := f.store.CreateTask(ctx, storage.NewTask{Content: "last", SessionID: &sess.ID})
	require.NoError(t, err)

	res, err := f.orch.HandleTurn(ctx, sess.ID, "break it down", nil)
	require.NoError(t, err)

	children := 0
	for _, task := range res.Tasks {
		if task.ParentID != nil && *task.ParentID == last.ID {
			children++
		}
	}
	assert.Equal(t, 2, children)

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "recursive_breakdown", res.ToolCalls[0].Name)
}

func TestToolCallsArePersistedWithAssistantMessage(t *testing.T) {
	ctx := context.Background()
	gen := &stubGen{reply: &ai.Reply{
		Content:  "saved",
		TaskList: []ai.TaskDraft{{Content: "persisted task"}},
	}}
	f := newFixture(t, gen, ai.DefaultIntent())
	sess := f.taskSession(t, "")

	_, err := f.orch.HandleTurn(ctx, sess.ID, "save this", nil)
	require.NoError(t, err)

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	require.Len(t, got.Messages[1].ToolCalls, 1)
	assert.Equal(t, "create_task_list", got.Messages[1].ToolCalls[0].Name)
}
