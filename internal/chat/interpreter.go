package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"lifebuilder-backend/internal/ai"
	"lifebuilder-backend/internal/events"
	"lifebuilder-backend/internal/storage"
	"lifebuilder-backend/internal/xp"
)

// applyReply turns the assistant payload into storage mutations. Groups run
// in a fixed order; every index-based group resolves against the snapshot of
// the task list taken at the start of the turn, never against intermediate
// state. Out-of-range indices from the model are untrusted and skipped
// silently.
//
// Order: bulk taskList -> taskUpdates.add -> taskUpdates.remove ->
// taskUpdates.breakdown -> taskUpdates.complete -> legacy taskToCreate ->
// legacy childTasks -> sedona completion.
func (o *Orchestrator) applyReply(ctx context.Context, sess *storage.Session, snapshot []*storage.Task, reply *ai.Reply) ([]storage.ToolCall, error) {
	var calls []storage.ToolCall

	if len(reply.TaskList) > 0 {
		n, err := o.createDrafts(ctx, sess, nil, reply.TaskList)
		if err != nil {
			return calls, err
		}
		calls = append(calls, storage.ToolCall{
			Name:   "create_task_list",
			Args:   map[string]any{"count": n},
			Result: map[string]any{"created": n},
		})
	}

	if u := reply.TaskUpdates; u != nil {
		if len(u.Add) > 0 {
			n, err := o.createDrafts(ctx, sess, nil, u.Add)
			if err != nil {
				return calls, err
			}
			calls = append(calls, storage.ToolCall{
				Name:   "add_tasks",
				Args:   map[string]any{"count": n},
				Result: map[string]any{"created": n},
			})
		}

		if len(u.Remove) > 0 {
			removed := 0
			for _, idx := range u.Remove {
				if idx < 0 || idx >= len(snapshot) {
					continue
				}
				err := o.store.DeleteTask(ctx, snapshot[idx].ID)
				if err == nil {
					removed++
				} else if !errors.Is(err, storage.ErrNotFound) {
					return calls, err
				}
			}
			if removed > 0 {
				calls = append(calls, storage.ToolCall{
					Name:   "remove_tasks",
					Args:   map[string]any{"indices": u.Remove},
					Result: map[string]any{"removed": removed},
				})
			}
		}

		if b := u.Breakdown; b != nil && len(b.NewTasks) > 0 {
			if b.TaskIndex < 0 || b.TaskIndex >= len(snapshot) {
				o.log.Warn("breakdown index out of range", zap.Int("index", b.TaskIndex))
			} else {
				parent := snapshot[b.TaskIndex]
				if _, err := o.store.GetTask(ctx, parent.ID); errors.Is(err, storage.ErrNotFound) {
					// removed earlier this turn or by a race; not fatal
					o.log.Warn("breakdown target no longer exists", zap.String("task", parent.ID))
				} else if err != nil {
					return calls, err
				} else {
					n, err := o.createDrafts(ctx, sess, &parent.ID, b.NewTasks)
					if err != nil {
						return calls, err
					}
					calls = append(calls, storage.ToolCall{
						Name:   "breakdown_task",
						Args:   map[string]any{"taskIndex": b.TaskIndex, "count": n},
						Result: map[string]any{"created": n},
					})
				}
			}
		}

		if len(u.Complete) > 0 {
			completed := 0
			awarded := 0
			for _, idx := range u.Complete {
				if idx < 0 || idx >= len(snapshot) {
					continue
				}
				snap := snapshot[idx]
				if snap.Status == storage.StatusCompleted {
					continue // idempotent: no second credit
				}
				t, err := o.engine.Complete(ctx, snap.ID)
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				if err != nil {
					return calls, err
				}
				completed++
				if t.MonumentID != nil {
					awarded += t.XPValue
				}
			}
			if completed > 0 {
				calls = append(calls, storage.ToolCall{
					Name:   "complete_tasks",
					Args:   map[string]any{"indices": u.Complete},
					Result: map[string]any{"completed": completed, "xpAwarded": awarded},
				})
			}
		}
	}

	if reply.TaskToCreate != nil && reply.TaskToCreate.Content != "" {
		if _, err := o.createDrafts(ctx, sess, nil, []ai.TaskDraft{*reply.TaskToCreate}); err != nil {
			return calls, err
		}
		calls = append(calls, storage.ToolCall{
			Name:   "create_smart_task",
			Args:   map[string]any{"content": reply.TaskToCreate.Content},
			Result: map[string]any{"created": 1},
		})
	}

	if len(reply.ChildTasks) > 0 {
		parentID := legacyBreakdownParent(snapshot)
		if parentID == nil {
			o.log.Warn("childTasks with no resolvable parent, skipping")
		} else {
			n, err := o.createDrafts(ctx, sess, parentID, reply.ChildTasks)
			if err != nil {
				return calls, err
			}
			calls = append(calls, storage.ToolCall{
				Name:   "recursive_breakdown",
				Args:   map[string]any{"count": n},
				Result: map[string]any{"created": n},
			})
		}
	}

	if reply.SedonaComplete {
		c, err := o.recordSedonaRelease(ctx, sess)
		if err != nil {
			return calls, err
		}
		calls = append(calls, c...)
	}

	return calls, nil
}

// createDrafts inserts assistant-proposed tasks for the session, inheriting
// the session's selected monument, and returns how many were created.
func (o *Orchestrator) createDrafts(ctx context.Context, sess *storage.Session, parentID *string, drafts []ai.TaskDraft) (int, error) {
	n := 0
	for _, d := range drafts {
		if d.Content == "" {
			continue
		}
		_, err := o.store.CreateTask(ctx, storage.NewTask{
			ParentID:   parentID,
			MonumentID: sess.SelectedMonumentID,
			SessionID:  &sess.ID,
			Content:    d.Content,
			Category:   d.Category,
			XPValue:    d.XPValue,
			IsDraft:    true,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// recordSedonaRelease credits the emotion monument once and inserts an
// already-completed inner_work task as a durable record. The record task is
// created directly (not through the completion engine) so its XP value stays
// descriptive and is never re-applied to the ledger.
func (o *Orchestrator) recordSedonaRelease(ctx context.Context, sess *storage.Session) ([]storage.ToolCall, error) {
	var calls []storage.ToolCall

	var emotionID *string
	ok, err := o.engine.AwardToSlug(ctx, "emotion", xp.SedonaReleaseXP)
	if err != nil {
		return nil, err
	}
	if ok {
		if m, err := o.store.GetMonumentBySlug(ctx, "emotion"); err == nil {
			emotionID = &m.ID
		}
		calls = append(calls, storage.ToolCall{
			Name:   "award_xp",
			Args:   map[string]any{"monument": "emotion", "amount": xp.SedonaReleaseXP},
			Result: map[string]any{"awarded": xp.SedonaReleaseXP},
		})
	} else {
		o.log.Warn("emotion monument missing, sedona award skipped")
	}

	_, err = o.store.CreateTask(ctx, storage.NewTask{
		MonumentID: emotionID,
		SessionID:  &sess.ID,
		Content:    "Completed a Sedona release",
		Status:     storage.StatusCompleted,
		Type:       storage.TypeInnerWork,
		XPValue:    xp.SedonaReleaseXP,
	})
	if err != nil {
		return calls, err
	}

	o.events.Log(ctx, sess.ID, events.SedonaReleased, map[string]any{
		"xp": xp.SedonaReleaseXP,
	})
	return calls, nil
}

// legacyBreakdownParent picks the task old-style childTasks attach to: the
// last task of the pre-turn snapshot.
func legacyBreakdownParent(snapshot []*storage.Task) *string {
	if len(snapshot) == 0 {
		return nil
	}
	id := snapshot[len(snapshot)-1].ID
	return &id
}
