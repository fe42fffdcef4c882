package xp

import (
	"context"
	"errors"

	"lifebuilder-backend/internal/storage"
)

// SedonaReleaseXP is the fixed reward for finishing an emotional release.
const SedonaReleaseXP = 15

// Engine owns the completion/uncompletion invariant: a task's XP hits its
// monument's ledger exactly once while the task is completed, and is
// retracted exactly once on uncompletion. The underlying store performs each
// operation atomically (one transaction in Postgres, one critical section in
// memory), so a ledger write can never outlive a failed status write.
type Engine struct {
	store storage.Storage
}

func New(store storage.Storage) *Engine {
	return &Engine{store: store}
}

// Complete marks the task completed and credits its monument. Completing an
// already-completed task is a no-op; XP is never added twice.
func (e *Engine) Complete(ctx context.Context, taskID string) (*storage.Task, error) {
	return e.store.CompleteTask(ctx, taskID)
}

// Uncomplete reverts a completed task to pending and retracts exactly the XP
// that was credited. Uncompleting a non-completed task leaves the ledger
// untouched.
func (e *Engine) Uncomplete(ctx context.Context, taskID string) (*storage.Task, error) {
	return e.store.UncompleteTask(ctx, taskID)
}

// AwardToSlug credits a monument looked up by slug, for rewards not tied to a
// task completion (the sedona release). A missing monument is not an error:
// the award is skipped and ok is false.
func (e *Engine) AwardToSlug(ctx context.Context, slug string, amount int) (ok bool, err error) {
	m, err := e.store.GetMonumentBySlug(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := e.store.AddMonumentXP(ctx, m.ID, amount); err != nil {
		return false, err
	}
	return true, nil
}
