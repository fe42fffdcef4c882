package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a task, session or monument does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the contract the orchestrator and the REST handlers require from
// the persistence layer. Two implementations exist: Postgres for deployments
// and an in-memory store for tests and DB-less development.
type Storage interface {
	// Tasks
	CreateTask(ctx context.Context, nt NewTask) (*Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, monumentID string) ([]*Task, error) // "" = all
	ListSessionTasks(ctx context.Context, sessionID string) ([]*Task, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*Task, error)
	// DeleteTask removes the task and, recursively, all of its descendants.
	DeleteTask(ctx context.Context, id string) error

	// CompleteTask atomically marks the task completed, stamps completedAt
	// and credits the owning monument's ledger with the task's XP value.
	// Calling it on an already-completed task is a no-op returning the task
	// unchanged; the ledger is never credited twice.
	CompleteTask(ctx context.Context, id string) (*Task, error)
	// UncompleteTask is the symmetric retraction: it only debits the ledger
	// if the task is currently completed, and clears completedAt.
	UncompleteTask(ctx context.Context, id string) (*Task, error)

	// Monuments
	ListMonuments(ctx context.Context) ([]*Monument, error)
	GetMonumentBySlug(ctx context.Context, slug string) (*Monument, error)
	GetMonument(ctx context.Context, id string) (*Monument, error)
	// AddMonumentXP adjusts a monument's ledger by delta (may be negative).
	AddMonumentXP(ctx context.Context, id string, delta int) error
	// SeedMonuments creates the six default monuments if none exist.
	SeedMonuments(ctx context.Context) error

	// Sessions
	CreateSession(ctx context.Context, flowType string, monumentID *string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	// SetSessionMonument sets selectedMonumentId; it is only ever set once.
	SetSessionMonument(ctx context.Context, id string, monumentID string) error
	// AppendMessages appends to the session's message log. Prior entries are
	// never rewritten.
	AppendMessages(ctx context.Context, id string, msgs ...Message) error
}

// DefaultMonuments are seeded on first boot, one per life domain.
var DefaultMonuments = []Monument{
	{Slug: "career", Name: "Career"},
	{Slug: "wealth", Name: "Wealth"},
	{Slug: "emotion", Name: "Emotion"},
	{Slug: "family", Name: "Family"},
	{Slug: "health", Name: "Health"},
	{Slug: "experience", Name: "Experience"},
}
