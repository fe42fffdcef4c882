// Package events records audit events (chat turns, completions) as JSON-prop
// rows. Event logging is best-effort and never breaks the core flow.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Event names recorded by the orchestrator and the task handlers.
const (
	ChatTurnCompleted = "chat_turn_completed"
	TaskCompleted     = "task_completed"
	TaskUncompleted   = "task_uncompleted"
	SedonaReleased    = "sedona_released"
)

type Recorder struct {
	db  *sql.DB // nil in DB-less runs; events then go to the log only
	log *zap.Logger
}

func NewRecorder(db *sql.DB, log *zap.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Log inserts one event row. Failures are swallowed; callers must not depend
// on the event being stored.
func (r *Recorder) Log(ctx context.Context, sessionID, eventName string, props map[string]any) {
	if eventName == "" {
		return
	}

	b, err := json.Marshal(props)
	if err != nil {
		return
	}

	if r.db == nil {
		r.log.Debug("event", zap.String("name", eventName), zap.String("session", sessionID))
		return
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO events (event_name, event_time, session_id, properties)
		VALUES ($1, $2, NULLIF($3,''), $4::jsonb)`,
		eventName, time.Now().UTC(), sessionID, string(b))
	if err != nil {
		r.log.Warn("event insert failed", zap.String("name", eventName), zap.Error(err))
	}
}
