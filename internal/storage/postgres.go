package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresStorage implements Storage over database/sql + lib/pq.
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

const taskColumns = `
	id, parent_id, monument_id, session_id,
	content, status, type, COALESCE(category,''),
	xp_value, sort_order, is_draft, completed_at, created_at`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var (
		t           Task
		parentID    sql.NullString
		monumentID  sql.NullString
		sessionID   sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &parentID, &monumentID, &sessionID,
		&t.Content, &t.Status, &t.Type, &t.Category,
		&t.XPValue, &t.SortOrder, &t.IsDraft, &completedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		t.ParentID = &parentID.String
	}
	if monumentID.Valid {
		t.MonumentID = &monumentID.String
	}
	if sessionID.Valid {
		t.SessionID = &sessionID.String
	}
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}

// ---------- tasks ----------

func (s *PostgresStorage) CreateTask(ctx context.Context, nt NewTask) (*Task, error) {
	status := nt.Status
	if status == "" {
		status = StatusPending
	}
	typ := nt.Type
	if typ == "" {
		typ = TypeAction
	}
	var completedAt sql.NullTime
	if status == StatusCompleted {
		completedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (
			id, parent_id, monument_id, session_id,
			content, status, type, category,
			xp_value, sort_order, is_draft, completed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,
			CASE WHEN $10 = 0 THEN nextval('task_sort_seq') ELSE $10 END,
			$11,$12)
		RETURNING `+taskColumns,
		uuid.NewString(), nullStr(nt.ParentID), nullStr(nt.MonumentID), nullStr(nt.SessionID),
		nt.Content, status, typ, nt.Category,
		nt.XPValue, nt.SortOrder, nt.IsDraft, completedAt,
	)
	return scanTask(row)
}

func (s *PostgresStorage) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *PostgresStorage) ListTasks(ctx context.Context, monumentID string) ([]*Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks ORDER BY sort_order, created_at, id`
	args := []any{}
	if monumentID != "" {
		q = `SELECT ` + taskColumns + ` FROM tasks WHERE monument_id=$1 ORDER BY sort_order, created_at, id`
		args = append(args, monumentID)
	}
	return s.queryTasks(ctx, q, args...)
}

func (s *PostgresStorage) ListSessionTasks(ctx context.Context, sessionID string) ([]*Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE session_id=$1
		ORDER BY sort_order, created_at, id`, sessionID)
}

func (s *PostgresStorage) queryTasks(ctx context.Context, q string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks SET
			content    = COALESCE($2, content),
			status     = COALESCE($3, status),
			category   = COALESCE($4, category),
			xp_value   = COALESCE($5, xp_value),
			sort_order = COALESCE($6, sort_order),
			is_draft   = COALESCE($7, is_draft),
			monument_id = COALESCE($8, monument_id)
		WHERE id=$1
		RETURNING `+taskColumns,
		id, patch.Content, patch.Status, patch.Category,
		patch.XPValue, patch.SortOrder, patch.IsDraft, patch.MonumentID,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// DeleteTask deletes the whole subtree. Descendants are collected frontier by
// frontier (one query per depth level, not per node) and removed in one
// statement.
func (s *PostgresStorage) DeleteTask(ctx context.Context, id string) error {
	all := []string{id}
	frontier := []string{id}
	for len(frontier) > 0 {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id FROM tasks WHERE parent_id = ANY($1)`, pq.Array(frontier))
		if err != nil {
			return err
		}
		var next []string
		for rows.Next() {
			var cid string
			if err := rows.Scan(&cid); err != nil {
				rows.Close()
				return err
			}
			next = append(next, cid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		all = append(all, next...)
		frontier = next
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ANY($1)`, pq.Array(all))
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteTask marks the task completed and credits the monument ledger in
// one transaction. Already-completed tasks are returned untouched.
func (s *PostgresStorage) CompleteTask(ctx context.Context, id string) (*Task, error) {
	return s.toggleComplete(ctx, id, true)
}

func (s *PostgresStorage) UncompleteTask(ctx context.Context, id string) (*Task, error) {
	return s.toggleComplete(ctx, id, false)
}

func (s *PostgresStorage) toggleComplete(ctx context.Context, id string, complete bool) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1 FOR UPDATE`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if complete == (t.Status == StatusCompleted) {
		// already in the requested state, ledger untouched
		return t, tx.Commit()
	}

	if complete {
		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET status=$2, completed_at=$3 WHERE id=$1`,
			id, StatusCompleted, now)
		if err != nil {
			return nil, err
		}
		t.Status = StatusCompleted
		t.CompletedAt = &now
		if t.MonumentID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE monuments SET total_xp = total_xp + $2 WHERE id=$1`,
				*t.MonumentID, t.XPValue); err != nil {
				return nil, err
			}
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET status=$2, completed_at=NULL WHERE id=$1`,
			id, StatusPending)
		if err != nil {
			return nil, err
		}
		t.Status = StatusPending
		t.CompletedAt = nil
		if t.MonumentID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE monuments SET total_xp = total_xp - $2 WHERE id=$1`,
				*t.MonumentID, t.XPValue); err != nil {
				return nil, err
			}
		}
	}

	return t, tx.Commit()
}

// ---------- monuments ----------

func (s *PostgresStorage) ListMonuments(ctx context.Context) ([]*Monument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, slug, name, total_xp FROM monuments ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Monument
	for rows.Next() {
		var m Monument
		if err := rows.Scan(&m.ID, &m.Slug, &m.Name, &m.TotalXP); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GetMonumentBySlug(ctx context.Context, slug string) (*Monument, error) {
	var m Monument
	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, total_xp FROM monuments WHERE slug=$1`, slug).
		Scan(&m.ID, &m.Slug, &m.Name, &m.TotalXP)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStorage) GetMonument(ctx context.Context, id string) (*Monument, error) {
	var m Monument
	err := s.db.QueryRowContext(ctx,
		`SELECT id, slug, name, total_xp FROM monuments WHERE id=$1`, id).
		Scan(&m.ID, &m.Slug, &m.Name, &m.TotalXP)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStorage) AddMonumentXP(ctx context.Context, id string, delta int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monuments SET total_xp = total_xp + $2 WHERE id=$1`, id, delta)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) SeedMonuments(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM monuments`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, m := range DefaultMonuments {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO monuments (id, slug, name, total_xp)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (slug) DO NOTHING`,
			uuid.NewString(), m.Slug, m.Name); err != nil {
			return err
		}
	}
	return nil
}

// ---------- sessions ----------

func (s *PostgresStorage) CreateSession(ctx context.Context, flowType string, monumentID *string) (*Session, error) {
	sess := Session{
		ID:                 uuid.NewString(),
		FlowType:           flowType,
		SelectedMonumentID: monumentID,
		Messages:           []Message{},
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, flow_type, selected_monument_id, current_step)
		VALUES ($1, $2, $3, 0)
		RETURNING created_at`,
		sess.ID, flowType, nullStr(monumentID)).Scan(&sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStorage) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess       Session
		monumentID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, flow_type, selected_monument_id, current_step, created_at
		FROM sessions WHERE id=$1`, id).
		Scan(&sess.ID, &sess.FlowType, &monumentID, &sess.CurrentStep, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if monumentID.Valid {
		sess.SelectedMonumentID = &monumentID.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, COALESCE(tool_calls, '[]'::jsonb)
		FROM session_messages
		WHERE session_id=$1
		ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sess.Messages = []Message{}
	for rows.Next() {
		var (
			m   Message
			raw []byte
		)
		if err := rows.Scan(&m.Role, &m.Content, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &m.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tool calls: %w", err)
		}
		sess.Messages = append(sess.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStorage) SetSessionMonument(ctx context.Context, id string, monumentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET selected_monument_id=$2 WHERE id=$1`, id, monumentID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) AppendMessages(ctx context.Context, id string, msgs ...Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range msgs {
		tc, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_messages (session_id, seq, role, content, tool_calls)
			VALUES ($1,
				COALESCE((SELECT MAX(seq)+1 FROM session_messages WHERE session_id=$1), 1),
				$2, $3, $4::jsonb)`,
			id, m.Role, m.Content, string(tc)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullStr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
