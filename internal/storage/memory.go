package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps everything in mutex-guarded maps. It backs tests and
// DB-less development runs; the semantics mirror the Postgres store exactly.
type MemoryStorage struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	monuments map[string]*Monument
	sessions  map[string]*Session
	seq       int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks:     make(map[string]*Task),
		monuments: make(map[string]*Monument),
		sessions:  make(map[string]*Session),
	}
}

// ---------- tasks ----------

func (s *MemoryStorage) CreateTask(_ context.Context, nt NewTask) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{
		ID:         uuid.NewString(),
		ParentID:   nt.ParentID,
		MonumentID: nt.MonumentID,
		SessionID:  nt.SessionID,
		Content:    nt.Content,
		Status:     nt.Status,
		Type:       nt.Type,
		Category:   nt.Category,
		XPValue:    nt.XPValue,
		SortOrder:  nt.SortOrder,
		IsDraft:    nt.IsDraft,
		CreatedAt:  time.Now().UTC(),
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Type == "" {
		t.Type = TypeAction
	}
	if t.Status == StatusCompleted {
		now := t.CreatedAt
		t.CompletedAt = &now
	}
	if t.SortOrder == 0 {
		s.seq++
		t.SortOrder = s.seq
	}
	s.tasks[t.ID] = t
	return cloneTask(t), nil
}

func (s *MemoryStorage) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(t), nil
}

func (s *MemoryStorage) ListTasks(_ context.Context, monumentID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if monumentID != "" && (t.MonumentID == nil || *t.MonumentID != monumentID) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sortTasks(out)
	return out, nil
}

func (s *MemoryStorage) ListSessionTasks(_ context.Context, sessionID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if t.SessionID != nil && *t.SessionID == sessionID {
			out = append(out, cloneTask(t))
		}
	}
	sortTasks(out)
	return out, nil
}

func (s *MemoryStorage) UpdateTask(_ context.Context, id string, patch TaskPatch) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Content != nil {
		t.Content = *patch.Content
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Category != nil {
		t.Category = *patch.Category
	}
	if patch.XPValue != nil {
		t.XPValue = *patch.XPValue
	}
	if patch.SortOrder != nil {
		t.SortOrder = *patch.SortOrder
	}
	if patch.IsDraft != nil {
		t.IsDraft = *patch.IsDraft
	}
	if patch.MonumentID != nil {
		t.MonumentID = patch.MonumentID
	}
	return cloneTask(t), nil
}

// DeleteTask removes the task and all descendants in one BFS pass over a
// child index built up front, so deep trees cost one walk rather than one
// lookup per node.
func (s *MemoryStorage) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}

	children := make(map[string][]string)
	for _, t := range s.tasks {
		if t.ParentID != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t.ID)
		}
	}

	frontier := []string{id}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		frontier = append(frontier, children[cur]...)
		delete(s.tasks, cur)
	}
	return nil
}

func (s *MemoryStorage) CompleteTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status == StatusCompleted {
		return cloneTask(t), nil
	}
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	if t.MonumentID != nil {
		if m, ok := s.monuments[*t.MonumentID]; ok {
			m.TotalXP += t.XPValue
		}
	}
	return cloneTask(t), nil
}

func (s *MemoryStorage) UncompleteTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != StatusCompleted {
		return cloneTask(t), nil
	}
	t.Status = StatusPending
	t.CompletedAt = nil
	if t.MonumentID != nil {
		if m, ok := s.monuments[*t.MonumentID]; ok {
			m.TotalXP -= t.XPValue
		}
	}
	return cloneTask(t), nil
}

// ---------- monuments ----------

func (s *MemoryStorage) ListMonuments(_ context.Context) ([]*Monument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Monument
	for _, m := range s.monuments {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *MemoryStorage) GetMonumentBySlug(_ context.Context, slug string) (*Monument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.monuments {
		if m.Slug == slug {
			cp := *m
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetMonument(_ context.Context, id string) (*Monument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.monuments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStorage) AddMonumentXP(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monuments[id]
	if !ok {
		return ErrNotFound
	}
	m.TotalXP += delta
	return nil
}

func (s *MemoryStorage) SeedMonuments(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.monuments) > 0 {
		return nil
	}
	for _, dm := range DefaultMonuments {
		m := dm
		m.ID = uuid.NewString()
		s.monuments[m.ID] = &m
	}
	return nil
}

// ---------- sessions ----------

func (s *MemoryStorage) CreateSession(_ context.Context, flowType string, monumentID *string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		ID:                 uuid.NewString(),
		FlowType:           flowType,
		SelectedMonumentID: monumentID,
		Messages:           []Message{},
		CreatedAt:          time.Now().UTC(),
	}
	s.sessions[sess.ID] = sess
	return cloneSession(sess), nil
}

func (s *MemoryStorage) GetSession(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemoryStorage) SetSessionMonument(_ context.Context, id string, monumentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.SelectedMonumentID = &monumentID
	return nil
}

func (s *MemoryStorage) AppendMessages(_ context.Context, id string, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Messages = append(sess.Messages, msgs...)
	return nil
}

// ---------- helpers ----------

func cloneTask(t *Task) *Task {
	cp := *t
	return &cp
}

func cloneSession(s *Session) *Session {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	return &cp
}

func sortTasks(ts []*Task) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].SortOrder != ts[j].SortOrder {
			return ts[i].SortOrder < ts[j].SortOrder
		}
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.Before(ts[j].CreatedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}
