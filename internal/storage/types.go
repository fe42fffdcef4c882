package storage

import "time"

// Task statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Task types.
const (
	TypeAction    = "action"
	TypeInnerWork = "inner_work"
)

// Session flow types.
const (
	FlowMood = "mood"
	FlowTask = "task"
)

type Task struct {
	ID          string     `json:"id"`
	ParentID    *string    `json:"parentId,omitempty"`
	MonumentID  *string    `json:"monumentId,omitempty"`
	SessionID   *string    `json:"sessionId,omitempty"`
	Content     string     `json:"content"`
	Status      string     `json:"status"`
	Type        string     `json:"type"`
	Category    string     `json:"category,omitempty"` // E | A | P | X
	XPValue     int        `json:"xpValue"`
	SortOrder   int        `json:"sortOrder"`
	IsDraft     bool       `json:"isDraft"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type Monument struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	TotalXP int    `json:"totalXp"`
}

// Message is one entry in a session's append-only log.
type Message struct {
	Role      string     `json:"role"` // user | assistant
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// ToolCall records one mutation group applied during a chat turn.
type ToolCall struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

type Session struct {
	ID                 string    `json:"id"`
	FlowType           string    `json:"flowType"` // mood | task
	SelectedMonumentID *string   `json:"selectedMonumentId,omitempty"`
	CurrentStep        int       `json:"currentStep"`
	Messages           []Message `json:"messages"`
	CreatedAt          time.Time `json:"createdAt"`
}

// AssistantMessageCount returns how many assistant turns the session has seen.
// The sedona step is derived from this count.
func (s *Session) AssistantMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == "assistant" {
			n++
		}
	}
	return n
}

// NewTask carries the caller-supplied fields for task creation; the store
// assigns id, created_at and defaults.
type NewTask struct {
	ParentID   *string
	MonumentID *string
	SessionID  *string
	Content    string
	Status     string // defaults to pending
	Type       string // defaults to action
	Category   string
	XPValue    int
	SortOrder  int
	IsDraft    bool
}

// TaskPatch holds optional field updates; nil means leave unchanged.
type TaskPatch struct {
	Content    *string
	Status     *string
	Category   *string
	XPValue    *int
	SortOrder  *int
	IsDraft    *bool
	MonumentID *string
}
