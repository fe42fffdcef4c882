package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrUpstream marks AI failures: transport errors, timeouts and replies that
// do not validate against the reply schema. Turns failing with it apply no
// mutations and are safe to retry.
var ErrUpstream = errors.New("upstream ai failure")

// TaskDraft is one assistant-proposed task.
type TaskDraft struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"` // E | A | P | X
	XPValue  int    `json:"xpValue,omitempty"`
}

// Breakdown asks for child tasks under the task at TaskIndex in the pre-turn
// snapshot.
type Breakdown struct {
	TaskIndex int         `json:"taskIndex"`
	NewTasks  []TaskDraft `json:"newTasks"`
}

// TaskUpdates carries incremental mutations. Remove/Complete indices and
// Breakdown.TaskIndex all resolve against the snapshot of the session's task
// list taken at the start of the turn.
type TaskUpdates struct {
	Add       []TaskDraft `json:"add,omitempty"`
	Remove    []int       `json:"remove,omitempty"`
	Breakdown *Breakdown  `json:"breakdown,omitempty"`
	Complete  []int       `json:"complete,omitempty"`
}

// Reply is the discriminated assistant payload. Any combination of the
// optional fields may be present; the interpreter applies whichever are
// non-empty in a fixed order.
type Reply struct {
	Content      string      `json:"content"`
	Options      []string    `json:"options,omitempty"`
	OptionsNote  string      `json:"optionsNote,omitempty"`
	TaskList     []TaskDraft `json:"taskList,omitempty"`
	TaskListNote string      `json:"taskListNote,omitempty"`
	TaskUpdates  *TaskUpdates `json:"taskUpdates,omitempty"`

	// legacy single-task fields, still emitted by older prompts
	TaskToCreate *TaskDraft  `json:"taskToCreate,omitempty"`
	ChildTasks   []TaskDraft `json:"childTasks,omitempty"`

	SedonaStep        int    `json:"sedonaStep,omitempty"`
	SedonaComplete    bool   `json:"sedonaComplete,omitempty"`
	SuggestModeSwitch bool   `json:"suggestModeSwitch,omitempty"`
	SwitchReason      string `json:"switchReason,omitempty"`
}

const draftSchema = `{
	"type": "object",
	"required": ["content"],
	"properties": {
		"content":  {"type": "string", "minLength": 1},
		"category": {"type": "string", "enum": ["E", "A", "P", "X", ""]},
		"xpValue":  {"type": "integer", "minimum": 0}
	},
	"additionalProperties": false
}`

var replySchema = `{
	"type": "object",
	"required": ["content"],
	"properties": {
		"content":      {"type": "string"},
		"options":      {"type": "array", "items": {"type": "string"}},
		"optionsNote":  {"type": "string"},
		"taskList":     {"type": "array", "items": ` + draftSchema + `},
		"taskListNote": {"type": "string"},
		"taskUpdates": {
			"type": "object",
			"properties": {
				"add":    {"type": "array", "items": ` + draftSchema + `},
				"remove": {"type": "array", "items": {"type": "integer", "minimum": 0}},
				"breakdown": {
					"type": "object",
					"required": ["taskIndex", "newTasks"],
					"properties": {
						"taskIndex": {"type": "integer", "minimum": 0},
						"newTasks":  {"type": "array", "items": ` + draftSchema + `}
					},
					"additionalProperties": false
				},
				"complete": {"type": "array", "items": {"type": "integer", "minimum": 0}}
			},
			"additionalProperties": false
		},
		"taskToCreate": ` + draftSchema + `,
		"childTasks":   {"type": "array", "items": ` + draftSchema + `},
		"sedonaStep":        {"type": "integer", "minimum": 1, "maximum": 3},
		"sedonaComplete":    {"type": "boolean"},
		"suggestModeSwitch": {"type": "boolean"},
		"switchReason":      {"type": "string"}
	},
	"additionalProperties": false
}`

var compiledReplySchema *gojsonschema.Schema

func init() {
	var err error
	compiledReplySchema, err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(replySchema))
	if err != nil {
		panic("ai: invalid reply schema: " + err.Error())
	}
}

// ParseReply validates the raw model output against the reply schema and
// decodes it. Schema failure is treated the same as any other upstream
// failure: the turn aborts before any mutation.
func ParseReply(raw string) (*Reply, error) {
	raw = stripCodeFence(raw)

	result, err := compiledReplySchema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: reply is not valid JSON: %v", ErrUpstream, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: reply failed schema: %s", ErrUpstream, strings.Join(msgs, "; "))
	}

	var reply Reply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", ErrUpstream, err)
	}
	return &reply, nil
}

// stripCodeFence removes a ```json ... ``` wrapper if the model added one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
