package chat

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"lifebuilder-backend/internal/ai"
	"lifebuilder-backend/internal/events"
	"lifebuilder-backend/internal/storage"
	"lifebuilder-backend/internal/xp"
)

const historyWindow = 6

// Orchestrator runs one chat turn: mode selection, AI invocation, mutation
// application against the pre-turn task snapshot, persistence, response
// assembly. Mutations only begin after a successful, fully-parsed AI reply.
type Orchestrator struct {
	store      storage.Storage
	gen        ai.Generator
	classifier ai.Classifier
	engine     *xp.Engine
	events     *events.Recorder
	log        *zap.Logger

	// one writer per session around snapshot -> mutate -> persist, so a
	// double-submit cannot invalidate the index-snapshot contract; entries
	// are evicted when the last holder releases, bounding the map by
	// in-flight turns
	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewOrchestrator(store storage.Storage, gen ai.Generator, classifier ai.Classifier,
	engine *xp.Engine, rec *events.Recorder, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		gen:        gen,
		classifier: classifier,
		engine:     engine,
		events:     rec,
		log:        log,
		locks:      make(map[string]*sessionLock),
	}
}

// TurnResult is the full post-mutation state returned to the UI, so it can
// render without a second round-trip.
type TurnResult struct {
	Content           string             `json:"content"`
	Options           []string           `json:"options,omitempty"`
	OptionsNote       string             `json:"optionsNote,omitempty"`
	Tasks             []*storage.Task    `json:"tasks"`
	TaskListNote      string             `json:"taskListNote,omitempty"`
	ToolCalls         []storage.ToolCall `json:"toolCalls,omitempty"`
	SedonaStep        int                `json:"sedonaStep,omitempty"`
	SedonaComplete    bool               `json:"sedonaComplete,omitempty"`
	SuggestModeSwitch bool               `json:"suggestModeSwitch,omitempty"`
	SwitchReason      string             `json:"switchReason,omitempty"`
	UIMode            string             `json:"uiMode,omitempty"`
}

func (o *Orchestrator) lockSession(id string) *sessionLock {
	o.locksMu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sessionLock{}
		o.locks[id] = l
	}
	l.refs++
	o.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (o *Orchestrator) unlockSession(id string, l *sessionLock) {
	l.mu.Unlock()

	o.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(o.locks, id)
	}
	o.locksMu.Unlock()
}

// HandleTurn processes one user message for the session.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, message string, images []string) (*TurnResult, error) {
	l := o.lockSession(sessionID)
	defer o.unlockSession(sessionID, l)

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snapshot, err := o.store.ListSessionTasks(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	mode, uiMode, step := o.selectMode(ctx, sess, message)

	tc := ai.TurnContext{
		History:    historyContext(sess.Messages),
		Tasks:      taskViews(snapshot),
		SedonaStep: step,
	}
	if mode != ai.ModeSedona && sess.SelectedMonumentID != nil {
		if m, err := o.store.GetMonument(ctx, *sess.SelectedMonumentID); err == nil {
			tc.MonumentSlug = m.Slug
		}
	}

	// dominant suspension point; a failed or aborted call leaves no mutations
	reply, err := o.gen.Generate(ctx, mode, message, images, tc)
	if err != nil {
		return nil, err
	}

	toolCalls, err := o.applyReply(ctx, sess, snapshot, reply)
	if err != nil {
		return nil, err
	}

	err = o.store.AppendMessages(ctx, sessionID,
		storage.Message{Role: "user", Content: message},
		storage.Message{Role: "assistant", Content: reply.Content, ToolCalls: toolCalls},
	)
	if err != nil {
		return nil, err
	}

	tasks, err := o.store.ListSessionTasks(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*storage.Task{}
	}

	o.events.Log(ctx, sessionID, events.ChatTurnCompleted, map[string]any{
		"mode":       string(mode),
		"tool_calls": len(toolCalls),
		"tasks":      len(tasks),
	})

	res := &TurnResult{
		Content:           reply.Content,
		Options:           reply.Options,
		OptionsNote:       reply.OptionsNote,
		Tasks:             tasks,
		TaskListNote:      reply.TaskListNote,
		ToolCalls:         toolCalls,
		SuggestModeSwitch: reply.SuggestModeSwitch,
		SwitchReason:      reply.SwitchReason,
		UIMode:            uiMode,
	}
	if mode == ai.ModeSedona {
		// the step is derived from the message count only; a model-reported
		// step is ignored so the observed sequence can never regress
		res.SedonaStep = step
		res.SedonaComplete = reply.SedonaComplete
	}
	return res, nil
}

// selectMode applies the priority rules: mood sessions always run the release
// flow; task sessions consult the classifier, which may divert to a breakdown
// or an emotional detour. The detour sets a UI hint so the caller can switch
// screens.
func (o *Orchestrator) selectMode(ctx context.Context, sess *storage.Session, message string) (mode ai.Mode, uiMode string, step int) {
	if sess.FlowType == storage.FlowMood {
		return ai.ModeSedona, "", sedonaStep(sess)
	}

	intent := ai.DefaultIntent()
	if strings.TrimSpace(message) != "" {
		intent = o.classifier.Classify(ctx, message)
	}

	switch {
	case intent.Mode == ai.IntentBreakdown:
		return ai.ModeBreakdown, "", 0
	case intent.IsEmotional:
		return ai.ModeSedona, "sedona", sedonaStep(sess)
	default:
		return ai.ModeCollaborative, "", 0
	}
}

// sedonaStep derives the release step (1 Identify, 2 Allow, 3 Release) from
// the assistant-message count. It only ever advances, capped at 3.
func sedonaStep(sess *storage.Session) int {
	step := sess.AssistantMessageCount()
	if step < 1 {
		step = 1
	}
	if step > 3 {
		step = 3
	}
	return step
}

func historyContext(msgs []storage.Message) []ai.HistoryEntry {
	start := len(msgs) - historyWindow
	if start < 0 {
		start = 0
	}
	out := make([]ai.HistoryEntry, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		out = append(out, ai.HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out
}

func taskViews(tasks []*storage.Task) []ai.TaskView {
	out := make([]ai.TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, ai.TaskView{Content: t.Content, Category: t.Category, XPValue: t.XPValue})
	}
	return out
}
