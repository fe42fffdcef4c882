package ai

import (
	"fmt"
	"strings"
)

// Mode selects which conversation the model is asked to run.
type Mode string

const (
	ModeCollaborative Mode = "collaborative"
	ModeBreakdown     Mode = "breakdown"
	ModeSedona        Mode = "sedona"
)

// HistoryEntry is one prior conversation turn passed as context.
type HistoryEntry struct {
	Role    string
	Content string
}

// TaskView is the id-free projection of a session task shown to the model.
type TaskView struct {
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
	XPValue  int    `json:"xpValue"`
}

// TurnContext is everything mode-specific the model sees besides the user
// message itself.
type TurnContext struct {
	History      []HistoryEntry // last turns, at most six
	Tasks        []TaskView     // current session task list
	MonumentSlug string         // collaborative/breakdown only
	SedonaStep   int            // sedona only, 1..3
}

const replyFormat = `Respond with a single JSON object and nothing else. Fields:
"content" (string, required): your conversational reply.
"options" (array of strings, optional): short choices to offer the user.
"optionsNote" (string, optional): caption for the options.
"taskList" (array, optional): create a full task list; each item has
  "content" (string), "category" ("E"|"A"|"P"|"X"), "xpValue" (integer >= 0).
"taskUpdates" (object, optional): incremental edits against the numbered task
  list you were shown. "add" (array of task items), "remove" (array of
  zero-based indices), "breakdown" ({"taskIndex", "newTasks"}), "complete"
  (array of zero-based indices).
"sedonaStep" (1-3), "sedonaComplete" (boolean), "suggestModeSwitch" (boolean),
"switchReason" (string): release-flow signals only.`

const collaborativeSystem = `You are a warm, practical life coach inside the
LifeBuilder app. You help the user turn intentions into small concrete tasks.
Co-create: propose tasks, refine them with the user, and keep each task
achievable within a day or a week. Categories: E = eliminate something,
A = accumulate a habit or asset, P = planning work, X = an experience.
XP rewards are small integers, usually 5-30.

` + replyFormat

const breakdownSystem = `You are a life coach helping a user who feels stuck
on a task. Split the referenced task into 2-5 smaller steps that each feel
easy to start. Use "taskUpdates"."breakdown" with the zero-based index of the
stuck task and the new child steps. If no task list was provided, suggest
first steps with "taskList" instead.

` + replyFormat

const sedonaSystem = `You are guiding a Sedona Method emotional release, one
step per turn. Step 1 Identify: help the user name what they feel. Step 2
Allow: invite them to let the feeling be present. Step 3 Release: ask whether
they could let it go, and when the release lands set "sedonaComplete" to true.
Report the current step in "sedonaStep". Never create tasks in this flow. If
the user clearly wants to get back to planning, set "suggestModeSwitch" and a
short "switchReason".

` + replyFormat

func systemPrompt(mode Mode) string {
	switch mode {
	case ModeBreakdown:
		return breakdownSystem
	case ModeSedona:
		return sedonaSystem
	default:
		return collaborativeSystem
	}
}

// BuildTurnPrompt assembles the user-side prompt: recent history, the
// numbered task snapshot, the selected life domain or sedona step, then the
// new message.
func BuildTurnPrompt(mode Mode, message string, tc TurnContext) string {
	var b strings.Builder

	if len(tc.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, h := range tc.History {
			b.WriteString(h.Role)
			b.WriteString(": ")
			b.WriteString(h.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(tc.Tasks) > 0 {
		b.WriteString("Current task list (zero-based indices):\n")
		for i, t := range tc.Tasks {
			fmt.Fprintf(&b, "%d. %s", i, t.Content)
			if t.Category != "" {
				fmt.Fprintf(&b, " [%s]", t.Category)
			}
			fmt.Fprintf(&b, " (%d XP)\n", t.XPValue)
		}
		b.WriteString("\n")
	}

	switch mode {
	case ModeSedona:
		fmt.Fprintf(&b, "Current release step: %d\n\n", tc.SedonaStep)
	default:
		if tc.MonumentSlug != "" {
			fmt.Fprintf(&b, "Selected life domain: %s\n\n", tc.MonumentSlug)
		}
	}

	b.WriteString("User message: ")
	b.WriteString(message)
	return b.String()
}

const classifierSystem = `Classify the user's latest message in a task-planning
chat. Respond with a single JSON object:
{"mode": "breakdown" or "normal", "isEmotional": true or false}
"breakdown" means the user feels stuck or overwhelmed by a task and wants it
split into smaller steps. "isEmotional" means the message is primarily about a
feeling (anxiety, sadness, anger, shame) rather than about planning.`
