package ai

import "context"

// Intent modes.
const (
	IntentNormal    = "normal"
	IntentBreakdown = "breakdown"
)

// Intent is the classifier's advisory verdict about a user message. It only
// informs mode selection and never mutates state.
type Intent struct {
	Mode        string // "breakdown" | "normal"
	IsEmotional bool
}

// DefaultIntent is what the router falls back to when classification fails;
// classification errors must never block the chat flow.
func DefaultIntent() Intent {
	return Intent{Mode: IntentNormal, IsEmotional: false}
}

// Classifier inspects a user message and decides whether it signals being
// stuck (wants a breakdown) or emotional (wants the release flow).
type Classifier interface {
	Classify(ctx context.Context, message string) Intent
}
