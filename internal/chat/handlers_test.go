package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lifebuilder-backend/internal/ai"
)

func TestChatHandlerValidation(t *testing.T) {
	gen := &stubGen{reply: &ai.Reply{Content: "ok"}}
	f := newFixture(t, gen, ai.DefaultIntent())
	h := Handler(f.orch, zap.NewNop())

	cases := map[string]string{
		"missing session": `{"message": "hi"}`,
		"missing message": `{"sessionId": "abc"}`,
		"blank message":   `{"sessionId": "abc", "message": "   "}`,
		"broken json":     `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest("POST", "/api/chat", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestChatHandlerUnknownSession(t *testing.T) {
	gen := &stubGen{reply: &ai.Reply{Content: "ok"}}
	f := newFixture(t, gen, ai.DefaultIntent())
	h := Handler(f.orch, zap.NewNop())

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("POST", "/api/chat",
		strings.NewReader(`{"sessionId": "ghost", "message": "hi"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatHandlerUpstreamFailure(t *testing.T) {
	gen := &stubGen{err: ai.ErrUpstream}
	f := newFixture(t, gen, ai.DefaultIntent())
	sess := f.taskSession(t, "")
	h := Handler(f.orch, zap.NewNop())

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("POST", "/api/chat",
		strings.NewReader(`{"sessionId": "`+sess.ID+`", "message": "hi"}`)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "retry")
}

func TestChatHandlerSuccessShape(t *testing.T) {
	gen := &stubGen{reply: &ai.Reply{
		Content:  "done",
		TaskList: []ai.TaskDraft{{Content: "new task", XPValue: 3}},
	}}
	f := newFixture(t, gen, ai.DefaultIntent())
	sess := f.taskSession(t, "")
	h := Handler(f.orch, zap.NewNop())

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("POST", "/api/chat",
		strings.NewReader(`{"sessionId": "`+sess.ID+`", "message": "plan"}`)))
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Content   string           `json:"content"`
		Tasks     []map[string]any `json:"tasks"`
		ToolCalls []map[string]any `json:"toolCalls"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "done", res.Content)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "pending", res.Tasks[0]["status"])
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "create_task_list", res.ToolCalls[0]["name"])
}
