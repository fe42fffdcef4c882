package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifebuilder-backend/internal/storage"
)

func newMux(t *testing.T) (*http.ServeMux, storage.Storage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.SeedMonuments(context.Background()))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", CreateHandler(store))
	mux.HandleFunc("GET /api/sessions/{sessionId}", GetHandler(store))
	mux.HandleFunc("PATCH /api/sessions/{sessionId}", SelectMonumentHandler(store))
	mux.HandleFunc("GET /api/sessions/{sessionId}/tasks", TasksHandler(store))
	return mux, store
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestCreateSession(t *testing.T) {
	mux, _ := newMux(t)

	w := do(mux, "POST", "/api/sessions", `{"flowType": "mood"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var sess storage.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, storage.FlowMood, sess.FlowType)
	assert.Empty(t, sess.Messages)
}

func TestCreateSessionRejectsBadFlow(t *testing.T) {
	mux, _ := newMux(t)
	w := do(mux, "POST", "/api/sessions", `{"flowType": "party"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSelectMonumentOnce(t *testing.T) {
	mux, store := newMux(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, storage.FlowTask, nil)
	require.NoError(t, err)
	career, err := store.GetMonumentBySlug(ctx, "career")
	require.NoError(t, err)
	health, err := store.GetMonumentBySlug(ctx, "health")
	require.NoError(t, err)

	w := do(mux, "PATCH", "/api/sessions/"+sess.ID, `{"monumentId": "`+career.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// a second pick is rejected
	w = do(mux, "PATCH", "/api/sessions/"+sess.ID, `{"monumentId": "`+health.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SelectedMonumentID)
	assert.Equal(t, career.ID, *got.SelectedMonumentID)
}

func TestSessionTasksUnknownSession(t *testing.T) {
	mux, _ := newMux(t)
	w := do(mux, "GET", "/api/sessions/ghost/tasks", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionTasksEmptyList(t *testing.T) {
	mux, store := newMux(t)
	sess, err := store.CreateSession(context.Background(), storage.FlowTask, nil)
	require.NoError(t, err)

	w := do(mux, "GET", "/api/sessions/"+sess.ID+"/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}
