package sessions

import (
	"encoding/json"
	"net/http"

	"lifebuilder-backend/internal/httpx"
	"lifebuilder-backend/internal/storage"
)

func CreateHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FlowType   string  `json:"flowType"`
			MonumentID *string `json:"monumentId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if body.FlowType != storage.FlowMood && body.FlowType != storage.FlowTask {
			httpx.WriteError(w, http.StatusBadRequest, "flowType must be \"mood\" or \"task\"")
			return
		}
		if body.MonumentID != nil {
			if _, err := store.GetMonument(r.Context(), *body.MonumentID); err != nil {
				httpx.WriteFailure(w, err)
				return
			}
		}

		sess, err := store.CreateSession(r.Context(), body.FlowType, body.MonumentID)
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, sess)
	}
}

// SelectMonumentHandler sets the session's life domain. It is only ever set
// once; repeat attempts are rejected.
func SelectMonumentHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			MonumentID string `json:"monumentId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if body.MonumentID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "monumentId is required")
			return
		}

		sess, err := store.GetSession(r.Context(), r.PathValue("sessionId"))
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		if sess.SelectedMonumentID != nil {
			httpx.WriteError(w, http.StatusBadRequest, "monument already selected")
			return
		}
		if _, err := store.GetMonument(r.Context(), body.MonumentID); err != nil {
			httpx.WriteFailure(w, err)
			return
		}

		if err := store.SetSessionMonument(r.Context(), sess.ID, body.MonumentID); err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		sess.SelectedMonumentID = &body.MonumentID
		httpx.WriteJSON(w, http.StatusOK, sess)
	}
}

func GetHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := store.GetSession(r.Context(), r.PathValue("sessionId"))
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, sess)
	}
}

func TasksHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("sessionId")
		if _, err := store.GetSession(r.Context(), id); err != nil {
			httpx.WriteFailure(w, err)
			return
		}

		tasks, err := store.ListSessionTasks(r.Context(), id)
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		if tasks == nil {
			tasks = []*storage.Task{}
		}
		httpx.WriteJSON(w, http.StatusOK, tasks)
	}
}
