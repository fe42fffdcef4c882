package tasks

import (
	"encoding/json"
	"net/http"
	"strings"

	"lifebuilder-backend/internal/events"
	"lifebuilder-backend/internal/httpx"
	"lifebuilder-backend/internal/storage"
	"lifebuilder-backend/internal/xp"
)

type createBody struct {
	Content    string  `json:"content"`
	ParentID   *string `json:"parentId"`
	MonumentID *string `json:"monumentId"`
	SessionID  *string `json:"sessionId"`
	Category   string  `json:"category"`
	XPValue    int     `json:"xpValue"`
	IsDraft    bool    `json:"isDraft"`
}

func (b *createBody) validate() (string, bool) {
	if strings.TrimSpace(b.Content) == "" {
		return "content is required", false
	}
	if b.XPValue < 0 {
		return "xpValue must be >= 0", false
	}
	switch b.Category {
	case "", "E", "A", "P", "X":
	default:
		return "invalid category", false
	}
	return "", true
}

func CreateHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if msg, ok := body.validate(); !ok {
			httpx.WriteError(w, http.StatusBadRequest, msg)
			return
		}

		t, err := store.CreateTask(r.Context(), storage.NewTask{
			ParentID:   body.ParentID,
			MonumentID: body.MonumentID,
			SessionID:  body.SessionID,
			Content:    strings.TrimSpace(body.Content),
			Category:   body.Category,
			XPValue:    body.XPValue,
			IsDraft:    body.IsDraft,
		})
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, t)
	}
}

func BulkCreateHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tasks []createBody `json:"tasks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if len(body.Tasks) == 0 {
			httpx.WriteError(w, http.StatusBadRequest, "tasks is required")
			return
		}
		for _, b := range body.Tasks {
			if msg, ok := b.validate(); !ok {
				httpx.WriteError(w, http.StatusBadRequest, msg)
				return
			}
		}

		created := make([]*storage.Task, 0, len(body.Tasks))
		for _, b := range body.Tasks {
			t, err := store.CreateTask(r.Context(), storage.NewTask{
				ParentID:   b.ParentID,
				MonumentID: b.MonumentID,
				SessionID:  b.SessionID,
				Content:    strings.TrimSpace(b.Content),
				Category:   b.Category,
				XPValue:    b.XPValue,
				IsDraft:    b.IsDraft,
			})
			if err != nil {
				httpx.WriteFailure(w, err)
				return
			}
			created = append(created, t)
		}
		httpx.WriteJSON(w, http.StatusCreated, created)
	}
}

func ListHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := store.ListTasks(r.Context(), r.URL.Query().Get("monumentId"))
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

func PatchHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content    *string `json:"content"`
			Status     *string `json:"status"`
			Category   *string `json:"category"`
			XPValue    *int    `json:"xpValue"`
			SortOrder  *int    `json:"sortOrder"`
			IsDraft    *bool   `json:"isDraft"`
			MonumentID *string `json:"monumentId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if body.Status != nil {
			switch *body.Status {
			case storage.StatusPending, storage.StatusCompleted, storage.StatusCancelled:
			default:
				httpx.WriteError(w, http.StatusBadRequest, "invalid status")
				return
			}
		}
		if body.Content != nil && strings.TrimSpace(*body.Content) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "content must not be empty")
			return
		}
		if body.XPValue != nil && *body.XPValue < 0 {
			httpx.WriteError(w, http.StatusBadRequest, "xpValue must be >= 0")
			return
		}
		if body.Category != nil {
			switch *body.Category {
			case "", "E", "A", "P", "X":
			default:
				httpx.WriteError(w, http.StatusBadRequest, "invalid category")
				return
			}
		}

		t, err := store.UpdateTask(r.Context(), r.PathValue("id"), storage.TaskPatch{
			Content:    body.Content,
			Status:     body.Status,
			Category:   body.Category,
			XPValue:    body.XPValue,
			SortOrder:  body.SortOrder,
			IsDraft:    body.IsDraft,
			MonumentID: body.MonumentID,
		})
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, t)
	}
}

func DeleteHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CompleteHandler and UncompleteHandler route status flips through the XP
// engine so the monument ledger stays consistent.
func CompleteHandler(engine *xp.Engine, rec *events.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := engine.Complete(r.Context(), r.PathValue("id"))
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		rec.Log(r.Context(), sessionOf(t), events.TaskCompleted, map[string]any{
			"task_id": t.ID,
			"xp":      t.XPValue,
		})
		httpx.WriteJSON(w, http.StatusOK, t)
	}
}

func UncompleteHandler(engine *xp.Engine, rec *events.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := engine.Uncomplete(r.Context(), r.PathValue("id"))
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		rec.Log(r.Context(), sessionOf(t), events.TaskUncompleted, map[string]any{
			"task_id": t.ID,
			"xp":      t.XPValue,
		})
		httpx.WriteJSON(w, http.StatusOK, t)
	}
}

// BreakdownHandler creates the supplied child steps under an existing task.
func BreakdownHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		var body struct {
			Tasks []createBody `json:"tasks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if len(body.Tasks) == 0 {
			httpx.WriteError(w, http.StatusBadRequest, "tasks is required")
			return
		}

		parent, err := store.GetTask(r.Context(), id)
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}

		children := make([]*storage.Task, 0, len(body.Tasks))
		for _, b := range body.Tasks {
			if msg, ok := b.validate(); !ok {
				httpx.WriteError(w, http.StatusBadRequest, msg)
				return
			}
			t, err := store.CreateTask(r.Context(), storage.NewTask{
				ParentID:   &parent.ID,
				MonumentID: parent.MonumentID,
				SessionID:  parent.SessionID,
				Content:    strings.TrimSpace(b.Content),
				Category:   b.Category,
				XPValue:    b.XPValue,
				IsDraft:    b.IsDraft,
			})
			if err != nil {
				httpx.WriteFailure(w, err)
				return
			}
			children = append(children, t)
		}
		httpx.WriteJSON(w, http.StatusCreated, children)
	}
}

func sessionOf(t *storage.Task) string {
	if t.SessionID != nil {
		return *t.SessionID
	}
	return ""
}
