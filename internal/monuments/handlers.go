package monuments

import (
	"net/http"

	"lifebuilder-backend/internal/httpx"
	"lifebuilder-backend/internal/storage"
)

func ListHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ms, err := store.ListMonuments(r.Context())
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		if ms == nil {
			ms = []*storage.Monument{}
		}
		httpx.WriteJSON(w, http.StatusOK, ms)
	}
}

func GetBySlugHandler(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := store.GetMonumentBySlug(r.Context(), r.PathValue("slug"))
		if err != nil {
			httpx.WriteFailure(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, m)
	}
}
