package api

import (
	"net/http"
)

// EntriesHandler handles single entry requests.
type EntriesHandler struct {
	deps EntryDependencies
}

// NewEntriesHandler creates a new entries handler.
func NewEntriesHandler(deps EntryDependencies) *EntriesHandler {
	return &EntriesHandler{deps: deps}
}

// HandleGet handles GET /entries/{id}.
func (h *EntriesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.deps.Entry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleDelete handles DELETE /entries/{id}. The removed entry is returned
// with the rank it held.
func (h *EntriesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	entry, err := h.deps.DeleteEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleRerank handles POST /entries/{id}/rerank.
func (h *EntriesHandler) HandleRerank(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.BeginRerank(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}
