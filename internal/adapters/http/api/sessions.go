package api

import (
	"fmt"
	"net/http"

	"github.com/okian/tierank/internal/domain/comparison"
	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/internal/domain/types"
)

// createSessionRequest mirrors the OpenAPI schema for POST /sessions.
type createSessionRequest struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	MediaKind  string `json:"media_kind"`
	Tier       string `json:"tier"`
}

func (req createSessionRequest) candidate() (model.Candidate, error) {
	kind, err := model.ParseMediaKind(req.MediaKind)
	if err != nil {
		return model.Candidate{}, err
	}
	tier, err := model.ParseTier(req.Tier)
	if err != nil {
		return model.Candidate{}, err
	}
	c := model.Candidate{ExternalID: req.ExternalID, Title: req.Title, MediaKind: kind, Tier: tier}
	return c, c.Validate()
}

type decisionRequest struct {
	DecisionID string `json:"decision_id"`
	Version    *int   `json:"version"`
	Outcome    string `json:"outcome"`
}

type undoRequest struct {
	Version *int `json:"version"`
}

// SessionsHandler handles comparison session requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleCreate handles POST /sessions.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	c, err := req.candidate()
	if err != nil {
		writeFailure(w, err)
		return
	}
	sess, err := h.deps.BeginSession(r.Context(), c)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleGet handles GET /sessions/{id}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.deps.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleAbandon handles DELETE /sessions/{id}.
func (h *SessionsHandler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Abandon(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDecision handles POST /sessions/{id}/decisions.
func (h *SessionsHandler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.Version == nil {
		writeFailure(w, fmt.Errorf("%w: missing version", ErrBadRequest))
		return
	}
	outcome, err := comparison.ParseOutcome(req.Outcome)
	if err != nil {
		writeFailure(w, err)
		return
	}

	sess, err := h.deps.Decide(r.Context(), r.PathValue("id"), req.DecisionID, *req.Version, outcome)
	if err != nil {
		writeConflict(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleUndo handles POST /sessions/{id}/undo.
func (h *SessionsHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	var req undoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.Version == nil {
		writeFailure(w, fmt.Errorf("%w: missing version", ErrBadRequest))
		return
	}

	sess, err := h.deps.Undo(r.Context(), r.PathValue("id"), *req.Version)
	if err != nil {
		writeConflict(w, sess, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleCommit handles POST /sessions/{id}/commit.
func (h *SessionsHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Commit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeConflict reports a rejected transition together with the session
// state the client should resume from.
func writeConflict(w http.ResponseWriter, sess types.Session, err error) {
	status, code := classify(err)
	resp := errorResponse{Code: code, Message: err.Error()}
	if sess.ID != "" {
		resp.Session = &sess
	}
	writeJSON(w, status, resp)
}
