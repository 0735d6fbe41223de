// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/tierank/internal/domain/comparison"
	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/internal/domain/types"
)

// SessionDependencies drive comparison sessions.
type SessionDependencies interface {
	BeginSession(ctx context.Context, c model.Candidate) (types.Session, error)
	BeginRerank(ctx context.Context, entryID string) (types.Session, error)
	Session(ctx context.Context, id string) (types.Session, error)
	Decide(ctx context.Context, id, decisionID string, version int, outcome comparison.Outcome) (types.Session, error)
	Undo(ctx context.Context, id string, version int) (types.Session, error)
	Abandon(ctx context.Context, id string) error
	Commit(ctx context.Context, id string) (types.CommitResult, error)
}

// RankingDependencies read ranked lists.
type RankingDependencies interface {
	Ranking(ctx context.Context, kind model.MediaKind, limit int) ([]types.Entry, error)
}

// EntryDependencies read and remove single entries.
type EntryDependencies interface {
	Entry(ctx context.Context, id string) (types.Entry, error)
	DeleteEntry(ctx context.Context, id string) (types.Entry, error)
	BeginRerank(ctx context.Context, entryID string) (types.Session, error)
}

// Dependencies bundles everything the business handlers call.
type Dependencies interface {
	SessionDependencies
	RankingDependencies
	EntryDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	rankingsHandler *RankingsHandler
	entriesHandler  *EntriesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxRankingLimit int) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionsHandler: NewSessionsHandler(deps),
		rankingsHandler: NewRankingsHandler(deps, maxRankingLimit),
		entriesHandler:  NewEntriesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /sessions", MetricsMiddleware(s.sessionsHandler.HandleCreate, "sessions"))
	mux.HandleFunc("GET /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleGet, "session"))
	mux.HandleFunc("DELETE /sessions/{id}", MetricsMiddleware(s.sessionsHandler.HandleAbandon, "session"))
	mux.HandleFunc("POST /sessions/{id}/decisions", MetricsMiddleware(s.sessionsHandler.HandleDecision, "decisions"))
	mux.HandleFunc("POST /sessions/{id}/undo", MetricsMiddleware(s.sessionsHandler.HandleUndo, "undo"))
	mux.HandleFunc("POST /sessions/{id}/commit", MetricsMiddleware(s.sessionsHandler.HandleCommit, "commit"))

	mux.HandleFunc("GET /rankings/{kind}", MetricsMiddleware(s.rankingsHandler.HandleGetRanking, "rankings"))

	mux.HandleFunc("GET /entries/{id}", MetricsMiddleware(s.entriesHandler.HandleGet, "entry"))
	mux.HandleFunc("DELETE /entries/{id}", MetricsMiddleware(s.entriesHandler.HandleDelete, "entry"))
	mux.HandleFunc("POST /entries/{id}/rerank", MetricsMiddleware(s.entriesHandler.HandleRerank, "rerank"))
}

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Session *types.Session `json:"session,omitempty"` // current state on decision conflicts
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a domain error to its status and code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
