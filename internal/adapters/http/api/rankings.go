package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/tierank/internal/domain/model"
)

// RankingsHandler handles ranked list requests.
type RankingsHandler struct {
	deps     RankingDependencies
	maxLimit int
}

// NewRankingsHandler creates a new rankings handler.
func NewRankingsHandler(deps RankingDependencies, maxLimit int) *RankingsHandler {
	return &RankingsHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetRanking handles GET /rankings/{kind}?limit=N requests. Without a
// limit the whole list is returned, up to the configured maximum.
func (h *RankingsHandler) HandleGetRanking(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseMediaKind(r.PathValue("kind"))
	if err != nil {
		writeFailure(w, err)
		return
	}

	n := h.maxLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %q", ErrInvalidLimit, limitStr))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%w: max %d", ErrInvalidLimit, h.maxLimit))
			return
		}
	}

	entries, err := h.deps.Ranking(r.Context(), kind, n)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
