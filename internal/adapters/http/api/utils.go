package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/tierank/internal/adapters/repository"
	service "github.com/okian/tierank/internal/app"
	"github.com/okian/tierank/internal/domain/comparison"
	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/internal/domain/ranking"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 16

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// classify maps domain sentinels to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidCandidate),
		errors.Is(err, model.ErrInvalidMediaKind),
		errors.Is(err, model.ErrInvalidTier),
		errors.Is(err, comparison.ErrInvalidOutcome):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, service.ErrDuplicateDecision):
		return http.StatusConflict, "duplicate_decision"
	case errors.Is(err, comparison.ErrStaleComparison):
		return http.StatusConflict, "stale_comparison"
	case errors.Is(err, service.ErrPartitionChanged):
		return http.StatusConflict, "partition_changed"
	case errors.Is(err, service.ErrSessionNotFinished):
		return http.StatusConflict, "session_not_finished"
	case errors.Is(err, ranking.ErrInvariantViolation):
		return http.StatusUnprocessableEntity, "invariant_violation"
	case errors.Is(err, repository.ErrPersistence):
		return http.StatusInternalServerError, "persistence_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
