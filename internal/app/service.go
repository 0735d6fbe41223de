// Package service runs comparison sessions against the ranking store and
// implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tierank/internal/adapters/repository"
	"github.com/okian/tierank/internal/domain/comparison"
	"github.com/okian/tierank/internal/domain/dedupe"
	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/internal/domain/ranking"
	"github.com/okian/tierank/internal/domain/scoring"
	"github.com/okian/tierank/internal/domain/types"
	"github.com/okian/tierank/pkg/logger"
	"github.com/okian/tierank/pkg/metrics"
)

// Reasons a session ends without a write.
const (
	closeAbandoned = "abandoned"
	closeExpired   = "expired"
	closeStale     = "stale"
)

// session is one open binary search. It holds no store state: abandoning
// it is just dropping it from the table.
type session struct {
	id        string
	purpose   string
	candidate model.Candidate
	entryID   string // re-ranked entry, empty for inserts
	ctrl      *comparison.Controller
	baseline  []string // partition IDs in rank order when the session began
	lastSeen  time.Time
}

// Service implements the API dependencies for the ranking engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	scorer  scoring.Scorer
	deduper dedupe.Deduper

	sessions map[string]*session

	// Configuration
	sessionTTL      time.Duration
	sweepInterval   time.Duration
	dedupeSize      int
	maxRankingLimit int
	now             func() time.Time

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the ranking store. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithScorer sets the score function. Defaults to the 0-4-7-10 bands.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Service) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// WithSessionTTL sets how long an untouched session stays open.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithSweepInterval sets how often expired sessions are dropped.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithDedupeSize sets how many decision ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxRankingLimit caps the number of entries Ranking returns.
func WithMaxRankingLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxRankingLimit = limit
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sessions:        make(map[string]*session),
		sessionTTL:      30 * time.Minute,
		sweepInterval:   time.Minute,
		dedupeSize:      10_000,
		maxRankingLimit: 500,
		now:             time.Now,
		stopCh:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.scorer == nil {
		s.scorer = scoring.MustNewBandScorer()
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start launches the janitor that drops idle sessions.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				s.ExpireIdle(ctx)
			}
		}
	}()

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Duration("sessionTTL", s.sessionTTL),
		logger.Duration("sweepInterval", s.sweepInterval),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop stops the janitor and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	ctx := context.Background()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "failed to close store", logger.Error(err))
	}
	s.logger.Info(ctx, "ranking service stopped")
}

// BeginSession opens a search that places a new candidate.
func (s *Service) BeginSession(ctx context.Context, c model.Candidate) (types.Session, error) {
	if err := c.Validate(); err != nil {
		return types.Session{}, err
	}

	_, err := s.store.FindByExternalID(ctx, c.MediaKind, c.ExternalID)
	switch {
	case err == nil:
		return types.Session{}, fmt.Errorf("begin %s %s: %w", c.MediaKind, c.ExternalID, repository.ErrDuplicate)
	case !errors.Is(err, repository.ErrNotFound):
		return types.Session{}, fmt.Errorf("begin %s: %w", c.ExternalID, err)
	}

	partition, err := s.store.Partition(ctx, c.MediaKind)
	if err != nil {
		return types.Session{}, fmt.Errorf("begin %s: %w", c.ExternalID, err)
	}

	sess := s.open(ctx, types.PurposeInsert, c, "", partition, partition)
	return s.view(sess), nil
}

// BeginRerank opens a search that moves an existing entry. The entry is
// compared against the rest of its partition.
func (s *Service) BeginRerank(ctx context.Context, entryID string) (types.Session, error) {
	entry, err := s.store.Get(ctx, entryID)
	if err != nil {
		return types.Session{}, fmt.Errorf("rerank %s: %w", entryID, err)
	}
	partition, err := s.store.Partition(ctx, entry.MediaKind)
	if err != nil {
		return types.Session{}, fmt.Errorf("rerank %s: %w", entryID, err)
	}

	others := make([]model.RankedEntry, 0, len(partition))
	for _, e := range partition {
		if e.ID != entryID {
			others = append(others, e)
		}
	}

	c := model.Candidate{
		ExternalID: entry.ExternalID,
		Title:      entry.Title,
		MediaKind:  entry.MediaKind,
		Tier:       entry.Tier,
	}
	sess := s.open(ctx, types.PurposeRerank, c, entryID, others, partition)
	return s.view(sess), nil
}

func (s *Service) open(ctx context.Context, purpose string, c model.Candidate, entryID string, existing, partition []model.RankedEntry) *session {
	sess := &session{
		id:        uuid.NewString(),
		purpose:   purpose,
		candidate: c,
		entryID:   entryID,
		ctrl:      comparison.New(existing),
		baseline:  idsOf(partition),
		lastSeen:  s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	active := len(s.sessions)
	s.mu.Unlock()

	metrics.RecordSessionStarted(string(c.MediaKind), purpose)
	metrics.UpdateActiveSessions(active)
	s.logger.Debug(ctx, "session opened",
		logger.String("session", sess.id),
		logger.String("purpose", purpose),
		logger.String("mediaKind", string(c.MediaKind)),
		logger.String("externalID", c.ExternalID),
		logger.Int("partitionSize", len(existing)),
	)
	return sess
}

// Session returns the current view of an open session.
func (s *Service) Session(_ context.Context, id string) (types.Session, error) {
	sess, err := s.lookup(id, false)
	if err != nil {
		return types.Session{}, err
	}
	return s.view(sess), nil
}

// Decide applies one judgment. version must match the session's current
// version. A non-empty decisionID is remembered, and a second submission
// with the same id returns ErrDuplicateDecision without touching the search.
func (s *Service) Decide(ctx context.Context, id, decisionID string, version int, outcome comparison.Outcome) (types.Session, error) {
	sess, err := s.lookup(id, true)
	if err != nil {
		return types.Session{}, err
	}

	key := ""
	if decisionID != "" {
		key = id + "/" + decisionID
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordDuplicateDecision()
			s.logger.Debug(ctx, "duplicate decision ignored",
				logger.String("session", id),
				logger.String("decision", decisionID),
			)
			return s.view(sess), fmt.Errorf("decision %s: %w", decisionID, ErrDuplicateDecision)
		}
	}

	st, err := sess.ctrl.Decide(version, outcome)
	if err != nil {
		if key != "" {
			s.deduper.Forget(ctx, key)
		}
		if errors.Is(err, comparison.ErrStaleComparison) {
			metrics.RecordStaleDecision()
		}
		s.logger.Debug(ctx, "decision rejected",
			logger.String("session", id),
			logger.Int("version", version),
			logger.Error(err),
		)
		return s.view(sess), err
	}

	metrics.RecordComparison(string(outcome))
	s.logger.Debug(ctx, "decision applied",
		logger.String("session", id),
		logger.String("outcome", string(outcome)),
		logger.Int("comparisons", st.ComparisonsMade),
		logger.Bool("done", st.Done),
	)
	return s.view(sess), nil
}

// Undo reverts the last decision. Undo with nothing to revert leaves the
// session unchanged and is not an error.
func (s *Service) Undo(ctx context.Context, id string, version int) (types.Session, error) {
	sess, err := s.lookup(id, true)
	if err != nil {
		return types.Session{}, err
	}

	_, err = sess.ctrl.Undo(version)
	switch {
	case errors.Is(err, comparison.ErrNothingToUndo):
		return s.view(sess), nil
	case errors.Is(err, comparison.ErrStaleComparison):
		metrics.RecordStaleDecision()
		return s.view(sess), err
	case err != nil:
		return s.view(sess), err
	}

	metrics.RecordUndo()
	s.logger.Debug(ctx, "decision undone", logger.String("session", id))
	return s.view(sess), nil
}

// Abandon drops a session. The store is not touched.
func (s *Service) Abandon(ctx context.Context, id string) error {
	if _, err := s.take(id); err != nil {
		return err
	}
	metrics.RecordSessionClosed(closeAbandoned)
	s.logger.Debug(ctx, "session abandoned", logger.String("session", id))
	return nil
}

// Commit writes a converged session to the store.
//
// The write is refused with ErrPartitionChanged if the partition was edited
// after the session began, since the search result may no longer hold.
func (s *Service) Commit(ctx context.Context, id string) (types.CommitResult, error) {
	sess, err := s.lookup(id, false)
	if err != nil {
		return types.CommitResult{}, err
	}
	st := sess.ctrl.State()
	if !st.Done {
		return types.CommitResult{}, fmt.Errorf("commit %s: %w", id, ErrSessionNotFinished)
	}

	// Claim the session so concurrent commits cannot both write.
	if _, err := s.take(id); err != nil {
		return types.CommitResult{}, err
	}

	kind := sess.candidate.MediaKind
	partition, err := s.store.Partition(ctx, kind)
	if err != nil {
		s.restore(sess)
		return types.CommitResult{}, fmt.Errorf("commit %s: %w", id, err)
	}
	if !slices.Equal(idsOf(partition), sess.baseline) {
		metrics.RecordSessionClosed(closeStale)
		s.logger.Warn(ctx, "partition changed during session",
			logger.String("session", id),
			logger.String("mediaKind", string(kind)),
		)
		return types.CommitResult{}, fmt.Errorf("commit %s: %w", id, ErrPartitionChanged)
	}

	var entry model.RankedEntry
	if sess.purpose == types.PurposeRerank {
		entry, err = s.store.Move(ctx, sess.entryID, st.FinalRank, ranking.EstimateComparisons(len(partition)-1))
	} else {
		entry, err = s.store.Insert(ctx, model.RankedEntry{
			ID:              uuid.NewString(),
			ExternalID:      sess.candidate.ExternalID,
			Title:           sess.candidate.Title,
			MediaKind:       kind,
			Tier:            sess.candidate.Tier,
			Rank:            st.FinalRank,
			ComparisonCount: ranking.EstimateComparisons(len(partition)),
			CreatedAt:       s.now().UTC(),
		})
	}
	if err != nil {
		if errors.Is(err, repository.ErrPersistence) {
			s.restore(sess)
		}
		metrics.RecordErrorByComponent("service", "commit")
		s.logger.Error(ctx, "commit failed",
			logger.String("session", id),
			logger.Error(err),
		)
		return types.CommitResult{}, fmt.Errorf("commit %s: %w", id, err)
	}

	metrics.RecordSessionCommitted(string(kind), sess.purpose, st.ComparisonsMade)
	s.logger.Info(ctx, "entry ranked",
		logger.String("session", id),
		logger.String("purpose", sess.purpose),
		logger.String("entry", entry.ID),
		logger.String("mediaKind", string(kind)),
		logger.Int("rank", entry.Rank),
		logger.Int("comparisonsMade", st.ComparisonsMade),
		logger.Int("comparisonCount", entry.ComparisonCount),
	)

	view, err := s.Entry(ctx, entry.ID)
	if err != nil {
		view = types.NewEntry(entry, nil)
	}
	return types.CommitResult{Entry: view, ComparisonsMade: st.ComparisonsMade}, nil
}

// Ranking returns the top entries of kind with their scores. limit <= 0 or
// above the configured maximum is capped to the maximum.
func (s *Service) Ranking(ctx context.Context, kind model.MediaKind, limit int) ([]types.Entry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidMediaKind, kind)
	}
	if limit <= 0 || limit > s.maxRankingLimit {
		limit = s.maxRankingLimit
	}

	partition, err := s.store.Partition(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("ranking %s: %w", kind, err)
	}
	scored, err := s.scorer.ScorePartition(partition)
	if err != nil {
		return nil, fmt.Errorf("ranking %s: %w", kind, err)
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}

	out := make([]types.Entry, len(scored))
	for i, e := range scored {
		score := e.Score
		out[i] = types.NewEntry(e.RankedEntry, &score)
	}
	return out, nil
}

// Entry returns one entry with its score.
func (s *Service) Entry(ctx context.Context, id string) (types.Entry, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return types.Entry{}, err
	}
	partition, err := s.store.Partition(ctx, entry.MediaKind)
	if err != nil {
		return types.Entry{}, err
	}
	score, err := s.scorer.Score(entry, partition)
	if err != nil {
		return types.Entry{}, err
	}
	return types.NewEntry(entry, &score), nil
}

// DeleteEntry removes an entry and closes the gap it leaves.
func (s *Service) DeleteEntry(ctx context.Context, id string) (types.Entry, error) {
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return types.Entry{}, fmt.Errorf("delete %s: %w", id, err)
	}
	s.logger.Info(ctx, "entry deleted",
		logger.String("entry", id),
		logger.String("mediaKind", string(removed.MediaKind)),
		logger.Int("rank", removed.Rank),
	)
	return types.NewEntry(removed, nil), nil
}

// ExpireIdle drops sessions untouched for longer than the TTL and returns
// how many were dropped.
func (s *Service) ExpireIdle(ctx context.Context) int {
	cutoff := s.now().Add(-s.sessionTTL)

	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()

	for _, id := range expired {
		metrics.RecordSessionClosed(closeExpired)
		s.logger.Debug(ctx, "session expired", logger.String("session", id))
	}
	metrics.UpdateActiveSessions(active)
	return len(expired)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	stats := map[string]interface{}{
		"started":        s.started,
		"activeSessions": len(s.sessions),
		"dedupeSize":     s.dedupeSize,
		"decisionsSeen":  s.deduper.Size(),
		"sessionTTL":     s.sessionTTL.String(),
	}
	s.mu.RUnlock()

	ctx := context.Background()
	for _, kind := range model.MediaKinds {
		n, err := s.store.Count(ctx, kind)
		if err != nil {
			continue
		}
		stats[string(kind)+"Entries"] = n
		metrics.UpdateEntriesTotal(string(kind), n)
	}
	return stats
}

// lookup finds an open session, optionally refreshing its idle timer.
func (s *Service) lookup(id string, touch bool) (*session, error) {
	if touch {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if touch {
		sess.lastSeen = s.now()
	}
	return sess, nil
}

// take removes a session from the table.
func (s *Service) take(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	delete(s.sessions, id)
	metrics.UpdateActiveSessions(len(s.sessions))
	return sess, nil
}

// restore puts back a session whose commit failed for a reason the caller
// may retry.
func (s *Service) restore(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
	metrics.UpdateActiveSessions(len(s.sessions))
}

func (s *Service) view(sess *session) types.Session {
	st := sess.ctrl.State()

	s.mu.RLock()
	expires := sess.lastSeen.Add(s.sessionTTL)
	s.mu.RUnlock()

	v := types.Session{
		ID:      sess.id,
		Purpose: sess.purpose,
		Candidate: types.Candidate{
			ExternalID: sess.candidate.ExternalID,
			Title:      sess.candidate.Title,
			MediaKind:  string(sess.candidate.MediaKind),
			Tier:       string(sess.candidate.Tier),
		},
		EntryID:         sess.entryID,
		Version:         st.Version,
		ComparisonsMade: st.ComparisonsMade,
		MaxComparisons:  comparison.MaxComparisons(len(sess.ctrl.Existing())),
		Remaining:       st.Range.Count(),
		CanUndo:         st.CanUndo,
		Done:            st.Done,
		FinalRank:       st.FinalRank,
		ExpiresAt:       expires,
	}
	if st.Current != nil {
		cur := types.NewEntry(*st.Current, nil)
		v.Current = &cur
	}
	return v
}

func idsOf(partition []model.RankedEntry) []string {
	out := make([]string, len(partition))
	for i, e := range partition {
		out[i] = e.ID
	}
	return out
}
