package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrListNotEmpty is returned when a list already holds entries before the
// run, since the hidden order could not account for them.
var ErrListNotEmpty = errors.New("ranked list is not empty")

// Run executes a complete simulation and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulate")

	log.Info(ctx, "starting tierank simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("count", cfg.Count),
		logger.Any("kinds", cfg.Kinds),
		logger.Float64("undoRate", cfg.UndoRate),
		logger.Duration("timeout", cfg.Timeout))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := client.Get(ctx, "/healthz", nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Rank every kind concurrently
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		all  []Title
	)
	for i, kind := range cfg.Kinds {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
		titles := Generate(rng, kind, cfg.Count)

		wg.Add(1)
		go func() {
			defer wg.Done()
			run := &kindRun{client: client, cfg: cfg, rng: rng, log: log, kind: kind}
			err := run.execute(ctx, titles)

			mu.Lock()
			defer mu.Unlock()
			all = append(all, titles...)
			stats.TitlesGenerated += len(titles)
			stats.TitlesRanked += len(run.insertions)
			stats.Comparisons += run.comparisons
			stats.Undos += run.undos
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			}
		}()
	}
	wg.Wait()

	// Step 3: Save titles to file
	if cfg.OutputFile != "" {
		if err := saveTitles(cfg.OutputFile, all); err != nil {
			log.Warn(ctx, "failed to save titles to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if err := errors.Join(errs...); err != nil {
		return stats, err
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// kindRun ranks the titles of one media kind.
type kindRun struct {
	client *HTTPClient
	cfg    *Config
	rng    *rand.Rand
	log    logger.Logger
	kind   model.MediaKind

	position    map[string]int
	insertions  []Insertion
	comparisons int
	undos       int
}

func (k *kindRun) execute(ctx context.Context, titles []Title) error {
	var existing []Entry
	if err := k.client.Get(ctx, "/rankings/"+string(k.kind), &existing); err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %d entries", ErrListNotEmpty, len(existing))
	}

	k.position = make(map[string]int, len(titles))
	for _, t := range titles {
		k.position[t.ExternalID] = t.Position
	}

	for i, t := range titles {
		ins, err := k.insert(ctx, t, i)
		if err != nil {
			return fmt.Errorf("insert %s: %w", t.ExternalID, err)
		}
		k.insertions = append(k.insertions, ins)
	}

	var entries []Entry
	if err := k.client.Get(ctx, "/rankings/"+string(k.kind), &entries); err != nil {
		return fmt.Errorf("read list: %w", err)
	}
	if err := Verify(entries, HiddenOrder(titles), k.insertions); err != nil {
		return err
	}
	k.log.Info(ctx, "list verified",
		logger.String("kind", string(k.kind)),
		logger.Int("entries", len(entries)))
	return nil
}

// insert places one title, answering from the hidden order.
func (k *kindRun) insert(ctx context.Context, t Title, existing int) (Insertion, error) {
	var sess session
	body := map[string]string{
		"external_id": t.ExternalID,
		"title":       t.Name,
		"media_kind":  string(t.MediaKind),
		"tier":        string(t.Tier),
	}
	if err := k.client.Post(ctx, "/sessions", body, &sess); err != nil {
		return Insertion{}, err
	}

	for !sess.Done {
		if sess.Current == nil {
			return Insertion{}, fmt.Errorf("session %s has no entry to compare", sess.ID)
		}
		better := k.position[t.ExternalID] < k.position[sess.Current.ExternalID]

		// A wrong answer over fewer than three entries could end the search,
		// and a finished search cannot be undone.
		if sess.Remaining >= 3 && k.rng.Float64() < k.cfg.UndoRate {
			if err := k.misjudge(ctx, &sess, better); err != nil {
				return Insertion{}, err
			}
		}
		if err := k.decide(ctx, &sess, better); err != nil {
			return Insertion{}, err
		}
		k.comparisons++
	}

	var res commitResult
	if err := k.client.Post(ctx, "/sessions/"+sess.ID+"/commit", nil, &res); err != nil {
		return Insertion{}, err
	}
	if res.Entry.Rank != sess.FinalRank {
		return Insertion{}, fmt.Errorf("%w: committed at rank %d, session converged on %d",
			ErrVerification, res.Entry.Rank, sess.FinalRank)
	}
	return Insertion{
		ExternalID:  t.ExternalID,
		Existing:    existing,
		Comparisons: res.ComparisonsMade,
		FinalRank:   res.Entry.Rank,
	}, nil
}

// misjudge answers the current comparison wrongly and undoes it.
func (k *kindRun) misjudge(ctx context.Context, sess *session, better bool) error {
	shown := sess.Current.ExternalID
	if err := k.decide(ctx, sess, !better); err != nil {
		return err
	}
	if err := k.client.Post(ctx, "/sessions/"+sess.ID+"/undo", map[string]int{"version": sess.Version}, sess); err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	if sess.Current == nil || sess.Current.ExternalID != shown {
		return fmt.Errorf("%w: undo in session %s did not restore %s", ErrVerification, sess.ID, shown)
	}
	k.undos++
	return nil
}

func (k *kindRun) decide(ctx context.Context, sess *session, better bool) error {
	outcome := "worse"
	if better {
		outcome = "better"
	}
	req := map[string]any{
		"decision_id": uuid.NewString(),
		"version":     sess.Version,
		"outcome":     outcome,
	}
	if k.cfg.Verbose {
		k.log.Debug(ctx, "comparison",
			logger.String("session", sess.ID),
			logger.String("against", sess.Current.ExternalID),
			logger.String("outcome", outcome))
	}
	if err := k.client.Post(ctx, "/sessions/"+sess.ID+"/decisions", req, sess); err != nil {
		return fmt.Errorf("decide: %w", err)
	}
	return nil
}

// saveTitles writes the generated titles as a JSON array.
func saveTitles(filename string, titles []Title) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(titles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal titles: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perTitle float64
	if stats.TitlesRanked > 0 {
		perTitle = float64(stats.Comparisons) / float64(stats.TitlesRanked)
	}
	log.Info(ctx, "final statistics",
		logger.Int("titlesGenerated", stats.TitlesGenerated),
		logger.Int("titlesRanked", stats.TitlesRanked),
		logger.Int("comparisons", stats.Comparisons),
		logger.Int("undos", stats.Undos),
		logger.Float64("comparisonsPerTitle", perTitle),
		logger.Duration("duration", stats.Duration))
}
