package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/internal/domain/ranking"
	"github.com/okian/tierank/pkg/metrics"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteDriver = "sqlite"

const schema = `CREATE TABLE IF NOT EXISTS ranked_entries (
	id               TEXT PRIMARY KEY,
	external_id      TEXT NOT NULL,
	title            TEXT NOT NULL,
	media_kind       TEXT NOT NULL CHECK (media_kind IN ('movie', 'series')),
	tier             TEXT NOT NULL CHECK (tier IN ('good', 'medium', 'bad')),
	rank             INTEGER NOT NULL CHECK (rank >= 0),
	comparison_count INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	UNIQUE (media_kind, rank),
	UNIQUE (media_kind, external_id)
);`

const selectColumns = `id, external_id, title, media_kind, tier, rank, comparison_count, created_at`

// SQLiteStore keeps the ranked lists in a single local SQLite file.
//
// Every mutation runs in one transaction: the shift of the neighbouring
// rows and the insert, delete or move itself commit together or not at all.
// Rank 0 is a parking slot used while an entry changes place.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
	journalMode string

	// fault, when set, is consulted between the steps of a mutation. Tests
	// use it to force a failure halfway through a transaction.
	fault func(stage string) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		busyTimeout: 5 * time.Second,
		journalMode: "WAL",
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data directory: %w", ErrPersistence, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrPersistence, err)
	}

	// One connection: SQLite has a single writer and the pragmas below are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s;", s.journalMode),
		fmt.Sprintf("PRAGMA busy_timeout=%d;", s.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrPersistence, p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init schema: %w", ErrPersistence, err)
	}

	s.db = db
	return s, nil
}

func (s *SQLiteStore) Partition(ctx context.Context, kind model.MediaKind) ([]model.RankedEntry, error) {
	defer observe(sqliteDriver, "partition", time.Now())
	return loadPartition(ctx, s.db, kind)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.RankedEntry, error) {
	return getEntry(ctx, s.db, `WHERE id = ?`, id)
}

func (s *SQLiteStore) FindByExternalID(ctx context.Context, kind model.MediaKind, externalID string) (model.RankedEntry, error) {
	return getEntry(ctx, s.db, `WHERE media_kind = ? AND external_id = ?`, string(kind), externalID)
}

func (s *SQLiteStore) Count(ctx context.Context, kind model.MediaKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ranked_entries WHERE media_kind = ? AND rank > 0`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", ErrPersistence, kind, err)
	}
	return n, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, entry model.RankedEntry) (model.RankedEntry, error) {
	defer observe(sqliteDriver, "insert", time.Now())

	err := s.withTx(ctx, "insert", func(tx *sql.Tx) error {
		if _, err := getEntry(ctx, tx, `WHERE id = ?`, entry.ID); err == nil {
			return fmt.Errorf("insert %s: %w", entry.ID, ErrDuplicate)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		partition, err := loadPartition(ctx, tx, entry.MediaKind)
		if err != nil {
			return err
		}
		p, err := planInsert(partition, entry)
		if err != nil {
			return err
		}

		if err := s.shift(ctx, tx, entry.MediaKind, p.moves()); err != nil {
			return err
		}
		if err := s.step("write"); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ranked_entries (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.ExternalID, entry.Title, string(entry.MediaKind), string(entry.Tier),
			entry.Rank, entry.ComparisonCount, entry.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("%w: insert %s: %w", ErrPersistence, entry.ID, err)
		}
		return s.verify(ctx, tx, entry.MediaKind)
	})
	if err != nil {
		return model.RankedEntry{}, err
	}
	return entry, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (model.RankedEntry, error) {
	defer observe(sqliteDriver, "delete", time.Now())

	var removed model.RankedEntry
	err := s.withTx(ctx, "delete", func(tx *sql.Tx) error {
		target, err := getEntry(ctx, tx, `WHERE id = ?`, id)
		if err != nil {
			return err
		}
		partition, err := loadPartition(ctx, tx, target.MediaKind)
		if err != nil {
			return err
		}
		p, err := planDelete(partition, id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM ranked_entries WHERE id = ?`, id); err != nil {
			return fmt.Errorf("%w: delete %s: %w", ErrPersistence, id, err)
		}
		if err := s.shift(ctx, tx, target.MediaKind, p.moves()); err != nil {
			return err
		}
		removed = p.entry
		return s.verify(ctx, tx, target.MediaKind)
	})
	if err != nil {
		return model.RankedEntry{}, err
	}
	return removed, nil
}

func (s *SQLiteStore) Move(ctx context.Context, id string, toRank, addComparisons int) (model.RankedEntry, error) {
	defer observe(sqliteDriver, "move", time.Now())

	var moved model.RankedEntry
	err := s.withTx(ctx, "move", func(tx *sql.Tx) error {
		target, err := getEntry(ctx, tx, `WHERE id = ?`, id)
		if err != nil {
			return err
		}
		partition, err := loadPartition(ctx, tx, target.MediaKind)
		if err != nil {
			return err
		}
		p, err := planMove(partition, id, toRank, addComparisons)
		if err != nil {
			return err
		}

		if err := s.setRank(ctx, tx, id, target.Rank, 0); err != nil {
			return err
		}
		if err := s.shift(ctx, tx, target.MediaKind, p.moves()); err != nil {
			return err
		}
		if err := s.step("write"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE ranked_entries SET rank = ?, comparison_count = ? WHERE id = ? AND rank = 0`,
			p.entry.Rank, p.entry.ComparisonCount, id,
		); err != nil {
			return fmt.Errorf("%w: move %s: %w", ErrPersistence, id, err)
		}
		moved = p.entry
		return s.verify(ctx, tx, target.MediaKind)
	})
	if err != nil {
		return model.RankedEntry{}, err
	}
	return moved, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, rolling back on any error.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: begin: %w", ErrPersistence, op, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("%w: %s: rollback: %w", ErrPersistence, op, rbErr))
		}
		metrics.RecordStoreRollback(sqliteDriver, op)
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s: commit: %w", ErrPersistence, op, err)
	}
	return nil
}

// shift applies rank moves one row at a time in the order ranking.Moves
// guarantees never collides on the unique (media_kind, rank) index.
func (s *SQLiteStore) shift(ctx context.Context, tx *sql.Tx, kind model.MediaKind, moves []ranking.Move) error {
	for _, m := range moves {
		if err := s.step("shift"); err != nil {
			return err
		}
		if err := s.setRank(ctx, tx, m.ID, m.From, m.To); err != nil {
			return fmt.Errorf("shift %s: %w", kind, err)
		}
	}
	return nil
}

func (s *SQLiteStore) setRank(ctx context.Context, tx *sql.Tx, id string, from, to int) error {
	res, err := tx.ExecContext(ctx, `UPDATE ranked_entries SET rank = ? WHERE id = ? AND rank = ?`, to, id, from)
	if err != nil {
		return fmt.Errorf("%w: rank %s %d->%d: %w", ErrPersistence, id, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rank %s: %w", ErrPersistence, id, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %s no longer at rank %d", ranking.ErrInvariantViolation, id, from)
	}
	return nil
}

// verify re-reads the partition inside the transaction and checks the rank
// invariant before commit.
func (s *SQLiteStore) verify(ctx context.Context, tx *sql.Tx, kind model.MediaKind) error {
	if err := s.step("verify"); err != nil {
		return err
	}
	partition, err := loadPartition(ctx, tx, kind)
	if err != nil {
		return err
	}
	if err := ranking.Validate(partition); err != nil {
		return err
	}
	metrics.UpdateEntriesTotal(string(kind), len(partition))
	return nil
}

func (s *SQLiteStore) step(stage string) error {
	if s.fault == nil {
		return nil
	}
	if err := s.fault(stage); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersistence, stage, err)
	}
	return nil
}

func loadPartition(ctx context.Context, q querier, kind model.MediaKind) ([]model.RankedEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM ranked_entries WHERE media_kind = ? ORDER BY rank ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrPersistence, kind, err)
	}
	defer rows.Close()

	var out []model.RankedEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrPersistence, kind, err)
	}
	return out, nil
}

func getEntry(ctx context.Context, q querier, where string, args ...any) (model.RankedEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM ranked_entries `+where, args...)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RankedEntry{}, fmt.Errorf("entry %v: %w", args, ErrNotFound)
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (model.RankedEntry, error) {
	var (
		e         model.RankedEntry
		kind      string
		tier      string
		createdAt int64
	)
	if err := sc.Scan(&e.ID, &e.ExternalID, &e.Title, &kind, &tier, &e.Rank, &e.ComparisonCount, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RankedEntry{}, err
		}
		return model.RankedEntry{}, fmt.Errorf("%w: scan entry: %w", ErrPersistence, err)
	}
	e.MediaKind = model.MediaKind(kind)
	e.Tier = model.Tier(tier)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	return e, nil
}
