package repository

import "time"

// SQLiteOption applies a configuration option to the SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithBusyTimeout sets how long SQLite waits on a locked database file.
func WithBusyTimeout(timeout time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if timeout > 0 {
			s.busyTimeout = timeout
		}
	}
}

// WithJournalMode sets the SQLite journal mode, WAL by default.
func WithJournalMode(mode string) SQLiteOption {
	return func(s *SQLiteStore) {
		if mode != "" {
			s.journalMode = mode
		}
	}
}
