package badger

import (
	"log/slog"
	"time"
)

type OptionFunc func(*Store)

// WithLogger specifies the logger used for store and badger messages.
func WithLogger(logger *slog.Logger) OptionFunc {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDataDir stores data on disk under dir. Without it the store runs in
// memory.
func WithDataDir(dir string) OptionFunc {
	return func(s *Store) {
		s.dataDir = dir
	}
}

// WithGC enables periodic value log garbage collection.
func WithGC(interval time.Duration) OptionFunc {
	return func(s *Store) {
		s.gcInterval = interval
	}
}

// WithConflictRetries bounds how often a conflicting Update is re-run
// before ErrConflict is returned.
func WithConflictRetries(n int) OptionFunc {
	return func(s *Store) {
		if n >= 0 {
			s.retries = n
		}
	}
}
