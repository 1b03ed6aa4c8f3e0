// Package badger persists the registry in a badger/v4 key-value database.
package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"guildhall.org/internal/guild"
	"guildhall.org/internal/store/kv"
)

const defaultConflictRetries = 3

// Store runs every unit of work in a badger transaction. Badger's
// optimistic concurrency aborts an Update whose reads were invalidated by a
// concurrent commit; those are re-run a bounded number of times.
type Store struct {
	db         *badger.DB
	logger     *slog.Logger
	dataDir    string
	gcInterval time.Duration
	retries    int

	gcTicker *time.Ticker
	gcStop   chan struct{}
	gcWg     sync.WaitGroup
}

var _ guild.Store = (*Store)(nil)

// Open opens (or creates) the database.
func Open(opts ...OptionFunc) (*Store, error) {
	s := &Store{retries: defaultConflictRetries}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var bopts badger.Options
	if s.dataDir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		bopts = badger.DefaultOptions(s.dataDir)
	}
	bopts = bopts.
		WithLogger(newBadgerLogger(s.logger)).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s.db = db

	if s.gcInterval > 0 && s.dataDir != "" {
		s.gcTicker = time.NewTicker(s.gcInterval)
		s.gcStop = make(chan struct{})
		s.gcWg.Add(1)
		go s.valueLogGC()
	}
	return s, nil
}

func (s *Store) valueLogGC() {
	defer s.gcWg.Done()
	for {
		select {
		case <-s.gcTicker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("value log gc failed", "error", err)
				}
				break
			}
		case <-s.gcStop:
			return
		}
	}
}

// bucket exposes a badger transaction as a kv.Bucket.
type bucket struct {
	txn *badger.Txn
}

func (b bucket) Get(k []byte) ([]byte, bool, error) {
	item, err := b.txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b bucket) Set(k, v []byte) error { return b.txn.Set(k, v) }

func (b bucket) Delete(k []byte) error { return b.txn.Delete(k) }

func (s *Store) Update(ctx context.Context, fn func(guild.Tx) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			return fn(kv.NewTx(bucket{txn: txn}))
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt >= s.retries {
			return guild.ErrConflict
		}
		s.logger.Debug("retrying conflicting transaction", "attempt", attempt+1)
	}
}

func (s *Store) View(ctx context.Context, fn func(guild.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(kv.NewTx(bucket{txn: txn}))
	})
}

func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		close(s.gcStop)
		s.gcWg.Wait()
		s.gcTicker = nil
	}
	return s.db.Close()
}
