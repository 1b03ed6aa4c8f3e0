// Package memory keeps the registry in process memory. State is lost on
// restart; it backs tests and single-node dev runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"guildhall.org/internal/guild"
	"guildhall.org/internal/store/kv"
)

var (
	errReadOnly = errors.New("memory: write in read-only transaction")
	errClosed   = errors.New("memory: store closed")
)

// Store serialises Update calls under one mutex. Writes are buffered in the
// transaction and only applied when fn returns nil.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

var _ guild.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// txn overlays pending writes on the committed map. A nil value marks a
// delete.
type txn struct {
	base    map[string][]byte
	pending map[string][]byte
	write   bool
}

func (t *txn) Get(k []byte) ([]byte, bool, error) {
	if v, ok := t.pending[string(k)]; ok {
		return v, v != nil, nil
	}
	v, ok := t.base[string(k)]
	return v, ok, nil
}

func (t *txn) Set(k, v []byte) error {
	if !t.write {
		return errReadOnly
	}
	t.pending[string(k)] = v
	return nil
}

func (t *txn) Delete(k []byte) error {
	if !t.write {
		return errReadOnly
	}
	t.pending[string(k)] = nil
	return nil
}

func (s *Store) Update(ctx context.Context, fn func(guild.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	t := &txn{base: s.data, pending: make(map[string][]byte), write: true}
	if err := fn(kv.NewTx(t)); err != nil {
		return err
	}
	for k, v := range t.pending {
		if v == nil {
			delete(s.data, k)
			continue
		}
		s.data[k] = v
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(guild.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return fn(kv.NewTx(&txn{base: s.data}))
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
