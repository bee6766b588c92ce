// Package memory provides in-process repositories used by tests and by
// STORAGE=memory deployments. They honour the same contracts as the Postgres
// repositories, including all-or-nothing transactions.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/revision"
	"folio/internal/domain/models/timeline"
	"folio/internal/domain/repositories"
)

type cursor struct {
	seq    int64
	lastAt time.Time
}

// Store holds every table. One mutex guards all of it; a transaction holds
// the mutex for its whole duration, which makes transactions serializable.
type Store struct {
	mu sync.Mutex

	documents map[string]docsystem.Document
	addresses map[string]docsystem.ContentAddress
	cursors   map[string]cursor
	events    map[string]timeline.Event
	flagged   map[string]timeline.FlaggedVersion
	messages  map[string]revision.Message
	threads   map[string]revision.Thread
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		documents: make(map[string]docsystem.Document),
		addresses: make(map[string]docsystem.ContentAddress),
		cursors:   make(map[string]cursor),
		events:    make(map[string]timeline.Event),
		flagged:   make(map[string]timeline.FlaggedVersion),
		messages:  make(map[string]revision.Message),
		threads:   make(map[string]revision.Thread),
	}
}

type snapshot struct {
	documents map[string]docsystem.Document
	addresses map[string]docsystem.ContentAddress
	cursors   map[string]cursor
	events    map[string]timeline.Event
	flagged   map[string]timeline.FlaggedVersion
	messages  map[string]revision.Message
	threads   map[string]revision.Thread
}

// Values are never mutated in place, so cloning the maps is enough
func (s *Store) snapshot() snapshot {
	return snapshot{
		documents: maps.Clone(s.documents),
		addresses: maps.Clone(s.addresses),
		cursors:   maps.Clone(s.cursors),
		events:    maps.Clone(s.events),
		flagged:   maps.Clone(s.flagged),
		messages:  maps.Clone(s.messages),
		threads:   maps.Clone(s.threads),
	}
}

func (s *Store) restore(snap snapshot) {
	s.documents = snap.documents
	s.addresses = snap.addresses
	s.cursors = snap.cursors
	s.events = snap.events
	s.flagged = snap.flagged
	s.messages = snap.messages
	s.threads = snap.threads
}

type txMarker struct{}

// lock acquires the store mutex unless ctx already runs inside a transaction
// of this store. The returned func releases it.
func (s *Store) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(txMarker{}).(*Store); owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// TransactionManager implements repositories.TransactionManager for a Store
type TransactionManager struct {
	store *Store
}

// NewTransactionManager creates a transaction manager over store
func NewTransactionManager(store *Store) repositories.TransactionManager {
	return &TransactionManager{store: store}
}

// ExecTx runs fn with the store locked and restores the previous state when fn fails
func (tm *TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if owner, _ := ctx.Value(txMarker{}).(*Store); owner == tm.store {
		return fn(ctx)
	}

	tm.store.mu.Lock()
	defer tm.store.mu.Unlock()

	snap := tm.store.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, tm.store)); err != nil {
		tm.store.restore(snap)
		return err
	}
	return nil
}
