package config

import (
	"os"
	"sync/atomic"

	"github.com/Laisky/errors/v2"
)

// Store holds the current Snapshot behind an atomic pointer so readers
// always see either the old snapshot in full or the new one in full,
// never a partial view (spec.md §3 Lifecycle).
type Store struct {
	ptr atomic.Pointer[Snapshot]
	// onReload is called with the new snapshot after every successful
	// swap, so dependents (selector cache, rate limiter) can flush
	// state that is only valid against one specific snapshot.
	onReload []func(*Snapshot)
}

// NewStore wraps an initial snapshot in a Store.
func NewStore(initial *Snapshot) *Store {
	s := &Store{}
	s.ptr.Store(initial)
	return s
}

// Get returns the current snapshot. Safe for concurrent use.
func (s *Store) Get() *Snapshot {
	return s.ptr.Load()
}

// OnReload registers a callback invoked after each successful Reload.
// Not safe for concurrent registration with Reload; register all
// callbacks during startup before traffic begins.
func (s *Store) OnReload(fn func(*Snapshot)) {
	s.onReload = append(s.onReload, fn)
}

// Swap atomically replaces the current snapshot and fires reload
// callbacks. Exposed directly (in addition to ReloadFromFile) for
// callers that already have a validated Snapshot from a non-file source.
func (s *Store) Swap(snap *Snapshot) {
	s.ptr.Store(snap)
	for _, fn := range s.onReload {
		fn(snap)
	}
}

// ReloadFromFile re-reads path, validates it, and swaps the snapshot
// atomically. On any error the previous snapshot remains in effect.
func (s *Store) ReloadFromFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %q", path)
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return err
	}
	snap, err := NewSnapshot(doc)
	if err != nil {
		return err
	}
	s.Swap(snap)
	return nil
}
