package catalog

import (
	"sync"
	"sync/atomic"
)

// Snapshot is an immutable pair of catalog lists published at one point in
// time. Neither the slices nor the entries they point to are modified after
// publication.
type Snapshot struct {
	Generation uint64
	Native     []*Native
	Packaged   []*Packaged
}

// Len returns the total number of entries in the snapshot
func (s *Snapshot) Len() int {
	return len(s.Native) + len(s.Packaged)
}

// Find looks up an entry by identifier in both lists
func (s *Snapshot) Find(id string) (Program, bool) {
	for _, n := range s.Native {
		if n.UniqueIdentifier == id {
			return n, true
		}
	}
	for _, p := range s.Packaged {
		if p.UniqueIdentifier == id {
			return p, true
		}
	}
	return nil, false
}

// UpdateFunc receives the current snapshot and returns the lists to publish
type UpdateFunc func(cur *Snapshot) ([]*Native, []*Packaged)

// Store holds the current catalog snapshot. Readers load it without locking;
// writers are serialized by a single mutex.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding an empty snapshot
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{})
	return s
}

// Snapshot returns the last published snapshot. It never blocks.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Replace publishes a new pair of lists
func (s *Store) Replace(native []*Native, packaged []*Packaged) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publish(native, packaged)
}

// Update publishes the lists returned by fn, which runs with exclusive access
// to the store
func (s *Store) Update(fn UpdateFunc) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	native, packaged := fn(s.current.Load())
	return s.publish(native, packaged)
}

// MutateEnabled sets the enabled flag of the entry with the given identifier.
// The affected list and entry are copied, so snapshots already handed to
// readers stay unchanged.
func (s *Store) MutateEnabled(id string, enabled bool) (Program, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	for i, n := range cur.Native {
		if n.UniqueIdentifier != id {
			continue
		}
		clone := *n
		clone.Enabled = enabled
		native := append([]*Native(nil), cur.Native...)
		native[i] = &clone
		s.publish(native, cur.Packaged)
		return &clone, true
	}
	for i, p := range cur.Packaged {
		if p.UniqueIdentifier != id {
			continue
		}
		clone := *p
		clone.Enabled = enabled
		packaged := append([]*Packaged(nil), cur.Packaged...)
		packaged[i] = &clone
		s.publish(cur.Native, packaged)
		return &clone, true
	}
	return nil, false
}

// Find looks up an entry by identifier in the current snapshot
func (s *Store) Find(id string) (Program, bool) {
	return s.Snapshot().Find(id)
}

// Len returns the number of native and packaged entries in the current snapshot
func (s *Store) Len() (native, packaged int) {
	snap := s.Snapshot()
	return len(snap.Native), len(snap.Packaged)
}

// publish must be called with mu held
func (s *Store) publish(native []*Native, packaged []*Packaged) *Snapshot {
	next := &Snapshot{
		Generation: s.current.Load().Generation + 1,
		Native:     native,
		Packaged:   packaged,
	}
	s.current.Store(next)
	return next
}
