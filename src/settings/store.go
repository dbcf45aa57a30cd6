package settings

import (
	"log"
	"sync/atomic"
)

// Store keeps the session's authoritative record in memory and mirrors it
// to disk. Reads are lock-free; a read racing a save sees either the old or
// the new record.
type Store struct {
	path    string
	current atomic.Pointer[Record]
}

// Open loads path (recovering with defaults) and returns a Store for it.
func Open(path string) *Store {
	rec, err := Load(path)
	if err != nil {
		log.Printf("settings: %v (using recovered values)", err)
	}
	s := &Store{path: path}
	s.current.Store(&rec)
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current record.
func (s *Store) Get() Record { return *s.current.Load() }

// Replace normalizes rec, makes it current and persists it. A persistence
// error is returned but the in-memory record is still updated.
func (s *Store) Replace(rec Record) (Record, error) {
	rec = rec.Normalize()
	s.current.Store(&rec)
	if err := Save(s.path, rec); err != nil {
		log.Printf("settings: save failed, keeping in-memory values: %v", err)
		return rec, err
	}
	return rec, nil
}

// Update applies fn to a copy of the current record and stores the result.
func (s *Store) Update(fn func(*Record)) (Record, error) {
	rec := s.Get()
	fn(&rec)
	return s.Replace(rec)
}
