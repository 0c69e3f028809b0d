package conversation

import "sync"

// DefaultWindow is the number of non-system entries kept per session.
const DefaultWindow = 20

// Store maps session IDs to histories. Entries live until cleared.
type Store struct {
	mu        sync.Mutex
	histories map[string]*History
	locks     map[string]*sync.Mutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		histories: make(map[string]*History),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex of session id and returns its release function.
// Turns on the same session are serialized; different sessions never block
// each other.
func (s *Store) Lock(id string) (unlock func()) {
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Get returns a copy of the history for id. Unknown sessions yield an empty
// history.
func (s *Store) Get(id string) *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histories[id]; ok {
		return h.Clone()
	}
	return &History{}
}

// Put replaces the history for id with a copy of h.
func (s *Store) Put(id string, h *History) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[id] = h.Clone()
}

// Clear forgets the history for id. It waits for an in-flight turn on the
// same session to finish.
func (s *Store) Clear(id string) {
	unlock := s.Lock(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, id)
}

// Len returns the number of sessions with a history.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories)
}
