package lifecycle

import "sync"

// subjectLocks serializes mutations per subject so concurrent transitions
// and updates against the same incident or case cannot interleave.
type subjectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *subjectLocks) lock(key string) func() {
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}
