package paging

import "sync"

// Selection is a set of selected keys. It lives as long as its owner;
// paging and refreshes do not clear it.
type Selection[K comparable] struct {
	mu  sync.RWMutex
	set map[K]struct{}
}

func NewSelection[K comparable]() *Selection[K] {
	return &Selection[K]{set: make(map[K]struct{})}
}

// Toggle adds k if absent, otherwise removes it. It reports whether k is
// selected afterwards.
func (s *Selection[K]) Toggle(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[k]; ok {
		delete(s.set, k)
		return false
	}
	s.set[k] = struct{}{}
	return true
}

func (s *Selection[K]) IsSelected(k K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[k]
	return ok
}

// Selected returns the selected keys in no particular order.
func (s *Selection[K]) Selected() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]K, 0, len(s.set))
	for k := range s.set {
		out = append(out, k)
	}
	return out
}

func (s *Selection[K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.set)
}

func (s *Selection[K]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.set)
}
