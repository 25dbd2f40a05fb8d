package tracking

import "sync"

// RequestScope remembers the request signatures already tracked within one
// unit of work, usually a single HTTP request or a seeding batch.
// A nil scope suppresses nothing.
type RequestScope struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewRequestScope creates an empty scope.
func NewRequestScope() *RequestScope {
	return &RequestScope{seen: make(map[string]struct{})}
}

// Claim records signature and reports whether this is its first occurrence.
func (s *RequestScope) Claim(signature string) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[signature]; ok {
		return false
	}
	s.seen[signature] = struct{}{}
	return true
}

// Reset forgets every claimed signature.
func (s *RequestScope) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.seen = make(map[string]struct{})
	s.mu.Unlock()
}

// Len returns the number of claimed signatures.
func (s *RequestScope) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
