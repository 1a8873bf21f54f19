package service

import "sync"

// inFlightSet tracks dispatched-but-unresolved enrichment requests so one
// instance does not publish the same work twice. It is process-local and
// best-effort only: a second instance may still dispatch a duplicate, which
// the conditional snapshot writes absorb.
type inFlightSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInFlightSet() *inFlightSet {
	return &inFlightSet{keys: make(map[string]struct{})}
}

// TryAdd inserts key and reports whether it was absent.
func (s *inFlightSet) TryAdd(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key]; exists {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *inFlightSet) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

func enrichmentKey(snapshotID, questionID, hash string) string {
	return snapshotID + ":" + questionID + ":" + hash
}
