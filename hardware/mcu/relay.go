package mcu

import (
	"fmt"
	"sync"

	"github.com/juju/errors"
)

// Single digit relay id in command text.
const MaxRelays = 9

const DefaultRelayCount = 4

// RelayStore keeps last commanded state per relay, not confirmed physical state:
// microcontroller has no read-back, state changes only after successful bus write.
// Exactly Count() entries for process lifetime, all off at start, never persisted.
type RelayStore struct {
	mu     sync.RWMutex
	states []bool // index = id-1
}

func NewRelayStore(count int) (*RelayStore, error) {
	if count < 1 || count > MaxRelays {
		return nil, errors.NotValidf("relay count=%d range 1..%d", count, MaxRelays)
	}
	return &RelayStore{states: make([]bool, count)}, nil
}

func (s *RelayStore) Count() int { return len(s.states) }

func (s *RelayStore) Valid(id int) error {
	if id < 1 || id > len(s.states) {
		return errors.NotValidf("relay=%d out of range 1..%d", id, len(s.states))
	}
	return nil
}

func (s *RelayStore) Get(id int) (bool, error) {
	if err := s.Valid(id); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[id-1], nil
}

// GetAll returns a snapshot copy, id -> on.
func (s *RelayStore) GetAll() map[int]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(map[int]bool, len(s.states))
	for i, on := range s.states {
		m[i+1] = on
	}
	return m
}

// only Encoder writes, after bus success
func (s *RelayStore) set(id int, on bool) {
	s.mu.Lock()
	s.states[id-1] = on
	s.mu.Unlock()
}

// RelayName is external key, e.g. relay1.
func RelayName(id int) string { return fmt.Sprintf("relay%d", id) }

// Named snapshot keyed by RelayName.
func (s *RelayStore) Named() map[string]bool {
	all := s.GetAll()
	m := make(map[string]bool, len(all))
	for id, on := range all {
		m[RelayName(id)] = on
	}
	return m
}
