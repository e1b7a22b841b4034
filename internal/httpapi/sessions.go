package httpapi

import (
	"errors"
	"sync"
	"time"

	"streetsketch/core-go/internal/layers"
	"streetsketch/core-go/internal/session"
)

var errTooManySessions = errors.New("session limit reached")

type storedSession struct {
	rn       *session.Runner
	lastSeen time.Time
}

type sessionStore struct {
	mu   sync.RWMutex
	byID map[string]*storedSession
	max  int
	now  func() time.Time
}

func newSessionStore(max int) *sessionStore {
	return &sessionStore{byID: make(map[string]*storedSession), max: max, now: time.Now}
}

func (s *sessionStore) add(id string, rn *session.Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.byID) >= s.max {
		return errTooManySessions
	}
	s.byID[id] = &storedSession{rn: rn, lastSeen: s.now()}
	return nil
}

// get returns the session and marks it as used.
func (s *sessionStore) get(id string) (*session.Runner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	st.lastSeen = s.now()
	return st.rn, true
}

func (s *sessionStore) remove(id string) (*session.Runner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	delete(s.byID, id)
	return st.rn, true
}

// removeIdle removes sessions unused for longer than idle.
func (s *sessionStore) removeIdle(idle time.Duration) map[string]*session.Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-idle)
	out := make(map[string]*session.Runner)
	for id, st := range s.byID {
		if st.lastSeen.Before(cutoff) {
			out[id] = st.rn
			delete(s.byID, id)
		}
	}
	return out
}

func (s *sessionStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// drain removes every session and returns them for closing.
func (s *sessionStore) drain() []*session.Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Runner, 0, len(s.byID))
	for id, st := range s.byID {
		out = append(out, st.rn)
		delete(s.byID, id)
	}
	return out
}

// clientCanvas stands in for the browser map widget. The client runs the
// drawing interaction and posts the finished shape to /events/draw.
type clientCanvas struct{}

type clientGesture struct{}

func (clientGesture) Cancel() {}

func (clientCanvas) BeginDrawing(layers.Variant) (layers.Gesture, error) {
	return clientGesture{}, nil
}
