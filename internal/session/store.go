package session

import (
	"fmt"

	"proctor/internal/model"
)

// ItemSessionStore keeps at most one item session per (itemRef,
// occurrence) pair and remembers insertion order.
type ItemSessionStore struct {
	order    []*ItemSession
	sessions map[*model.AssessmentItemRef]map[int]*ItemSession
}

// NewItemSessionStore returns an empty store.
func NewItemSessionStore() *ItemSessionStore {
	return &ItemSessionStore{
		sessions: make(map[*model.AssessmentItemRef]map[int]*ItemSession),
	}
}

// Add registers a session. Registering a second session for the same
// occurrence is an error.
func (st *ItemSessionStore) Add(s *ItemSession) error {
	byOccurrence, ok := st.sessions[s.Ref()]
	if !ok {
		byOccurrence = make(map[int]*ItemSession)
		st.sessions[s.Ref()] = byOccurrence
	}
	if _, exists := byOccurrence[s.Occurrence()]; exists {
		return fmt.Errorf("item session %s already in store", s)
	}
	byOccurrence[s.Occurrence()] = s
	st.order = append(st.order, s)
	return nil
}

// Get returns the session for one occurrence of ref.
func (st *ItemSessionStore) Get(ref *model.AssessmentItemRef, occurrence int) (*ItemSession, bool) {
	s, ok := st.sessions[ref][occurrence]
	return s, ok
}

// Has reports whether a session exists for one occurrence of ref.
func (st *ItemSessionStore) Has(ref *model.AssessmentItemRef, occurrence int) bool {
	_, ok := st.sessions[ref][occurrence]
	return ok
}

// All returns every session in insertion order.
func (st *ItemSessionStore) All() []*ItemSession {
	return st.order
}

// Len returns the number of stored sessions.
func (st *ItemSessionStore) Len() int {
	return len(st.order)
}
