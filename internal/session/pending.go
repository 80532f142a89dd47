package session

import (
	"proctor/internal/model"
	"proctor/pkg/qti"
)

// PendingResponses is one occurrence's committed response set waiting
// for deferred submission at the end of a simultaneous test part.
type PendingResponses struct {
	Ref        *model.AssessmentItemRef
	Occurrence int
	Responses  map[string]qti.Value
}

// PendingResponseStore queues pending response sets in arrival order.
// Committing the same occurrence again replaces the earlier set in
// place.
type PendingResponseStore struct {
	entries []*PendingResponses
}

// NewPendingResponseStore returns an empty store.
func NewPendingResponseStore() *PendingResponseStore {
	return &PendingResponseStore{}
}

// Add queues pr, replacing an earlier entry for the same occurrence.
func (p *PendingResponseStore) Add(pr *PendingResponses) {
	for i, entry := range p.entries {
		if entry.Ref == pr.Ref && entry.Occurrence == pr.Occurrence {
			p.entries[i] = pr
			return
		}
	}
	p.entries = append(p.entries, pr)
}

// Get returns the pending set for one occurrence, or nil.
func (p *PendingResponseStore) Get(ref *model.AssessmentItemRef, occurrence int) *PendingResponses {
	for _, entry := range p.entries {
		if entry.Ref == ref && entry.Occurrence == occurrence {
			return entry
		}
	}
	return nil
}

// All returns the queued sets in arrival order.
func (p *PendingResponseStore) All() []*PendingResponses {
	return p.entries
}

// Clear empties the store.
func (p *PendingResponseStore) Clear() {
	p.entries = nil
}

// Len returns the number of queued sets.
func (p *PendingResponseStore) Len() int {
	return len(p.entries)
}
