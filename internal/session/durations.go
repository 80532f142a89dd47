package session

import (
	"sort"

	"proctor/pkg/qti"
)

// DurationStore accumulates elapsed time per test, test part, and
// section identifier. Entries appear with a zero value on first use.
type DurationStore struct {
	entries map[string]qti.Duration
}

// NewDurationStore returns an empty store.
func NewDurationStore() *DurationStore {
	return &DurationStore{entries: make(map[string]qti.Duration)}
}

// Get returns the accumulated duration for identifier, creating a
// zero entry when none exists.
func (d *DurationStore) Get(identifier string) qti.Duration {
	v, ok := d.entries[identifier]
	if !ok {
		d.entries[identifier] = 0
	}
	return v
}

// Add credits delta to the entry for identifier.
func (d *DurationStore) Add(identifier string, delta qti.Duration) {
	d.entries[identifier] += delta
}

// Set overwrites the entry for identifier.
func (d *DurationStore) Set(identifier string, v qti.Duration) {
	d.entries[identifier] = v
}

// Has reports whether an entry exists without creating one.
func (d *DurationStore) Has(identifier string) bool {
	_, ok := d.entries[identifier]
	return ok
}

// Identifiers returns the entry names in lexical order.
func (d *DurationStore) Identifiers() []string {
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (d *DurationStore) Len() int {
	return len(d.entries)
}
