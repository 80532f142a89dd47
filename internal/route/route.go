package route

import (
	"errors"
	"fmt"

	"proctor/internal/model"
)

// ErrOutOfBounds is returned when a cursor operation would leave
// [0, Count()] or an index does not name a route item.
var ErrOutOfBounds = errors.New("route position out of bounds")

// Item is one visitable occurrence of an item reference. It is
// immutable: the rule slices are fixed at build time.
type Item struct {
	ItemRef    *model.AssessmentItemRef
	Occurrence int

	// TestPart and Sections locate the occurrence in the tree;
	// Sections runs outermost to innermost.
	TestPart *model.TestPart
	Sections []*model.AssessmentSection

	// Effective rules: the itemRef's own plus those inherited from
	// the section chain and test part.
	PreConditions []*model.PreCondition
	BranchRules   []*model.BranchRule
	Control       *model.ItemSessionControl
	TimeLimits    *model.TimeLimits
}

// Section returns the innermost enclosing section.
func (it *Item) Section() *model.AssessmentSection {
	if len(it.Sections) == 0 {
		return nil
	}
	return it.Sections[len(it.Sections)-1]
}

// InSection reports whether the identifier names any enclosing
// section.
func (it *Item) InSection(identifier string) bool {
	for _, s := range it.Sections {
		if s.Identifier == identifier {
			return true
		}
	}
	return false
}

// String renders the occurrence as "itemRef.occurrence", the form
// item-scoped errors carry.
func (it *Item) String() string {
	return fmt.Sprintf("%s.%d", it.ItemRef.Identifier, it.Occurrence)
}

// Route is the ordered sequence of Items with a cursor.
type Route struct {
	items    []*Item
	position int
}

// New wraps an already materialized sequence. Most callers use Build.
func New(items []*Item) *Route {
	return &Route{items: items}
}

// Count returns the number of route items.
func (r *Route) Count() int { return len(r.items) }

// Position returns the cursor, Count() when the route is exhausted.
func (r *Route) Position() int { return r.position }

// Ended reports whether the cursor has moved past the last item.
func (r *Route) Ended() bool { return r.position >= len(r.items) }

// IsFirst reports whether the cursor is on the first item.
func (r *Route) IsFirst() bool { return r.position == 0 && len(r.items) > 0 }

// IsLast reports whether the cursor is on the last item.
func (r *Route) IsLast() bool { return r.position == len(r.items)-1 }

// Current returns the item under the cursor.
func (r *Route) Current() (*Item, error) {
	if r.Ended() {
		return nil, fmt.Errorf("%w: route ended at %d", ErrOutOfBounds, r.position)
	}
	return r.items[r.position], nil
}

// At returns the i-th item without moving the cursor.
func (r *Route) At(i int) (*Item, error) {
	if i < 0 || i >= len(r.items) {
		return nil, fmt.Errorf("%w: %d of %d", ErrOutOfBounds, i, len(r.items))
	}
	return r.items[i], nil
}

// Items returns the full sequence in route order. Callers must not
// mutate it.
func (r *Route) Items() []*Item { return r.items }

// Next advances the cursor one step, possibly past the last item.
func (r *Route) Next() error {
	if r.Ended() {
		return fmt.Errorf("%w: cannot advance past %d", ErrOutOfBounds, r.position)
	}
	r.position++
	return nil
}

// Previous moves the cursor one step back.
func (r *Route) Previous() error {
	if r.position == 0 {
		return fmt.Errorf("%w: cannot move before 0", ErrOutOfBounds)
	}
	r.position--
	return nil
}

// SetPosition moves the cursor to i, which may equal Count() to mark
// the route exhausted.
func (r *Route) SetPosition(i int) error {
	if i < 0 || i > len(r.items) {
		return fmt.Errorf("%w: %d of %d", ErrOutOfBounds, i, len(r.items))
	}
	r.position = i
	return nil
}

// IsFirstOfTestPart reports whether the current item opens its test
// part.
func (r *Route) IsFirstOfTestPart() bool {
	if r.Ended() {
		return false
	}
	if r.position == 0 {
		return true
	}
	return r.items[r.position-1].TestPart != r.items[r.position].TestPart
}

// IsLastOfTestPart reports whether the current item closes its test
// part.
func (r *Route) IsLastOfTestPart() bool {
	if r.Ended() {
		return false
	}
	if r.position == len(r.items)-1 {
		return true
	}
	return r.items[r.position+1].TestPart != r.items[r.position].TestPart
}

// IsLastOfSection reports whether the current item closes its
// innermost section.
func (r *Route) IsLastOfSection() bool {
	if r.Ended() {
		return false
	}
	if r.position == len(r.items)-1 {
		return true
	}
	return r.items[r.position+1].Section() != r.items[r.position].Section()
}

// ItemsByTestPart returns every item of the named test part in route
// order.
func (r *Route) ItemsByTestPart(identifier string) []*Item {
	var out []*Item
	for _, it := range r.items {
		if it.TestPart.Identifier == identifier {
			out = append(out, it)
		}
	}
	return out
}

// ItemsBySection returns every item enclosed by the named section in
// route order.
func (r *Route) ItemsBySection(identifier string) []*Item {
	var out []*Item
	for _, it := range r.items {
		if it.InSection(identifier) {
			out = append(out, it)
		}
	}
	return out
}

// ItemsByItemRef returns every occurrence of the named item reference
// in route order.
func (r *Route) ItemsByItemRef(identifier string) []*Item {
	var out []*Item
	for _, it := range r.items {
		if it.ItemRef.Identifier == identifier {
			out = append(out, it)
		}
	}
	return out
}

// Branch moves the cursor to the first item whose itemRef, enclosing
// section, or test part matches the target identifier.
func (r *Route) Branch(target string) error {
	for i, it := range r.items {
		if it.ItemRef.Identifier == target || it.TestPart.Identifier == target || it.InSection(target) {
			r.position = i
			return nil
		}
	}
	return fmt.Errorf("%w: no route item matches branch target %q", ErrOutOfBounds, target)
}
