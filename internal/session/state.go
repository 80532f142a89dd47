package session

// TestState is the top-level state of a test session. The numeric
// values are fixed by the snapshot wire format.
type TestState uint8

const (
	TestInitial       TestState = 1
	TestInteracting   TestState = 2
	TestModalFeedback TestState = 3
	TestSuspended     TestState = 4
	TestClosed        TestState = 5
)

func (s TestState) String() string {
	switch s {
	case TestInitial:
		return "initial"
	case TestInteracting:
		return "interacting"
	case TestModalFeedback:
		return "modalFeedback"
	case TestSuspended:
		return "suspended"
	case TestClosed:
		return "closed"
	}
	return "unknown"
}

// ItemState is the state of one item session. The numeric values are
// fixed by the snapshot wire format.
type ItemState uint8

const (
	ItemNotSelected   ItemState = 1
	ItemInitial       ItemState = 2
	ItemInteracting   ItemState = 3
	ItemSuspended     ItemState = 4
	ItemClosed        ItemState = 5
	ItemSolution      ItemState = 6
	ItemReview        ItemState = 7
	ItemModalFeedback ItemState = 8
)

func (s ItemState) String() string {
	switch s {
	case ItemNotSelected:
		return "notSelected"
	case ItemInitial:
		return "initial"
	case ItemInteracting:
		return "interacting"
	case ItemSuspended:
		return "suspended"
	case ItemClosed:
		return "closed"
	case ItemSolution:
		return "solution"
	case ItemReview:
		return "review"
	case ItemModalFeedback:
		return "modalFeedback"
	}
	return "unknown"
}

// Completion status tokens reported through the reserved
// completionStatus variable of every item session.
const (
	CompletionNotAttempted = "notAttempted"
	CompletionUnknown      = "unknown"
	CompletionCompleted    = "completed"
	CompletionIncomplete   = "incomplete"
)

// Config toggles optional driver behaviors. The bit values are fixed
// by the snapshot wire format.
type Config uint8

const (
	// ForceBranching applies branch rules in nonlinear parts too.
	ForceBranching Config = 1 << iota

	// ForcePreconditions applies item and section preconditions in
	// nonlinear parts too.
	ForcePreconditions

	// PathTracking records visited route positions so MoveBack can
	// retrace jumps and branches.
	PathTracking

	// AlwaysAllowJumps permits JumpTo in linear parts.
	AlwaysAllowJumps

	// InitializeAllItems materializes every item session up front
	// instead of part by part.
	InitializeAllItems
)

// Has reports whether every bit of flag is set.
func (c Config) Has(flag Config) bool { return c&flag == flag }
