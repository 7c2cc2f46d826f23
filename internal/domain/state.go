package domain

// State is the lifecycle state of a quiz session.
type State string

const (
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateExpired    State = "EXPIRED"
)

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateInProgress, StateCompleted, StateExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateExpired
}

// CanTransition reports whether the state machine allows moving from s to next.
// The only legal moves are IN_PROGRESS -> COMPLETED and IN_PROGRESS -> EXPIRED.
func (s State) CanTransition(next State) bool {
	return s == StateInProgress && next.Terminal()
}
