package flasher

// State is a step of a programming run.
type State int

// Programming runs move through these states in order and end in either
// Succeeded or Failed.
const (
	StateIdle State = iota
	StateValidated
	StateErased
	StateWriting
	StateVerifying
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateValidated: "validated",
	StateErased:    "erased",
	StateWriting:   "writing",
	StateVerifying: "verifying",
	StateSucceeded: "succeeded",
	StateFailed:    "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "unknown"
}

// Done reports whether s is a final state.
func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailed
}
