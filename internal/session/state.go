// ABOUTME: Lifecycle states of a chat session
// ABOUTME: Connecting -> Authenticated -> AwaitingInput <-> Completing/Appending -> Closed

package session

// State is a chat session lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateAwaitingInput
	StateCompleting
	StateAppending
	StateClosed
)

var stateNames = [...]string{
	StateConnecting:    "connecting",
	StateAuthenticated: "authenticated",
	StateAwaitingInput: "awaiting_input",
	StateCompleting:    "completing",
	StateAppending:     "appending",
	StateClosed:        "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
