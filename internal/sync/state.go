package sync

// State is the phase of a sync session
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateTransferring
	StateMerging
	StateCommitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateTransferring:
		return "transferring"
	case StateMerging:
		return "merging"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed
}

// Event is delivered to the observer on every state change
type Event struct {
	Err       error
	SessionID string
	PeerID    string
	State     State
}

// Observer receives session events. It is called synchronously from the
// session goroutine and must not block.
type Observer func(Event)
