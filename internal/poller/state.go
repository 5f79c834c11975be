package poller

// State is the lifecycle position of a polling session.
type State int

const (
	StateInit State = iota
	StateWaitingResponse
	StateScheduled
	StateCompleted
	StateFailed
	StateCancelled
)

// Terminal reports whether no further rounds can happen from this state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateWaitingResponse:
		return "waiting_response"
	case StateScheduled:
		return "scheduled"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
