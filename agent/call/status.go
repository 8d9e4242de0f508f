package call

import "slices"

// Status is the lifecycle state of one call session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDialing    Status = "dialing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusBusy       Status = "busy"
	StatusNoAnswer   Status = "no-answer"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
	// StatusExpired is set locally when the polling budget runs out before the
	// gateway reports a terminal status.
	StatusExpired Status = "expired"
)

var terminalStatuses = []Status{
	StatusCompleted,
	StatusBusy,
	StatusNoAnswer,
	StatusFailed,
	StatusCanceled,
	StatusExpired,
}

func (s Status) Terminal() bool {
	return slices.Contains(terminalStatuses, s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDialing, StatusInProgress:
		return true
	default:
		return s.Terminal()
	}
}

func (s Status) String() string {
	return string(s)
}

// rank orders the non-terminal states; transitions never move backwards.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusDialing:
		return 1
	case StatusInProgress:
		return 2
	default:
		return 3
	}
}

// canTransition reports whether from may move to to. Gateway terminals need a
// dialled call; expired is reachable from any non-terminal state.
func canTransition(from, to Status) bool {
	if from.Terminal() || !to.Valid() {
		return false
	}
	switch {
	case to == StatusExpired:
		return true
	case to.Terminal():
		return from == StatusDialing || from == StatusInProgress
	default:
		return to.rank() > from.rank()
	}
}
