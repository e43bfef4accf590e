package job

// validTransitions defines the allowed forward moves of a job.
var validTransitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed},
	// terminal states have no outgoing transitions
	StatusCompleted: {},
	StatusFailed:    {},
}

// IsTerminal reports whether no further transitions are possible from s.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// Staying in a non-terminal status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return !IsTerminal(from)
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
