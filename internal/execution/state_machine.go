// Package execution implements the two-phase committer, the order
// planner, the unwind ladder, and the process-wide execution state
// (busy lock, cooldowns, kill switch, daily PnL, pending settlements).
package execution

// Status values for an ExecutionRecord, in roughly the order a
// successful execution passes through them.
const (
	StatusPending         = "pending"
	StatusLegASubmitting  = "leg_a_submitting"
	StatusLegAFilled      = "leg_a_filled"
	StatusLegAFailed      = "leg_a_failed"
	StatusLegBSubmitting  = "leg_b_submitting"
	StatusLegBFilled      = "leg_b_filled"
	StatusUnwinding       = "unwinding"
	StatusUnwound         = "unwound"
	StatusSuccess         = "success"
	StatusAborted         = "aborted"
)

// ValidTransitions enumerates the status graph. A terminal status
// (success, aborted, unwound, leg_a_failed) has no outgoing edges.
var ValidTransitions = map[string][]string{
	StatusPending:        {StatusLegASubmitting, StatusAborted},
	StatusLegASubmitting: {StatusLegAFilled, StatusLegAFailed},
	StatusLegAFilled:     {StatusLegBSubmitting, StatusUnwinding},
	StatusLegAFailed:     {},
	StatusLegBSubmitting: {StatusLegBFilled, StatusUnwinding},
	StatusLegBFilled:     {StatusSuccess},
	StatusUnwinding:      {StatusUnwound},
	StatusUnwound:        {},
	StatusSuccess:        {},
	StatusAborted:        {},
}

// CanTransition reports whether moving from one status to another is
// a valid edge in the execution graph.
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no further transitions.
func IsTerminal(status string) bool {
	return len(ValidTransitions[status]) == 0
}
