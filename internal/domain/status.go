package domain

import "fmt"

// Status is the submission lifecycle state. Wire values are the lowercase
// strings below.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusEvaluated   Status = "evaluated"
	StatusReturned    Status = "returned"
	StatusResubmitted Status = "resubmitted"

	// StatusPending is a legacy wire synonym of "submitted". It is accepted
	// on decode and normalized; the engine never writes it.
	StatusPending Status = "pending"
)

// legalNext is the submission status graph:
// draft -> submitted -> evaluated <-> returned -> resubmitted -> evaluated.
// Re-evaluation is always allowed, hence the evaluated self-edge.
var legalNext = map[Status]map[Status]bool{
	StatusDraft:       {StatusSubmitted: true},
	StatusSubmitted:   {StatusEvaluated: true},
	StatusEvaluated:   {StatusReturned: true, StatusEvaluated: true},
	StatusReturned:    {StatusResubmitted: true, StatusEvaluated: true},
	StatusResubmitted: {StatusEvaluated: true},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	return legalNext[from][to]
}

// TransitionSources lists every status from which `to` is reachable.
// Storage layers use it to guard conditional updates.
func TransitionSources(to Status) []Status {
	var out []Status
	for from, next := range legalNext {
		if next[to] {
			out = append(out, from)
		}
	}
	return out
}

// ParseStatus validates a wire-level status string, normalizing the legacy
// "pending" value to "submitted".
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending:
		return StatusSubmitted, nil
	case StatusDraft, StatusSubmitted, StatusEvaluated, StatusReturned, StatusResubmitted:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown submission status %q", raw)
}
