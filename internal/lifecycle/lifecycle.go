// Package lifecycle defines the obstacle report status state machine.
package lifecycle

import "fmt"

// Status labels the review state of an obstacle report.
type Status string

const (
	StatusPending     Status = "pending"
	StatusVerified    Status = "verified"
	StatusResolved    Status = "resolved"
	StatusFalseReport Status = "false_report"
)

// Statuses lists all states in triage order.
var Statuses = []Status{StatusPending, StatusVerified, StatusResolved, StatusFalseReport}

// Known reports whether s is one of the four statuses.
func Known(s Status) bool {
	switch s {
	case StatusPending, StatusVerified, StatusResolved, StatusFalseReport:
		return true
	}
	return false
}

// Action is a transition an admin may take from the current status.
type Action struct {
	Target Status `json:"target" enum:"pending,verified,resolved,false_report"`
	Label  string `json:"label"`
}

// transitions is the full adjacency table. Every state has at least one exit
// so a mistaken resolution can always be reverted.
var transitions = map[Status][]Action{
	StatusPending: {
		{Target: StatusVerified, Label: "Mark Under Review"},
		{Target: StatusFalseReport, Label: "Mark Invalid"},
	},
	StatusVerified: {
		{Target: StatusResolved, Label: "Mark as Fixed"},
		{Target: StatusPending, Label: "Revert to Pending"},
	},
	StatusResolved: {
		{Target: StatusVerified, Label: "Reopen for Review"},
	},
	StatusFalseReport: {
		{Target: StatusPending, Label: "Revert to Pending"},
	},
}

// AvailableActions returns the transitions allowed from current. Unrecognized
// statuses yield an empty set rather than an error.
func AvailableActions(current Status) []Action {
	acts := transitions[current]
	out := make([]Action, len(acts))
	copy(out, acts)
	return out
}

// CanTransition reports whether from -> to is in the adjacency table.
func CanTransition(from, to Status) bool {
	for _, a := range transitions[from] {
		if a.Target == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError carries the offending pair back to the caller.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// EnsureTransition validates from -> to, returning InvalidTransitionError on
// failure. Callers must reject the request before any write is attempted.
func EnsureTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return InvalidTransitionError{From: from, To: to}
	}
	return nil
}
