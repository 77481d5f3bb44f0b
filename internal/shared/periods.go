package shared

import (
	"errors"
	"fmt"
	"slices"
)

// Accounting period statuses.
const (
	PeriodStatusOpen   = "OPEN"
	PeriodStatusClosed = "CLOSED"
	PeriodStatusLocked = "LOCKED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("period transition invalid")

// periodTransitions lists the targets reachable from each status without an
// override. LOCKED only moves back to CLOSED with an override.
var periodTransitions = map[string][]string{
	PeriodStatusOpen:   {PeriodStatusClosed, PeriodStatusLocked},
	PeriodStatusClosed: {PeriodStatusOpen, PeriodStatusLocked},
}

// ValidatePeriodTransition reports whether a period may move from current to
// target.
func ValidatePeriodTransition(current, target string, hasOverride bool) error {
	if slices.Contains(periodTransitions[current], target) {
		return nil
	}
	if current == PeriodStatusLocked && target == PeriodStatusClosed && hasOverride {
		return nil
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidPeriodTransition, current, target)
}

// PeriodAcceptsPostings reports whether entries may post into a period in status.
func PeriodAcceptsPostings(status string) bool {
	return status == PeriodStatusOpen
}
