package monitor

import (
	"github.com/walguard/walguard/internal/postgres"
)

type Decision int

const (
	DecisionNone Decision = iota
	DecisionTrigger
)

func (decision Decision) String() string {
	if decision == DecisionTrigger {
		return "trigger"
	}
	return "no-op"
}

// Evaluate folds one observed WAL position into the accumulated growth
// counter and decides whether the threshold has been crossed. It never
// resets the counter: only the controller does that, and only after a
// backup actually succeeded. Whether the trigger means a full or an
// incremental backup is also the controller's call, since only it knows
// whether a base backup exists.
func Evaluate(currentLSN string, state MonitorState, threshold uint64) (Decision, MonitorState) {
	tickGrowth := postgres.Delta(currentLSN, state.LastCheckLSN)

	updated := state
	updated.LastCheckLSN = currentLSN
	updated.AccumulatedGrowth = state.AccumulatedGrowth + tickGrowth

	if updated.AccumulatedGrowth >= threshold {
		return DecisionTrigger, updated
	}
	return DecisionNone, updated
}
