package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const mebibyte = uint64(1024 * 1024)

func TestEvaluate_FirstObservationIsBaselineOnly(t *testing.T) {
	decision, updated := Evaluate("0/5000000", MonitorState{}, mebibyte)

	assert.Equal(t, DecisionNone, decision)
	assert.Equal(t, "0/5000000", updated.LastCheckLSN)
	assert.Equal(t, uint64(0), updated.AccumulatedGrowth)
}

func TestEvaluate_AccumulatesGrowthBelowThreshold(t *testing.T) {
	state := MonitorState{LastCheckLSN: "0/1000000"}

	decision, updated := Evaluate("0/1080000", state, mebibyte)

	assert.Equal(t, DecisionNone, decision)
	assert.Equal(t, uint64(0x80000), updated.AccumulatedGrowth)
	assert.Equal(t, "0/1080000", updated.LastCheckLSN)
}

func TestEvaluate_TriggersOnThresholdCrossing(t *testing.T) {
	// 0x1100000 - 0x1000000 = 0x100000 = exactly 1MiB
	state := MonitorState{LastCheckLSN: "0/1000000"}

	decision, updated := Evaluate("0/1100000", state, mebibyte)

	assert.Equal(t, DecisionTrigger, decision)
	assert.Equal(t, mebibyte, updated.AccumulatedGrowth)
}

func TestEvaluate_ThresholdCrossingAcrossTicks(t *testing.T) {
	positions := []string{"0/1040000", "0/1080000", "0/10C0000", "0/1100000"}
	state := MonitorState{LastCheckLSN: "0/1000000"}

	for i, position := range positions {
		var decision Decision
		decision, state = Evaluate(position, state, mebibyte)
		if i < len(positions)-1 {
			assert.Equal(t, DecisionNone, decision, "tick %d should not trigger", i)
		} else {
			assert.Equal(t, DecisionTrigger, decision, "final tick should trigger")
		}
	}
	assert.Equal(t, mebibyte, state.AccumulatedGrowth)
}

func TestEvaluate_IsIdempotentForRepeatedPosition(t *testing.T) {
	state := MonitorState{LastCheckLSN: "0/1000000"}

	_, state = Evaluate("0/1080000", state, mebibyte)
	growthAfterFirst := state.AccumulatedGrowth

	_, state = Evaluate("0/1080000", state, mebibyte)

	assert.Equal(t, growthAfterFirst, state.AccumulatedGrowth,
		"a repeated position must contribute zero growth")
}

func TestEvaluate_DoesNotResetCounterOnTrigger(t *testing.T) {
	state := MonitorState{LastCheckLSN: "0/1000000", AccumulatedGrowth: 2 * mebibyte}

	decision, updated := Evaluate("0/1000000", state, mebibyte)

	// resetting is the controller's job, after a backup actually succeeded
	assert.Equal(t, DecisionTrigger, decision)
	assert.Equal(t, 2*mebibyte, updated.AccumulatedGrowth)
}

func TestEvaluate_KeepsBackupFieldsUntouched(t *testing.T) {
	state := MonitorState{
		LastBackupLSN: "0/800000",
		LastCheckLSN:  "0/1000000",
		TriggeredBy:   TriggeredByIncremental,
	}

	_, updated := Evaluate("0/1001000", state, mebibyte)

	assert.Equal(t, "0/800000", updated.LastBackupLSN)
	assert.Equal(t, TriggeredByIncremental, updated.TriggeredBy)
}
