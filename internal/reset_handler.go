package internal

import (
	"os"

	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"
)

// HandleReset clears the persisted monitor state, so the next tick starts
// from a fresh baseline with zero accumulated growth.
func HandleReset() error {
	stateFile := GetSettingWithDefault(StateFileSetting)
	err := os.Remove(stateFile)
	if os.IsNotExist(err) {
		tracelog.InfoLogger.Printf("No state file at %s, nothing to reset", stateFile)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to remove state file %s", stateFile)
	}
	tracelog.InfoLogger.Printf("Removed state file %s", stateFile)
	return nil
}
