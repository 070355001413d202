package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"
)

const (
	lastBackupTimeKey    = "LAST_BACKUP_TIME"
	lastBackupLsnKey     = "LAST_BACKUP_LSN"
	lastCheckLsnKey      = "LAST_CHECK_LSN"
	accumulatedGrowthKey = "ACCUMULATED_WAL_GROWTH"
	triggeredByKey       = "BACKUP_TRIGGERED_BY"
)

// MonitorState is the durable record the trigger controller carries across
// restarts. Accumulated growth must survive a crash mid-cycle: losing it
// would silently defer a due backup, double-counting it would fire early.
type MonitorState struct {
	LastBackupTime    *time.Time
	LastBackupLSN     string
	LastCheckLSN      string
	AccumulatedGrowth uint64
	TriggeredBy       string
}

// LoadState reads the state file. An absent file is a normal first run and
// yields the zero state. An unreadable or corrupt file also yields the zero
// state with a warning: resuming monitoring with one lost accounting window
// beats refusing to monitor at all.
func LoadState(path string) MonitorState {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			tracelog.WarningLogger.Printf("Failed to read state file %s, starting from a fresh state: %v", path, err)
		}
		return MonitorState{}
	}

	state, err := parseState(string(content))
	if err != nil {
		tracelog.WarningLogger.Printf("State file %s is corrupt, starting from a fresh state: %v", path, err)
		return MonitorState{}
	}
	return state
}

func parseState(content string) (MonitorState, error) {
	var state MonitorState
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return MonitorState{}, errors.Errorf("malformed line: '%s'", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case lastBackupTimeKey:
			if value == "" {
				continue
			}
			parsed, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return MonitorState{}, errors.Wrapf(err, "bad %s", lastBackupTimeKey)
			}
			state.LastBackupTime = &parsed
		case lastBackupLsnKey:
			state.LastBackupLSN = value
		case lastCheckLsnKey:
			state.LastCheckLSN = value
		case accumulatedGrowthKey:
			if value == "" {
				continue
			}
			parsed, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return MonitorState{}, errors.Wrapf(err, "bad %s", accumulatedGrowthKey)
			}
			state.AccumulatedGrowth = parsed
		case triggeredByKey:
			state.TriggeredBy = value
		default:
			tracelog.DebugLogger.Printf("Ignoring unknown state file key '%s'", key)
		}
	}
	return state, nil
}

// SaveState writes the state atomically: the record lands in a temp file
// first and is renamed into place, so a crash mid-write leaves the previous
// valid state intact. The format is key=value lines, kept human-readable
// for operational inspection.
func SaveState(path string, state MonitorState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create state directory for %s", path)
	}

	lastBackupTime := ""
	if state.LastBackupTime != nil {
		lastBackupTime = state.LastBackupTime.UTC().Format(time.RFC3339)
	}

	fields := map[string]string{
		lastBackupTimeKey:    lastBackupTime,
		lastBackupLsnKey:     state.LastBackupLSN,
		lastCheckLsnKey:      state.LastCheckLSN,
		accumulatedGrowthKey: strconv.FormatUint(state.AccumulatedGrowth, 10),
		triggeredByKey:       state.TriggeredBy,
	}

	var keys []string
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&builder, "%s=%s\n", key, fields[key])
	}

	tempPath := path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create temp state file %s", tempPath)
	}
	if _, err = file.WriteString(builder.String()); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to write temp state file %s", tempPath)
	}
	if err = file.Sync(); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to sync temp state file %s", tempPath)
	}
	if err = file.Close(); err != nil {
		return errors.Wrapf(err, "failed to close temp state file %s", tempPath)
	}

	if err = os.Rename(tempPath, path); err != nil {
		return errors.Wrapf(err, "failed to replace state file %s", path)
	}
	return nil
}
