package postgres

import (
	"github.com/jackc/pglogrepl"
)

// LSN is a position in the write-ahead log, represented as the 64-bit
// magnitude of the textual "hi/lo" form (hi*2^32 + lo).
type LSN pglogrepl.LSN

func (lsn LSN) String() string {
	return pglogrepl.LSN(lsn).String()
}

func ParseLSN(s string) (LSN, error) {
	lsn, err := pglogrepl.ParseLSN(s)
	if err != nil {
		return 0, err
	}

	return LSN(lsn), nil
}

// ParseLSNOrZero degrades malformed input to the zero LSN instead of
// reporting an error. Callers use the result only as a delta baseline, and
// a zero baseline yields a non-negative, at-worst-overestimated growth.
func ParseLSNOrZero(s string) LSN {
	lsn, err := ParseLSN(s)
	if err != nil {
		return 0
	}
	return lsn
}

// Delta returns the number of WAL bytes between two textual positions.
// An empty or "null" previous position means no baseline was recorded yet,
// so there is no growth to report. A current position at or behind the
// previous one also yields 0: the log is append-only, so an apparent
// regression is an observation artifact, never negative growth.
func Delta(current, previous string) uint64 {
	if previous == "" || previous == "null" {
		return 0
	}
	currentLsn := ParseLSNOrZero(current)
	previousLsn := ParseLSNOrZero(previous)
	if currentLsn <= previousLsn {
		return 0
	}
	return uint64(currentLsn - previousLsn)
}
