package internal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/wal-g/tracelog"
)

const (
	Kibibyte uint64 = 1024
	Mebibyte        = Kibibyte * 1024
	Gibibyte        = Mebibyte * 1024
)

var sizeUnits = map[string]uint64{
	"":   1,
	"B":  1,
	"K":  Kibibyte,
	"KB": Kibibyte,
	"M":  Mebibyte,
	"MB": Mebibyte,
	"G":  Gibibyte,
	"GB": Gibibyte,
}

type UnknownSizeUnitError struct {
	error
}

func NewUnknownSizeUnitError(unit string) UnknownSizeUnitError {
	return UnknownSizeUnitError{errors.Errorf("unknown size unit: '%s', expected one of B, KB, MB, GB", unit)}
}

func (err UnknownSizeUnitError) Error() string {
	return fmt.Sprintf(tracelog.GetErrorFormatter(), err.error)
}

// ParseSize converts a human-readable size string ("100MB", "1.5GB", "512")
// into a byte count. Units are powers of 1024. An unrecognized unit is an
// error: size strings configure backup thresholds, and a silently wrong
// threshold would either fire on every tick or never fire at all.
func ParseSize(text string) (uint64, error) {
	text = strings.TrimSpace(text)

	var mantissa, unit strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			mantissa.WriteRune(r)
		} else {
			unit.WriteRune(r)
		}
	}

	unitName := strings.ToUpper(strings.TrimSpace(unit.String()))
	multiplier, ok := sizeUnits[unitName]
	if !ok {
		return 0, NewUnknownSizeUnitError(unitName)
	}

	value, err := strconv.ParseFloat(mantissa.String(), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse size '%s'", text)
	}

	return uint64(value * float64(multiplier)), nil
}
