package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Validate checks that every count is non-negative.
func Validate(r Record) error {
	if r.Total < 0 {
		return fmt.Errorf("%w: total is negative", ErrInvalidRecord)
	}
	if r.Boys < 0 {
		return fmt.Errorf("%w: boys is negative", ErrInvalidRecord)
	}
	if r.Girls < 0 {
		return fmt.Errorf("%w: girls is negative", ErrInvalidRecord)
	}
	return nil
}

// ValidateConsistent is Validate plus total == boys + girls.
func ValidateConsistent(r Record) error {
	if err := Validate(r); err != nil {
		return err
	}
	if !r.Consistent() {
		return fmt.Errorf("%w: total %d does not equal boys + girls (%d)", ErrInvalidRecord, r.Total, r.Boys+r.Girls)
	}
	return nil
}

// MaxCount bounds every coerced count so that boys + girls cannot overflow an int.
const MaxCount = math.MaxInt32 / 2

// Coerce converts raw input into a count. Anything that is not a finite number becomes 0.
// Fractions are truncated and magnitudes are capped at MaxCount. Negative values are
// kept; clamping them is the caller's rule.
func Coerce(v any) int {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return clampInt(int64(n))
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return clampInt(int64(n))
	case int64:
		return clampInt(n)
	case uint:
		return clampFloat(float64(n))
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return clampInt(int64(n))
	case uint64:
		return clampFloat(float64(n))
	case float32:
		return clampFloat(float64(n))
	case float64:
		return clampFloat(n)
	case json.Number:
		return coerceString(n.String())
	case string:
		return coerceString(n)
	default:
		return 0
	}
}

// FromRaw builds a record from untrusted input.
func FromRaw(total, boys, girls any, lastUpdated time.Time) Record {
	return Record{
		Total:       Coerce(total),
		Boys:        Coerce(boys),
		Girls:       Coerce(girls),
		LastUpdated: lastUpdated,
	}
}

func coerceString(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return clampInt(i)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return clampFloat(f)
}

func clampFloat(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	if f > MaxCount {
		return MaxCount
	}
	if f < -MaxCount {
		return -MaxCount
	}
	return int(f)
}

func clampInt(i int64) int {
	return int(min(max(i, -MaxCount), MaxCount))
}
