package edit

import (
	"fmt"
	"math"
	"strings"

	"github.com/rpggio/rollcall/internal/domain/stats"
)

// TotalPolicy decides how boys and girls follow a direct edit of the total.
type TotalPolicy string

const (
	// PolicyClamp keeps boys and moves the difference into girls, shrinking boys only
	// when the new total is below them.
	PolicyClamp TotalPolicy = "clamp"
	// PolicyRatio redistributes the new total keeping the boys:girls ratio.
	PolicyRatio TotalPolicy = "ratio"
)

// ParsePolicy parses a configured policy name. Empty means PolicyClamp.
func ParsePolicy(name string) (TotalPolicy, error) {
	switch TotalPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyClamp:
		return PolicyClamp, nil
	case PolicyRatio:
		return PolicyRatio, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Apply returns draft with field set to value and the dependent counts recomputed.
// Counts are held to [0, stats.MaxCount], so the result is always consistent.
func Apply(draft stats.Record, field stats.Field, value int, policy TotalPolicy) stats.Record {
	value = bound(value)
	boys, girls := bound(draft.Boys), bound(draft.Girls)
	out := draft

	switch field {
	case stats.FieldBoys:
		out.Boys, out.Girls = value, girls
		out.Total = out.Boys + out.Girls
	case stats.FieldGirls:
		out.Boys, out.Girls = boys, value
		out.Total = out.Boys + out.Girls
	case stats.FieldTotal:
		out.Total = value
		if policy == PolicyRatio {
			out.Boys, out.Girls = redistribute(value, boys, girls)
		} else {
			out.Boys, out.Girls = clamp(value, boys)
		}
	}
	return out
}

func bound(n int) int {
	return min(max(n, 0), stats.MaxCount)
}

func clamp(total, boys int) (int, int) {
	if total < boys {
		return total, 0
	}
	return boys, total - boys
}

func redistribute(total, boys, girls int) (int, int) {
	sum := boys + girls
	if sum == 0 {
		return 0, total
	}
	b := int(math.Round(float64(total) * float64(boys) / float64(sum)))
	b = min(b, total)
	return b, total - b
}
