package edit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/rollcall/internal/domain/stats"
)

func counts(total, boys, girls int) stats.Record {
	return stats.Record{Total: total, Boys: boys, Girls: girls}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		draft  stats.Record
		field  stats.Field
		value  int
		policy TotalPolicy
		want   stats.Record
	}{
		{"boys recomputes total", counts(140, 60, 80), stats.FieldBoys, 70, PolicyClamp, counts(150, 70, 80)},
		{"girls recomputes total", counts(140, 60, 80), stats.FieldGirls, 90, PolicyClamp, counts(150, 60, 90)},
		{"negative boys clamps to zero", counts(140, 60, 80), stats.FieldBoys, -5, PolicyClamp, counts(80, 0, 80)},
		{"clamp keeps boys", counts(140, 60, 80), stats.FieldTotal, 100, PolicyClamp, counts(100, 60, 40)},
		{"clamp below boys", counts(140, 60, 80), stats.FieldTotal, 50, PolicyClamp, counts(50, 50, 0)},
		{"clamp negative total", counts(140, 60, 80), stats.FieldTotal, -1, PolicyClamp, counts(0, 0, 0)},
		{"ratio preserves proportion", counts(140, 60, 80), stats.FieldTotal, 70, PolicyRatio, counts(70, 30, 40)},
		{"ratio rounds, girls take remainder", counts(3, 1, 2), stats.FieldTotal, 10, PolicyRatio, counts(10, 3, 7)},
		{"ratio from empty goes to girls", counts(0, 0, 0), stats.FieldTotal, 12, PolicyRatio, counts(12, 0, 12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.draft, tt.field, tt.value, tt.policy)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Consistent())
		})
	}
}

func TestApply_KeepsTimestamp(t *testing.T) {
	draft := stats.Default()
	draft.LastUpdated = draft.LastUpdated.AddDate(2024, 0, 0)
	got := Apply(draft, stats.FieldBoys, 10, PolicyClamp)
	assert.Equal(t, draft.LastUpdated, got.LastUpdated)
}

func TestApply_BoysThenGirls(t *testing.T) {
	for _, b := range []int{0, 1, 59, 1000} {
		for _, g := range []int{0, 7, 80} {
			got := Apply(Apply(stats.Default(), stats.FieldBoys, b, PolicyClamp), stats.FieldGirls, g, PolicyClamp)
			assert.Equal(t, counts(b+g, b, g), got)
		}
	}
}

func TestApply_HugeInputStaysConsistent(t *testing.T) {
	inputs := []any{"9223372036854775807", math.MaxInt, int64(math.MaxInt64), 1e300}
	for _, raw := range inputs {
		for _, field := range []stats.Field{stats.FieldBoys, stats.FieldGirls, stats.FieldTotal} {
			for _, policy := range []TotalPolicy{PolicyClamp, PolicyRatio} {
				got := Apply(stats.Default(), field, stats.Coerce(raw), policy)
				require.NoError(t, stats.Validate(got), "%v %s %s", raw, field, policy)
				require.True(t, got.Consistent(), "%v %s %s", raw, field, policy)
			}
		}
	}

	huge := counts(math.MaxInt, math.MaxInt, math.MaxInt)
	got := Apply(huge, stats.FieldBoys, math.MaxInt, PolicyClamp)
	assert.Equal(t, counts(2*stats.MaxCount, stats.MaxCount, stats.MaxCount), got)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyClamp, p)

	p, err = ParsePolicy(" Ratio ")
	require.NoError(t, err)
	assert.Equal(t, PolicyRatio, p)

	_, err = ParsePolicy("average")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
