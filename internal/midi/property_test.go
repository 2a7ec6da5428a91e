package midi

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDeltaTicksAccumulationMatchesSingleStep checks spec.md §8 property 4
// (tempo-change fidelity) at the DeltaTicks level: splitting a wall-clock
// interval into arbitrarily many smaller steps and carrying the fractional
// remainder between calls must produce a total tick count within one tick
// of converting the whole interval in one call. A naive truncate-per-call
// implementation would drift low as the step count grows; this property
// would catch that regression.
func TestDeltaTicksAccumulationMatchesSingleStep(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("splitting a delta into steps never loses ticks to truncation drift", prop.ForAll(
		func(bpm float64, ppqn int, steps []float64) bool {
			var total int64
			var whole float64
			var frac float64
			for _, us := range steps {
				us = us + 1 // keep steps strictly positive
				whole += us
				var ticks int64
				ticks, frac = DeltaTicks(bpm, ppqn, us, frac)
				total += ticks
			}

			want, _ := DeltaTicks(bpm, ppqn, whole, 0)
			diff := total - want
			if diff < 0 {
				diff = -diff
			}
			// one tick of slack: the incremental path's final fractional
			// remainder may not yet have crossed into a whole tick that the
			// single-shot computation already rounded in.
			return diff <= 1
		},
		gen.Float64Range(60, 300),
		gen.IntRange(24, 960),
		gen.SliceOfN(20, gen.Float64Range(0, 5000)),
	))

	properties.TestingRun(t)
}

// TestQuantizeTickStaysWithinOneSnapOfNearest checks that QuantizeTick never
// moves a tick by more than its snap interval, for any tick/snap/divide
// combination, directly exercising the quantize invariant spec.md §4.3
// describes in prose.
func TestQuantizeTickStaysWithinOneSnapOfNearest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("quantized tick never moves farther than its snap interval", prop.ForAll(
		func(tick int64, snap int64, divide int) bool {
			snap = snap%1000 + 1
			got := QuantizeTick(tick, snap, divide)
			delta := got - tick
			if delta < 0 {
				delta = -delta
			}
			return delta <= snap
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(1, 1000),
		gen.IntRange(-4, 8),
	))

	properties.TestingRun(t)
}
