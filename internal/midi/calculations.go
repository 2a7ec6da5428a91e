package midi

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPPQN and DefaultBPM match the values used throughout spec.md's
// end-to-end scenarios (§8 S1, S2, S5, S6).
const (
	DefaultPPQN = 192
	DefaultBPM  = 120.0
)

// MicrosPerTick returns how many wall-clock microseconds correspond to one
// tick at the given tempo and resolution.
func MicrosPerTick(bpm float64, ppqn int) float64 {
	if bpm <= 0 || ppqn <= 0 {
		return 0
	}
	return 60_000_000.0 / (bpm * float64(ppqn))
}

// DeltaTicks converts an elapsed wall-clock duration in microseconds into a
// tick delta, carrying the fractional remainder in frac so repeated calls
// do not accumulate drift (spec.md §4.6 step b).
func DeltaTicks(bpm float64, ppqn int, deltaUs float64, frac float64) (ticks int64, newFrac float64) {
	total := bpm*float64(ppqn)*deltaUs + frac
	whole := total / 60_000_000.0
	ticks = int64(whole)
	newFrac = total - float64(ticks)*60_000_000.0
	return
}

// ClockIncrement is how many ticks one MIDI Clock pulse (24 PPQN) represents
// at the engine's resolution. spec.md's Open Questions section resolves the
// ambiguity in the original in favor of ppqn/24, the musically correct value.
func ClockIncrement(ppqn int) int64 {
	return int64(ppqn) / 24
}

// ClockIntervalTicks is how many engine ticks separate consecutive MIDI
// Clock pulses — identical to ClockIncrement, exposed under its own name
// for callers computing a clock period rather than an increment.
func ClockIntervalTicks(ppqn int) int64 {
	return ClockIncrement(ppqn)
}

// SongPositionToTicks converts a Song Position Pointer's two 7-bit data
// bytes into an absolute tick, per spec.md §6: each MIDI beat is 6 clocks,
// and each clock is ppqn/24 ticks, so one SPP beat is ppqn/4 ticks.
func SongPositionToTicks(lsb, msb byte, ppqn int) int64 {
	beats := int64(msb)<<7 | int64(lsb)
	return beats * int64(ppqn) / 4
}

// TicksToSongPosition is the inverse of SongPositionToTicks, used when the
// engine itself emits a Song Position Pointer (e.g. on JACK relocate).
func TicksToSongPosition(ticks int64, ppqn int) (lsb, msb byte) {
	beats := ticks * 4 / int64(ppqn)
	return byte(beats & 0x7F), byte((beats >> 7) & 0x7F)
}

// QuantizeTick rounds tick to the nearest multiple of snap, attenuated by
// 1/divide (spec.md §4.3 quantize). divide <= 0 is treated as 1 (full snap).
func QuantizeTick(tick, snap int64, divide int) int64 {
	if snap <= 0 {
		return tick
	}
	if divide <= 0 {
		divide = 1
	}
	nearest := ((tick + snap/2) / snap) * snap
	delta := (nearest - tick) / int64(divide)
	return tick + delta
}

// WrapTick wraps a tick into [0, length) — used when recording streams
// timestamps modulo the pattern length.
func WrapTick(tick, length int64) int64 {
	if length <= 0 {
		return tick
	}
	return ((tick % length) + length) % length
}

// LoopCount returns how many multiples of length have elapsed by tick.
func LoopCount(tick, length int64) int64 {
	if length <= 0 {
		return 0
	}
	return tick / length
}

// TempoFromMicrosPerQuarter converts an SMF Set Tempo meta event's 3-byte
// microseconds-per-quarter-note value into BPM.
func TempoFromMicrosPerQuarter(usPerQuarter uint32) float64 {
	if usPerQuarter == 0 {
		return 0
	}
	return 60_000_000.0 / float64(usPerQuarter)
}

// MicrosPerQuarterFromTempo is the inverse, used when writing a Set Tempo
// meta event.
func MicrosPerQuarterFromTempo(bpm float64) uint32 {
	if bpm <= 0 {
		return 0
	}
	return uint32(60_000_000.0 / bpm)
}

// ParseTimeString parses "bars:beats:ticks" (e.g. "1:1:0") into a tick
// value given the time signature and PPQN. Out-of-range or malformed
// strings return an error rather than a zero value, so callers distinguish
// "at the very start" from "unparsable".
func ParseTimeString(s string, beatsPerBar, beatWidth, ppqn int) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("midi: bad time string %q", s)
	}
	bars, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("midi: bad bars in %q: %w", s, err)
	}
	beats, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("midi: bad beats in %q: %w", s, err)
	}
	ticks, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("midi: bad ticks in %q: %w", s, err)
	}
	ticksPerBeat := int64(ppqn) * 4 / int64(beatWidth)
	if bars < 1 || beats < 1 || beats > beatsPerBar || ticks < 0 || int64(ticks) >= ticksPerBeat {
		return 0, fmt.Errorf("midi: time string %q out of range", s)
	}
	ticksPerBar := ticksPerBeat * int64(beatsPerBar)
	return int64(bars-1)*ticksPerBar + int64(beats-1)*ticksPerBeat + int64(ticks), nil
}

// FormatTimeString is the inverse of ParseTimeString.
func FormatTimeString(tick int64, beatsPerBar, beatWidth, ppqn int) string {
	ticksPerBeat := int64(ppqn) * 4 / int64(beatWidth)
	ticksPerBar := ticksPerBeat * int64(beatsPerBar)
	bars := tick/ticksPerBar + 1
	rem := tick % ticksPerBar
	beats := rem/ticksPerBeat + 1
	rem = rem % ticksPerBeat
	return fmt.Sprintf("%d:%d:%d", bars, beats, rem)
}
