package midi

import "testing"

func TestMicrosPerTick(t *testing.T) {
	got := MicrosPerTick(120, 192)
	want := 60_000_000.0 / (120.0 * 192.0)
	if got != want {
		t.Errorf("MicrosPerTick(120,192) = %v, want %v", got, want)
	}
	if MicrosPerTick(0, 192) != 0 {
		t.Error("zero bpm should yield 0, not divide by zero")
	}
}

func TestDeltaTicksNoDrift(t *testing.T) {
	// Repeated small steps should sum to the same total ticks as one big
	// step, with the fractional remainder carried instead of discarded.
	bpm, ppqn := 120.0, 192
	one := MicrosPerTick(bpm, ppqn)

	var frac float64
	var total int64
	for i := 0; i < 1000; i++ {
		var ticks int64
		ticks, frac = DeltaTicks(bpm, ppqn, one, frac)
		total += ticks
	}

	bigTicks, _ := DeltaTicks(bpm, ppqn, one*1000, 0)
	if total != bigTicks {
		t.Errorf("accumulated ticks %d != single-step ticks %d", total, bigTicks)
	}
}

func TestClockIncrementIsPPQNOver24(t *testing.T) {
	if got := ClockIncrement(192); got != 8 {
		t.Errorf("ClockIncrement(192) = %d, want 8", got)
	}
	if ClockIntervalTicks(192) != ClockIncrement(192) {
		t.Error("ClockIntervalTicks should equal ClockIncrement")
	}
}

func TestSongPositionRoundTrip(t *testing.T) {
	ppqn := 192
	ticks := SongPositionToTicks(0x10, 0x02, ppqn)
	lsb, msb := TicksToSongPosition(ticks, ppqn)
	back := SongPositionToTicks(lsb, msb, ppqn)
	if back != ticks {
		t.Errorf("round trip mismatch: %d -> (%d,%d) -> %d", ticks, lsb, msb, back)
	}
}

func TestQuantizeTickNearestSnap(t *testing.T) {
	if got := QuantizeTick(47, 48, 1); got != 48 {
		t.Errorf("QuantizeTick(47,48,1) = %d, want 48", got)
	}
	if got := QuantizeTick(0, 48, 1); got != 0 {
		t.Errorf("QuantizeTick(0,48,1) = %d, want 0", got)
	}
	if got := QuantizeTick(100, 0, 1); got != 100 {
		t.Error("snap <= 0 should be a no-op")
	}
}

func TestWrapTickAndLoopCount(t *testing.T) {
	if got := WrapTick(250, 192); got != 58 {
		t.Errorf("WrapTick(250,192) = %d, want 58", got)
	}
	if got := WrapTick(-10, 192); got != 182 {
		t.Errorf("WrapTick(-10,192) = %d, want 182", got)
	}
	if got := LoopCount(400, 192); got != 2 {
		t.Errorf("LoopCount(400,192) = %d, want 2", got)
	}
}

func TestTempoMicrosPerQuarterRoundTrip(t *testing.T) {
	bpm := 120.0
	us := MicrosPerQuarterFromTempo(bpm)
	back := TempoFromMicrosPerQuarter(us)
	if back < bpm-0.1 || back > bpm+0.1 {
		t.Errorf("tempo round trip: %v -> %d -> %v", bpm, us, back)
	}
}

func TestParseAndFormatTimeString(t *testing.T) {
	tick, err := ParseTimeString("2:1:0", 4, 4, 192)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tick != 768 {
		t.Errorf("2:1:0 should be tick 768 (one bar in), got %d", tick)
	}
	s := FormatTimeString(768, 4, 4, 192)
	if s != "2:1:0" {
		t.Errorf("FormatTimeString(768) = %q, want 2:1:0", s)
	}

	if _, err := ParseTimeString("bad", 4, 4, 192); err == nil {
		t.Error("expected an error for a malformed time string")
	}
}
