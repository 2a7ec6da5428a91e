package engine

import (
	"context"
	"time"

	"sequencer64/internal/bus"
	"sequencer64/internal/midi"
)

// outputTickWindow bounds how far the scheduler advances before it checks
// in again — small enough that a tempo change or Stop takes effect within a
// fraction of a beat even at slow tempos.
const outputTickWindow = 2 * time.Millisecond

// Play arms the output scheduler: spec.md §8 scenario S4's "Start" sends a
// MIDI Start (Continue if resuming from a nonzero position) and begins
// advancing ticks. As JACK transport master (spec.md §4.5), it also starts
// JACK's own shared transport so other JACK clients follow.
func (e *Engine) Play() {
	e.mu.Lock()
	atZero := e.transport.CurrentTick == 0
	e.transport.Running = true
	jackMaster := e.transport.Jack == JackMaster
	e.mu.Unlock()
	if atZero {
		e.bus.Start()
	} else {
		e.bus.Continue()
	}
	if jackMaster {
		if jt := e.bus.JackTransport(); jt != nil {
			jt.TransportStart()
		}
	}
}

// Stop halts the output scheduler, sends All Sound Off and MIDI Stop, and
// resets position to the left marker (spec.md §8 scenario S4). As JACK
// transport master, it also stops and relocates JACK's own transport.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.transport.Running = false
	e.transport.CurrentTick = e.transport.LeftMarker
	e.transport.clockAccum = 0
	e.transport.frac = 0
	jackMaster := e.transport.Jack == JackMaster
	e.mu.Unlock()
	e.bus.AllSoundOff()
	e.bus.Stop()
	if jackMaster {
		if jt := e.bus.JackTransport(); jt != nil {
			jt.TransportStop()
			jt.TransportLocate(0)
		}
	}
}

// StepOutput is the scheduler's single quantum of work (spec.md §4.6 steps
// 1-4), factored out of the sleep loop so it can be driven directly and
// deterministically by tests. In JackSlave mode it follows JACK's shared
// transport instead of the wall clock; otherwise (JackNone or JackMaster,
// where this engine is the one driving the clock) it advances by the tick
// delta implied by deltaUs microseconds of wall-clock time at the current
// tempo. While the transport is MIDIClockDriven it does nothing: incoming
// Clock bytes advance the position instead.
func (e *Engine) StepOutput(deltaUs float64) {
	e.mu.Lock()
	running := e.transport.Running
	clockDriven := e.transport.MIDIClockDriven
	jackMode := e.transport.Jack
	e.mu.Unlock()
	if !running || clockDriven {
		return
	}

	if jackMode == JackSlave {
		if jt := e.bus.JackTransport(); jt != nil {
			e.stepOutputJackSlave(jt)
			return
		}
	}
	e.stepOutputWallClock(deltaUs)
}

// stepOutputWallClock advances the transport by the tick delta implied by
// deltaUs, dispatches every active pattern across the resulting window, and
// emits MIDI Clock pulses as the accumulated tick count crosses each clock
// boundary.
func (e *Engine) stepOutputWallClock(deltaUs float64) {
	e.mu.Lock()
	ppqn := e.transport.PPQN
	bpm := e.transport.BPM
	deltaTicks, newFrac := midi.DeltaTicks(bpm, ppqn, deltaUs, e.transport.frac)
	e.transport.frac = newFrac
	if deltaTicks <= 0 {
		e.mu.Unlock()
		return
	}

	start := e.transport.CurrentTick
	end := start + deltaTicks

	loopHit := false
	right := e.transport.RightMarker
	if right > start && end >= right {
		end = right
		loopHit = true
	}

	songMode := e.transport.SongMode
	patterns := e.activePatternsLocked()

	clockIncrement := midi.ClockIncrement(ppqn)
	e.transport.clockAccum += deltaTicks
	var clockPulses int64
	if clockIncrement > 0 {
		clockPulses = e.transport.clockAccum / clockIncrement
		e.transport.clockAccum -= clockPulses * clockIncrement
	}
	e.mu.Unlock()

	for _, p := range patterns {
		p.Play(end, songMode, true, e.bus)
	}
	for i := int64(0); i < clockPulses; i++ {
		e.bus.EmitClock()
	}

	e.mu.Lock()
	if loopHit {
		e.transport.CurrentTick = e.transport.LeftMarker
		e.transport.clockAccum = 0
		e.mu.Unlock()
		e.bus.AllSoundOff()
		for _, p := range patterns {
			p.SetLastTick(e.transport.LeftMarker)
		}
	} else {
		e.transport.CurrentTick = end
		e.mu.Unlock()
	}
}

// stepOutputJackSlave replaces the wall-clock delta with JACK's own queried
// transport position (spec.md §4.6 steps c/d): while JACK reports Starting,
// emission is suppressed entirely (no pattern dispatch); on the
// Rolling-to-Stopped falling edge, every active pattern is silenced with
// All Sound Off; while Rolling, the frame position is converted to an
// engine tick via the sample rate and current tempo, and patterns are
// dispatched across the resulting window exactly as in wall-clock mode. A
// backward relocation (external rewind) resets each pattern's position
// without replaying its window, avoiding a spurious note flurry.
func (e *Engine) stepOutputJackSlave(jt bus.JackTransport) {
	state, frame := jt.TransportState()

	e.mu.Lock()
	last := e.transport.jackLastState
	e.transport.jackLastState = state
	if state == bus.TransportStarting {
		e.mu.Unlock()
		return
	}
	if last == bus.TransportRolling && state == bus.TransportStopped {
		e.transport.Running = false
		stoppedAt := e.transport.CurrentTick
		patterns := e.activePatternsLocked()
		e.mu.Unlock()
		e.bus.AllSoundOff()
		for _, p := range patterns {
			p.SetLastTick(stoppedAt)
		}
		return
	}
	if state != bus.TransportRolling {
		e.mu.Unlock()
		return
	}

	sampleRate := jt.SampleRate()
	ppqn := e.transport.PPQN
	bpm := e.transport.BPM
	start := e.transport.CurrentTick
	var end int64
	if sampleRate > 0 {
		end = int64(float64(frame) / float64(sampleRate) * bpm * float64(ppqn) / 60.0)
	} else {
		end = start
	}

	if end < start {
		// JACK relocated backward (rewind/loop-to-start elsewhere in the
		// graph): reposition without replaying the skipped window.
		patterns := e.activePatternsLocked()
		e.transport.CurrentTick = end
		e.mu.Unlock()
		for _, p := range patterns {
			p.SetLastTick(end)
		}
		return
	}

	songMode := e.transport.SongMode
	patterns := e.activePatternsLocked()
	e.mu.Unlock()

	for _, p := range patterns {
		p.Play(end, songMode, true, e.bus)
	}

	e.mu.Lock()
	e.transport.CurrentTick = end
	e.mu.Unlock()
}

func (e *Engine) activePatternsLocked() []*midi.Pattern {
	var out []*midi.Pattern
	for _, s := range e.slots {
		if s.active {
			out = append(out, s.pattern)
		}
	}
	return out
}

// RunOutput runs the output scheduler loop until ctx is cancelled, sleeping
// outputTickWindow between quanta (spec.md §4.6's condition-variable wait,
// approximated here with a fixed-interval sleep since Go has no native
// equivalent of a realtime condvar wakeup).
func (e *Engine) RunOutput(ctx context.Context) {
	ticker := time.NewTicker(outputTickWindow)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			e.StepOutput(float64(elapsed.Microseconds()))
		}
	}
}

// RunInput runs the input-poll loop until ctx is cancelled: drains the
// MasterBus, decodes each message, and routes it through HandleInput
// (spec.md §4.6's input-poll thread).
func (e *Engine) RunInput(ctx context.Context) {
	ticker := time.NewTicker(outputTickWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, msg := range e.bus.PollForMIDI() {
				e.HandleInput(msg.Bus, msg.Data, msg.Timestamp)
			}
		}
	}
}

// HandleInput dispatches one incoming raw MIDI message: system-realtime
// bytes drive transport (Start/Continue/Stop/Clock/Song Position Pointer),
// a recognized controller message is looked up in the control map, and
// anything else is decoded and streamed into the recording patterns that
// accept its channel: those on the message's bus, or every one of them in
// dumping mode (spec.md §4.6, §6's action table).
func (e *Engine) HandleInput(busIndex int, raw []byte, timestamp int64) {
	if len(raw) == 0 {
		return
	}
	switch raw[0] {
	case midi.StatusStart:
		e.handleExternalStart(false)
		return
	case midi.StatusContinue:
		e.handleExternalStart(true)
		return
	case midi.StatusStop:
		e.mu.Lock()
		e.transport.MIDIClockDriven = false
		e.mu.Unlock()
		e.Stop()
		return
	case midi.StatusClock:
		e.handleExternalClock()
		return
	case midi.StatusSongPosition:
		if len(raw) >= 3 {
			ticks := midi.SongPositionToTicks(raw[1], raw[2], e.Transport().PPQN)
			e.mu.Lock()
			e.transport.CurrentTick = ticks
			e.mu.Unlock()
		}
		return
	}

	e.mu.Lock()
	dumping := e.transport.dumping
	e.mu.Unlock()

	if e.applyControl(busIndex, raw) {
		return
	}

	ev := midi.DecodeWire(raw, timestamp)
	if dumping {
		e.streamToAllRecording(ev)
		return
	}
	e.streamToRecording(busIndex, ev)
}

func (e *Engine) handleExternalStart(resume bool) {
	e.mu.Lock()
	e.transport.MIDIClockDriven = true
	e.transport.Running = true
	if !resume {
		e.transport.CurrentTick = e.transport.LeftMarker
		e.transport.clockAccum = 0
		e.transport.frac = 0
	}
	e.mu.Unlock()
}

func (e *Engine) handleExternalClock() {
	e.mu.Lock()
	if !e.transport.MIDIClockDriven || !e.transport.Running {
		e.mu.Unlock()
		return
	}
	ppqn := e.transport.PPQN
	songMode := e.transport.SongMode
	step := midi.ClockIncrement(ppqn)
	start := e.transport.CurrentTick
	end := start + step
	patterns := e.activePatternsLocked()
	e.mu.Unlock()

	for _, p := range patterns {
		p.Play(end, songMode, true, e.bus)
	}

	e.mu.Lock()
	e.transport.CurrentTick = end
	e.mu.Unlock()
}

func (e *Engine) streamToAllRecording(ev midi.Event) {
	e.mu.Lock()
	patterns := e.activePatternsLocked()
	e.mu.Unlock()
	for _, p := range patterns {
		p.StreamEvent(ev, e.bus)
	}
}

func (e *Engine) streamToRecording(busIndex int, ev midi.Event) {
	e.mu.Lock()
	patterns := e.activePatternsLocked()
	e.mu.Unlock()
	for _, p := range patterns {
		if p.Bus != busIndex {
			continue
		}
		p.StreamEvent(ev, e.bus)
	}
}

// SetDumping toggles whether incoming MIDI is streamed into every recording
// pattern regardless of bus (spec.md §6 "dumping mode"), vs. only those
// bound to the message's originating bus.
func (e *Engine) SetDumping(on bool) {
	e.mu.Lock()
	e.transport.dumping = on
	e.mu.Unlock()
}
