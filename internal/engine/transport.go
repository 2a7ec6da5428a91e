package engine

import (
	"sequencer64/internal/bus"
	"sequencer64/internal/midi"
)

// JackTransportMode selects who drives the tick clock when JACK transport
// is in play (spec.md §4.6: "JACK master / slave / neither").
type JackTransportMode int

const (
	JackNone JackTransportMode = iota
	JackMaster
	JackSlave
)

// Transport holds the engine's playback-position and tempo state. It is
// always accessed under Engine.mu; there is no separate lock.
type Transport struct {
	PPQN int
	BPM  float64

	Running  bool // output scheduler is armed to advance ticks
	Inputing bool // input-poll loop is active
	SongMode bool

	LeftMarker  int64
	RightMarker int64

	CurrentTick int64
	clockAccum  int64 // ticks accumulated since the last emitted Clock pulse
	frac        float64

	Jack JackTransportMode

	// MIDIClockDriven is true once an external Start/Continue has been
	// received over a MIDI-clock-slaved input bus; while true the scheduler
	// advances only on incoming Clock bytes rather than the wall clock
	// (spec.md §4.6's "MIDI-clock-driven override path").
	MIDIClockDriven bool

	dumping bool // record-all-incoming mode, bypassing the per-pattern bus filter

	// jackLastState is the transport state JACK reported on the previous
	// slave-mode cycle, used to detect the rolling->stopped falling edge
	// and the starting state (spec.md §4.6 steps c/d).
	jackLastState bus.TransportState
}

func newTransport(ppqn int, bpm float64) Transport {
	if ppqn <= 0 {
		ppqn = midi.DefaultPPQN
	}
	if bpm <= 0 {
		bpm = midi.DefaultBPM
	}
	return Transport{
		PPQN:        ppqn,
		BPM:         bpm,
		RightMarker: int64(ppqn) * 4 * 4, // four 4/4 bars, a reasonable default loop length
	}
}

// Transport returns a snapshot of the current transport state.
func (e *Engine) Transport() Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport
}

// SetBPM changes tempo; takes effect on the next scheduler tick.
func (e *Engine) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	e.mu.Lock()
	e.transport.BPM = bpm
	e.mu.Unlock()
}

// BPM returns the current tempo.
func (e *Engine) BPM() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.BPM
}

// SetLoopMarkers sets the song-mode loop boundaries in ticks.
func (e *Engine) SetLoopMarkers(left, right int64) {
	if right <= left {
		return
	}
	e.mu.Lock()
	e.transport.LeftMarker = left
	e.transport.RightMarker = right
	e.mu.Unlock()
}

// SetSongMode toggles song-mode (trigger-driven) vs. live-mode playback.
func (e *Engine) SetSongMode(on bool) {
	e.mu.Lock()
	e.transport.SongMode = on
	e.mu.Unlock()
}

// SetJackMode selects whether StepOutput follows JACK's shared transport
// (JackSlave), drives it (JackMaster), or ignores it (JackNone, the
// default) — spec.md §4.6 "JACK master / slave / neither". Has no effect
// unless the engine's MasterBus has a JackBackend output registered.
func (e *Engine) SetJackMode(mode JackTransportMode) {
	e.mu.Lock()
	e.transport.Jack = mode
	e.transport.jackLastState = bus.TransportStopped
	e.mu.Unlock()
}

// CurrentTick returns the engine's current playback position.
func (e *Engine) CurrentTick() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.CurrentTick
}

// IsRunning reports whether the output scheduler is currently advancing.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.Running
}
