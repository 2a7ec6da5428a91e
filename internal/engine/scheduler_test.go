package engine

import (
	"testing"

	"sequencer64/internal/bus"
	"sequencer64/internal/midi"
)

// microsPerQuarterAt120 is the wall-clock duration of one quarter note at
// the default 120 BPM, used to drive StepOutput by exact tick counts.
func microsPerQuarterAt120(ppqn int) float64 {
	return midi.MicrosPerTick(midi.DefaultBPM, ppqn) * float64(ppqn)
}

func TestPlayEmitsStartAndStepOutputAdvancesTick(t *testing.T) {
	e, d := newTestEngine(t)
	p := midi.NewPattern(int64(midi.DefaultPPQN)*4, 4, 4, midi.DefaultPPQN)
	p.AddNote(0, int64(midi.DefaultPPQN), 60, 100, true)
	p.SetPlaying(true)
	_ = e.SetPattern(0, p)

	e.Play()
	sent := d.Sent()
	if len(sent) != 1 || sent[0][0] != midi.StatusStart {
		t.Fatalf("expected a single Start byte after Play(), got %v", sent)
	}

	e.StepOutput(microsPerQuarterAt120(midi.DefaultPPQN))

	if got := e.CurrentTick(); got != int64(midi.DefaultPPQN) {
		t.Errorf("expected CurrentTick to advance by one quarter note (%d), got %d", midi.DefaultPPQN, got)
	}

	foundNoteOn := false
	for _, msg := range d.Sent()[1:] {
		if msg[0]&0xF0 == midi.StatusNoteOn {
			foundNoteOn = true
		}
	}
	if !foundNoteOn {
		t.Error("expected the armed pattern's Note On to be dispatched during the step")
	}
}

func TestStepOutputNoopWhenNotRunning(t *testing.T) {
	e, _ := newTestEngine(t)
	e.StepOutput(1_000_000)
	if e.CurrentTick() != 0 {
		t.Error("expected StepOutput to be a no-op before Play()")
	}
}

func TestStopResetsToLeftMarkerAndSendsAllSoundOffAndStop(t *testing.T) {
	e, d := newTestEngine(t)
	e.SetLoopMarkers(100, int64(midi.DefaultPPQN)*8)
	e.Play()
	e.StepOutput(microsPerQuarterAt120(midi.DefaultPPQN))

	e.Stop()

	if got := e.CurrentTick(); got != 100 {
		t.Errorf("expected CurrentTick reset to the left marker (100), got %d", got)
	}
	if e.IsRunning() {
		t.Error("expected Running to be false after Stop")
	}

	sent := d.Sent()
	lastTwo := sent[len(sent)-17:] // 16 All-Sound-Off CCs + 1 Stop byte
	var sawStop, sawASO bool
	for _, msg := range lastTwo {
		if msg[0] == midi.StatusStop {
			sawStop = true
		}
		if msg[0]&0xF0 == midi.StatusControlChange && msg[1] == 120 {
			sawASO = true
		}
	}
	if !sawASO {
		t.Error("expected an All Sound Off CC120 to be sent on Stop")
	}
	if !sawStop {
		t.Error("expected a MIDI Stop byte to be sent")
	}
}

func TestStepOutputCrossesLoopBoundaryAndResetsToLeftMarker(t *testing.T) {
	e, d := newTestEngine(t)
	e.SetLoopMarkers(0, int64(midi.DefaultPPQN))
	p := midi.NewPattern(int64(midi.DefaultPPQN)*4, 4, 4, midi.DefaultPPQN)
	_ = e.SetPattern(0, p)
	e.Play()

	// Step by two full quarter notes; the loop boundary at one quarter note
	// should clamp the advance and wrap the position back to 0.
	e.StepOutput(microsPerQuarterAt120(midi.DefaultPPQN) * 2)

	if got := e.CurrentTick(); got != 0 {
		t.Errorf("expected CurrentTick wrapped to the left marker (0), got %d", got)
	}

	sawASO := false
	for _, msg := range d.Sent() {
		if msg[0]&0xF0 == midi.StatusControlChange && len(msg) == 3 && msg[1] == 120 {
			sawASO = true
		}
	}
	if !sawASO {
		t.Error("expected All Sound Off to fire when the loop boundary is crossed")
	}
}

func TestStepOutputEmitsClockPulses(t *testing.T) {
	e, d := newTestEngine(t)
	e.Play()
	before := len(d.Sent())
	e.StepOutput(microsPerQuarterAt120(midi.DefaultPPQN))
	after := d.Sent()

	clockCount := 0
	for _, msg := range after[before:] {
		if msg[0] == midi.StatusClock {
			clockCount++
		}
	}
	if clockCount != 24 {
		t.Errorf("expected 24 clock pulses per quarter note, got %d", clockCount)
	}
}

func TestHandleInputStopClearsRunning(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Play()
	e.HandleInput(0, []byte{midi.StatusStop}, 0)
	if e.IsRunning() {
		t.Error("expected an incoming Stop byte to halt the transport")
	}
}

func TestHandleInputRoutesToRecordingPatternOnMatchingBus(t *testing.T) {
	e, _ := newTestEngine(t)
	p := midi.NewPattern(int64(midi.DefaultPPQN)*4, 4, 4, midi.DefaultPPQN)
	p.Bus = 0
	p.SetRecording(true)
	_ = e.SetPattern(0, p)

	e.HandleInput(0, []byte{midi.StatusNoteOn, 60, 100}, 10)

	if len(p.Events.Events) != 1 {
		t.Fatalf("expected the incoming Note On to be recorded, got %d events", len(p.Events.Events))
	}
}

func TestHandleInputDoesNotRouteToOtherBusPattern(t *testing.T) {
	e, _ := newTestEngine(t)
	p := midi.NewPattern(int64(midi.DefaultPPQN)*4, 4, 4, midi.DefaultPPQN)
	p.Bus = 1
	p.SetRecording(true)
	_ = e.SetPattern(0, p)

	e.HandleInput(0, []byte{midi.StatusNoteOn, 60, 100}, 10)

	if len(p.Events.Events) != 0 {
		t.Error("expected a message from bus 0 not to reach a pattern bound to bus 1")
	}
}

func TestHandleInputDumpingModeIgnoresBusFilter(t *testing.T) {
	e, _ := newTestEngine(t)
	p := midi.NewPattern(int64(midi.DefaultPPQN)*4, 4, 4, midi.DefaultPPQN)
	p.Bus = 1
	p.SetRecording(true)
	_ = e.SetPattern(0, p)
	e.SetDumping(true)

	e.HandleInput(0, []byte{midi.StatusNoteOn, 60, 100}, 10)

	if len(p.Events.Events) != 1 {
		t.Error("expected dumping mode to ignore the per-pattern bus filter")
	}
}

func TestHandleInputExternalStartMakesTransportMIDIClockDriven(t *testing.T) {
	e, _ := newTestEngine(t)
	e.HandleInput(0, []byte{midi.StatusStart}, 0)
	tr := e.Transport()
	if !tr.Running || !tr.MIDIClockDriven {
		t.Errorf("expected external Start to mark Running and MIDIClockDriven, got %+v", tr)
	}
}

func TestHandleInputExternalClockAdvancesOnlyWhenMIDIClockDriven(t *testing.T) {
	e, _ := newTestEngine(t)
	e.HandleInput(0, []byte{midi.StatusClock}, 0)
	if e.CurrentTick() != 0 {
		t.Error("expected a Clock byte with no prior Start to be ignored")
	}

	e.HandleInput(0, []byte{midi.StatusStart}, 0)
	e.HandleInput(0, []byte{midi.StatusClock}, 0)
	if got := e.CurrentTick(); got != midi.ClockIncrement(midi.DefaultPPQN) {
		t.Errorf("expected CurrentTick to advance by one clock increment, got %d", got)
	}
}

func TestControlMapSeqToggleBinding(t *testing.T) {
	e, _ := newTestEngine(t)
	p := midi.NewPattern(int64(midi.DefaultPPQN)*4, 4, 4, midi.DefaultPPQN)
	_ = e.SetPattern(0, p)
	e.controlMap.Bind(midi.StatusNoteOn, 36, ActionSeqToggle, 0)

	e.HandleInput(0, []byte{midi.StatusNoteOn, 36, 127}, 0)
	if !p.Playing() {
		t.Error("expected the bound control message to arm pattern 0")
	}
	e.HandleInput(0, []byte{midi.StatusNoteOn, 36, 127}, 0)
	if p.Playing() {
		t.Error("expected a second toggle to disarm pattern 0")
	}
}

func TestControlMapBoundMessageIsNotAlsoRecorded(t *testing.T) {
	e, _ := newTestEngine(t)
	p := midi.NewPattern(int64(midi.DefaultPPQN)*4, 4, 4, midi.DefaultPPQN)
	p.SetRecording(true)
	_ = e.SetPattern(0, p)
	e.controlMap.Bind(midi.StatusNoteOn, 36, ActionSeqToggle, 0)

	e.HandleInput(0, []byte{midi.StatusNoteOn, 36, 127}, 0)

	// The binding fires and the message is consumed by it, so the
	// recording pattern receives nothing.
	if !p.Playing() {
		t.Error("expected the control binding to take effect")
	}
	if len(p.Events.Events) != 0 {
		t.Errorf("expected the bound message not to be recorded, got %d events", len(p.Events.Events))
	}
}

func TestDummyBackendSatisfiesBackendInterface(t *testing.T) {
	var _ bus.Backend = (*bus.DummyBackend)(nil)
}
