package engine

import (
	"testing"

	"sequencer64/internal/bus"
	"sequencer64/internal/midi"
)

func TestStepOutputJackSlaveFollowsTransportPosition(t *testing.T) {
	e, f := newTestEngineWithJack(48000)
	e.SetJackMode(JackSlave)
	p := midi.NewPattern(int64(192)*8, 4, 4, 192)
	p.AddNote(0, 96, 60, 100, true)
	p.SetPlaying(true)
	if err := e.SetPattern(0, p); err != nil {
		t.Fatalf("SetPattern: %v", err)
	}
	e.Play()

	// One quarter note (192 ticks) at 120 BPM is 0.5s; at 48kHz that's
	// 24000 frames.
	f.setState(bus.TransportRolling, 24000)
	e.StepOutput(0) // deltaUs is ignored in slave mode

	if got := e.CurrentTick(); got != 192 {
		t.Errorf("expected CurrentTick 192 after following JACK to frame 24000, got %d", got)
	}
}

func TestStepOutputJackSlaveSuppressesEmissionWhileStarting(t *testing.T) {
	e, f := newTestEngineWithJack(48000)
	e.SetJackMode(JackSlave)
	e.Play()

	f.setState(bus.TransportStarting, 0)
	e.StepOutput(0)

	if e.CurrentTick() != 0 {
		t.Errorf("expected CurrentTick to stay 0 while Starting, got %d", e.CurrentTick())
	}
}

func TestStepOutputJackSlaveEmitsAllSoundOffOnStopFallingEdge(t *testing.T) {
	e, f := newTestEngineWithJack(48000)
	e.SetJackMode(JackSlave)
	e.Play()

	f.setState(bus.TransportRolling, 0)
	e.StepOutput(0)

	f.setState(bus.TransportStopped, 0)
	e.StepOutput(0)

	foundAllSoundOff := false
	for _, msg := range f.Sent() {
		if len(msg) == 3 && msg[1] == 120 {
			foundAllSoundOff = true
		}
	}
	if !foundAllSoundOff {
		t.Error("expected an All Sound Off (CC 120) on the rolling-to-stopped falling edge")
	}
	if e.IsRunning() {
		t.Error("expected Running to be false after JACK reports Stopped")
	}
}

func TestStepOutputJackSlaveBackwardRelocationDoesNotReplay(t *testing.T) {
	e, f := newTestEngineWithJack(48000)
	e.SetJackMode(JackSlave)
	p := midi.NewPattern(int64(192)*8, 4, 4, 192)
	p.AddNote(0, 96, 60, 100, true)
	p.SetPlaying(true)
	_ = e.SetPattern(0, p)
	e.Play()

	f.setState(bus.TransportRolling, 48000) // one second in, 384 ticks
	e.StepOutput(0)
	if got := e.CurrentTick(); got != 384 {
		t.Fatalf("expected CurrentTick 384, got %d", got)
	}

	f.setState(bus.TransportRolling, 0) // external rewind to the start
	e.StepOutput(0)
	if got := e.CurrentTick(); got != 0 {
		t.Errorf("expected CurrentTick to follow the rewind to 0, got %d", got)
	}
}

func TestPlayAsJackMasterStartsJackTransport(t *testing.T) {
	e, f := newTestEngineWithJack(48000)
	e.SetJackMode(JackMaster)
	e.Play()
	if f.started != 1 {
		t.Errorf("expected JACK TransportStart to be called once, got %d", f.started)
	}
}

func TestStopAsJackMasterStopsAndLocatesJackTransport(t *testing.T) {
	e, f := newTestEngineWithJack(48000)
	e.SetJackMode(JackMaster)
	e.Play()
	e.Stop()
	if f.stopped != 1 {
		t.Errorf("expected JACK TransportStop to be called once, got %d", f.stopped)
	}
	if len(f.locateCalls) != 1 || f.locateCalls[0] != 0 {
		t.Errorf("expected a single TransportLocate(0) call, got %v", f.locateCalls)
	}
}
