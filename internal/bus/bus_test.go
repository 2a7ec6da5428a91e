package bus

import (
	"errors"
	"testing"

	"sequencer64/internal/midi"
)

func TestMasterBusPlayEncodesAndSends(t *testing.T) {
	m := NewMasterBus(nil)
	d := NewDummyBackend("out0", nil)
	if err := m.AddOutput(NewMidiBus(0, d)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Play(0, 2, midi.NewEvent(0, midi.StatusNoteOn, midi.NullChannel, 60, 100))

	sent := d.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message sent, got %d", len(sent))
	}
	want := []byte{midi.StatusNoteOn | 2, 60, 100}
	if string(sent[0]) != string(want) {
		t.Errorf("got %v, want %v", sent[0], want)
	}
}

func TestMasterBusPlayIgnoresOutOfRangeBus(t *testing.T) {
	m := NewMasterBus(nil)
	d := NewDummyBackend("out0", nil)
	_ = m.AddOutput(NewMidiBus(0, d))

	m.Play(5, 0, midi.NewEvent(0, midi.StatusNoteOn, 0, 60, 100))

	if len(d.Sent()) != 0 {
		t.Error("expected no message sent for an out-of-range bus index")
	}
}

func TestMasterBusPollForMIDIAggregatesAcrossBuses(t *testing.T) {
	m := NewMasterBus(nil)
	in0 := NewDummyBackend("in0", nil)
	in1 := NewDummyBackend("in1", nil)
	_ = m.AddInput(NewMidiBus(0, in0))
	_ = m.AddInput(NewMidiBus(1, in1))

	in0.Inject(Message{Data: []byte{0x90, 60, 100}, Timestamp: 10})
	in1.Inject(Message{Data: []byte{0x80, 60, 0}, Timestamp: 20})

	msgs := m.PollForMIDI()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	byBus := map[int]bool{}
	for _, msg := range msgs {
		byBus[msg.Bus] = true
	}
	if !byBus[0] || !byBus[1] {
		t.Errorf("expected messages tagged with their source bus, got %+v", msgs)
	}
}

type failingBackend struct{ *DummyBackend }

func (f failingBackend) Send(raw []byte) error { return errors.New("backend gone") }

func TestMasterBusPlayFiresAnnounceOnSendFailure(t *testing.T) {
	m := NewMasterBus(nil)
	d := failingBackend{NewDummyBackend("flaky", nil)}
	_ = m.AddOutput(NewMidiBus(0, d))

	var fired bool
	m.OnAnnounce(func(busIndex int, name string, connected bool) {
		fired = true
		if connected {
			t.Error("expected a disconnect announcement")
		}
	})

	m.Play(0, 0, midi.NewEvent(0, midi.StatusNoteOn, 0, 60, 100))
	if !fired {
		t.Error("expected the announce callback to fire after a send failure")
	}
}

func TestDummyBackendLoopback(t *testing.T) {
	d := NewDummyBackend("loop", func() int64 { return 42 })
	d.Loopback = true
	if err := d.Send([]byte{0x90, 1, 2}); err != nil {
		t.Fatal(err)
	}
	msgs := d.Poll()
	if len(msgs) != 1 || msgs[0].Timestamp != 42 {
		t.Errorf("expected 1 looped-back message at tick 42, got %+v", msgs)
	}
	if len(d.Poll()) != 0 {
		t.Error("second Poll should be empty")
	}
}
