// Package bus implements the MidiBus/MasterBus facade over concrete MIDI
// backends (spec.md §4.4) and the JACK/ALSA/PortMidi transports behind it.
package bus

import (
	"fmt"
	"sync"

	"sequencer64/internal/logging"
	"sequencer64/internal/midi"
)

// Message is one incoming raw MIDI message captured by a backend, with the
// wall-clock-derived tick timestamp the engine assigned it on arrival.
type Message struct {
	Data      []byte
	Timestamp int64
}

// Backend is the uniform transport underneath a MidiBus: ALSA, PortMidi,
// JACK, or a Dummy test double. Send/Poll must be safe to call from the
// engine's single input-poll goroutine; they need not be safe for
// concurrent callers beyond that.
type Backend interface {
	Name() string
	Open() error
	Close() error
	Send(raw []byte) error
	// Poll drains and returns any messages received since the last call.
	Poll() []Message
}

// TransportState mirrors jack_transport_state_t's rolling/stopped/starting
// values (the JACK C API, surfaced by github.com/xthexder/go-jack as the
// same enum) — used by Engine when driving or following JACK's shared
// transport (spec.md §4.5/§4.6).
type TransportState int

const (
	TransportStopped TransportState = iota
	TransportRolling
	TransportStarting
)

// JackTransport is implemented by backends that expose JACK's shared
// transport (only JackBackend among the concrete backends). Engine
// type-asserts for it via MasterBus.JackTransport rather than importing
// github.com/xthexder/go-jack directly, keeping the JACK dependency
// confined to this package.
type JackTransport interface {
	// TransportState reports JACK's own transport state and current frame
	// position, queried fresh each scheduler cycle when acting as slave.
	TransportState() (TransportState, uint32)
	// TransportLocate relocates JACK's shared transport position, used
	// when acting as JACK transport master.
	TransportLocate(frame uint32)
	TransportStart()
	TransportStop()
	// SampleRate reports JACK's engine sample rate, needed to convert a
	// transport frame position into engine ticks.
	SampleRate() uint32
}

// ClockMode is a port's MIDI-clock enable state (spec.md §4.4: "each output
// port has a clock_e value of off | pos | mod | disabled").
type ClockMode int

const (
	ClockPos      ClockMode = iota // emit clock, and this port defines song position
	ClockMod                       // emit clock, following another port's position
	ClockOff                       // play notes, but never emit clock to this port
	ClockDisabled                  // skip this port entirely (OS rejected it)
)

// MidiBus is one numbered output/input port, wrapping a concrete Backend
// (spec.md §4.4 "MidiBus wraps one backend port").
type MidiBus struct {
	Index     int
	Name      string
	ClockMode ClockMode
	backend   Backend
	opened    bool
}

// NewMidiBus wraps backend as bus number index, with clock emission enabled
// by default.
func NewMidiBus(index int, backend Backend) *MidiBus {
	return &MidiBus{Index: index, Name: backend.Name(), backend: backend, ClockMode: ClockPos}
}

func (b *MidiBus) open() error {
	if b.opened {
		return nil
	}
	if err := b.backend.Open(); err != nil {
		return fmt.Errorf("bus %d (%s): %w", b.Index, b.Name, err)
	}
	b.opened = true
	return nil
}

func (b *MidiBus) close() error {
	if !b.opened {
		return nil
	}
	b.opened = false
	return b.backend.Close()
}

func (b *MidiBus) send(raw []byte) error {
	if raw == nil {
		return nil
	}
	return b.backend.Send(raw)
}

// MasterBus aggregates every output/input MidiBus and implements
// midi.Emitter so Pattern can dispatch directly to it. It also tracks
// backend hot-unplug/disconnect events (spec.md §7) and forwards them to
// the notifier list.
type MasterBus struct {
	mu        sync.Mutex
	outputs   []*MidiBus
	inputs    []*MidiBus
	log       *logging.Logger
	announce  []func(busIndex int, name string, connected bool)
	clockFunc func() int64
}

// NewMasterBus creates an empty aggregator. log may be nil (falls back to
// logging.NewLogger("bus")).
func NewMasterBus(log *logging.Logger) *MasterBus {
	if log == nil {
		log = logging.NewLogger("bus")
	}
	return &MasterBus{log: log}
}

// AddOutput registers an output bus and opens its backend.
func (m *MasterBus) AddOutput(b *MidiBus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := b.open(); err != nil {
		m.log.Error("failed to open output bus", logging.Fields{"bus": b.Index, "name": b.Name, "err": err})
		return err
	}
	m.outputs = append(m.outputs, b)
	return nil
}

// AddInput registers an input bus and opens its backend.
func (m *MasterBus) AddInput(b *MidiBus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := b.open(); err != nil {
		m.log.Error("failed to open input bus", logging.Fields{"bus": b.Index, "name": b.Name, "err": err})
		return err
	}
	m.inputs = append(m.inputs, b)
	return nil
}

// OnAnnounce registers a callback invoked whenever a backend reports a
// connect/disconnect transition (spec.md §7 "surfaced to the UI via the
// notifier").
func (m *MasterBus) OnAnnounce(fn func(busIndex int, name string, connected bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announce = append(m.announce, fn)
}

func (m *MasterBus) fireAnnounce(busIndex int, name string, connected bool) {
	for _, fn := range m.announce {
		fn(busIndex, name, connected)
	}
}

// Play implements midi.Emitter: encode e as wire bytes and send it out
// busIndex. A send failure is logged (and reported to Sentry) rather than
// panicking the scheduler — a dropped note is recoverable, a crashed
// output thread is not (spec.md §7).
func (m *MasterBus) Play(busIndex int, channel byte, e midi.Event) {
	raw := midi.EncodeWire(e, channel)
	if raw == nil {
		return
	}
	m.mu.Lock()
	var b *MidiBus
	if busIndex >= 0 && busIndex < len(m.outputs) {
		b = m.outputs[busIndex]
	}
	m.mu.Unlock()
	if b == nil {
		return
	}
	if err := b.send(raw); err != nil {
		m.log.Error("send failed", logging.Fields{"bus": busIndex, "err": err})
		m.fireAnnounce(busIndex, b.Name, false)
	}
}

// EmitClock sends one MIDI Clock byte (0xF8) to every output bus whose
// ClockMode is not Off or Disabled (spec.md §4.6 step h, §4.4 per-port
// clock_e semantics).
func (m *MasterBus) EmitClock() {
	m.mu.Lock()
	outputs := append([]*MidiBus(nil), m.outputs...)
	m.mu.Unlock()
	for _, b := range outputs {
		if b.ClockMode == ClockOff || b.ClockMode == ClockDisabled {
			continue
		}
		if err := b.send([]byte{midi.StatusClock}); err != nil {
			m.log.Error("clock send failed", logging.Fields{"bus": b.Index, "err": err})
		}
	}
}

// Start sends MIDI Start (0xFA) to every non-disabled output bus.
func (m *MasterBus) Start() { m.transportByte(midi.StatusStart) }

// Continue sends MIDI Continue (0xFB) to every non-disabled output bus.
func (m *MasterBus) Continue() { m.transportByte(midi.StatusContinue) }

// Stop sends MIDI Stop (0xFC) to every non-disabled output bus.
func (m *MasterBus) Stop() { m.transportByte(midi.StatusStop) }

func (m *MasterBus) transportByte(status byte) {
	m.mu.Lock()
	outputs := append([]*MidiBus(nil), m.outputs...)
	m.mu.Unlock()
	for _, b := range outputs {
		if b.ClockMode == ClockDisabled {
			continue
		}
		_ = b.send([]byte{status})
	}
}

// AllSoundOff sends Control Change 120 (All Sound Off), value 0, on every
// channel 0-15 to every non-disabled output bus (spec.md §8 scenario S4).
func (m *MasterBus) AllSoundOff() {
	m.mu.Lock()
	outputs := append([]*MidiBus(nil), m.outputs...)
	m.mu.Unlock()
	for _, b := range outputs {
		if b.ClockMode == ClockDisabled {
			continue
		}
		for ch := byte(0); ch < 16; ch++ {
			_ = b.send([]byte{midi.StatusControlChange | ch, 120, 0})
		}
	}
}

// PollForMIDI drains every input bus and returns all messages received
// since the last call, tagged with the originating bus index (spec.md §4.4
// "poll_for_midi"/"get_midi_event", renamed to idiomatic Go).
func (m *MasterBus) PollForMIDI() []InputMessage {
	m.mu.Lock()
	inputs := append([]*MidiBus(nil), m.inputs...)
	m.mu.Unlock()

	var out []InputMessage
	for _, in := range inputs {
		for _, msg := range in.backend.Poll() {
			out = append(out, InputMessage{Bus: in.Index, Data: msg.Data, Timestamp: msg.Timestamp})
		}
	}
	return out
}

// InputMessage is one message returned by PollForMIDI, tagged with its
// source bus.
type InputMessage struct {
	Bus       int
	Data      []byte
	Timestamp int64
}

// CloseAll closes every registered backend; called on shutdown.
func (m *MasterBus) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.outputs {
		_ = b.close()
	}
	for _, b := range m.inputs {
		_ = b.close()
	}
}

// OutputCount reports how many output buses are registered.
func (m *MasterBus) OutputCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outputs)
}

// InputCount reports how many input buses are registered.
func (m *MasterBus) InputCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// JackTransport returns the first output backend that implements
// JackTransport (i.e. is a JackBackend), or nil if none is registered —
// used by Engine to drive or follow JACK's shared transport (spec.md
// §4.5/§4.6). Non-JACK setups (ALSA, PortMidi, dummy) simply have no such
// backend, in which case Engine falls back to its own wall-clock scheduler.
func (m *MasterBus) JackTransport() JackTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.outputs {
		if jt, ok := b.backend.(JackTransport); ok {
			return jt
		}
	}
	return nil
}
