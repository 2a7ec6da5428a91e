package bus

import (
	"fmt"
	"sync"

	"github.com/rakyll/portmidi"
)

// PortMidiBackend wraps one PortMidi input or output stream (spec.md §6's
// PortMidi backend). Grounded on
// other_examples/...lucianthorr-simplesynth__main.go's
// portmidi.Initialize/CountDevices/NewInputStream/Info usage, and
// original_source/seq_portmidi/src/midibus.cpp.
type PortMidiBackend struct {
	name   string
	device portmidi.DeviceID

	mu      sync.Mutex
	in      *portmidi.Stream
	out     *portmidi.Stream
	clockFn func() int64
}

// PortMidiInitialize must be called once before opening any PortMidi
// backend; PortMidiTerminate releases the library on shutdown. Wrapping
// these keeps the portmidi import confined to this file.
func PortMidiInitialize() error { return portmidi.Initialize() }
func PortMidiTerminate() error  { return portmidi.Terminate() }

// ListPortMidiOutputs returns the DeviceInfo (name, interface, availability
// flags) of every output-capable PortMidi device.
func ListPortMidiOutputs() []portmidi.DeviceInfo {
	var out []portmidi.DeviceInfo
	for i := 0; i < portmidi.CountDevices(); i++ {
		info := portmidi.Info(portmidi.DeviceID(i))
		if info != nil && info.IsOutputAvailable {
			out = append(out, *info)
		}
	}
	return out
}

// ListPortMidiInputs returns the DeviceInfo (name, interface, availability
// flags) of every input-capable PortMidi device.
func ListPortMidiInputs() []portmidi.DeviceInfo {
	var out []portmidi.DeviceInfo
	for i := 0; i < portmidi.CountDevices(); i++ {
		info := portmidi.Info(portmidi.DeviceID(i))
		if info != nil && info.IsInputAvailable {
			out = append(out, *info)
		}
	}
	return out
}

// NewPortMidiOutput wraps the given output-capable device ID.
func NewPortMidiOutput(device portmidi.DeviceID) (*PortMidiBackend, error) {
	info := portmidi.Info(device)
	if info == nil || !info.IsOutputAvailable {
		return nil, fmt.Errorf("bus: PortMidi device %d is not an output", device)
	}
	return &PortMidiBackend{name: info.Name, device: device}, nil
}

// NewPortMidiInput wraps the given input-capable device ID. clockFn
// supplies the tick timestamp assigned to incoming messages.
func NewPortMidiInput(device portmidi.DeviceID, clockFn func() int64) (*PortMidiBackend, error) {
	info := portmidi.Info(device)
	if info == nil || !info.IsInputAvailable {
		return nil, fmt.Errorf("bus: PortMidi device %d is not an input", device)
	}
	return &PortMidiBackend{name: info.Name, device: device, clockFn: clockFn}, nil
}

func (p *PortMidiBackend) Name() string { return p.name }

func (p *PortMidiBackend) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := portmidi.Info(p.device)
	if info == nil {
		return fmt.Errorf("bus: PortMidi device %d vanished", p.device)
	}
	if info.IsOutputAvailable {
		out, err := portmidi.NewOutputStream(p.device, 64, 0)
		if err != nil {
			return fmt.Errorf("bus: opening PortMidi output %q: %w", p.name, err)
		}
		p.out = out
	}
	if info.IsInputAvailable {
		in, err := portmidi.NewInputStream(p.device, 64)
		if err != nil {
			return fmt.Errorf("bus: opening PortMidi input %q: %w", p.name, err)
		}
		p.in = in
	}
	return nil
}

func (p *PortMidiBackend) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.in != nil {
		p.in.Close()
		p.in = nil
	}
	if p.out != nil {
		p.out.Close()
		p.out = nil
	}
	return nil
}

func (p *PortMidiBackend) Send(raw []byte) error {
	p.mu.Lock()
	out := p.out
	p.mu.Unlock()
	if out == nil {
		return fmt.Errorf("bus: PortMidi backend %q has no output stream", p.name)
	}
	status, d0, d1 := wireToStatusData(raw)
	return out.WriteShort(int64(status), int64(d0), int64(d1))
}

// wireToStatusData splits up to 3 raw MIDI bytes into PortMidi's
// status/data1/data2 triple, zero-padding short messages.
func wireToStatusData(raw []byte) (status, d0, d1 byte) {
	if len(raw) > 0 {
		status = raw[0]
	}
	if len(raw) > 1 {
		d0 = raw[1]
	}
	if len(raw) > 2 {
		d1 = raw[2]
	}
	return
}

// Poll drains any events PortMidi has buffered on the input stream since
// the last call. Grounded on the poll-then-Read pattern in
// other_examples/...lucianthorr-simplesynth__main.go's makeMidiHandler.
func (p *PortMidiBackend) Poll() []Message {
	p.mu.Lock()
	in := p.in
	p.mu.Unlock()
	if in == nil {
		return nil
	}
	ready, err := in.Poll()
	if err != nil || !ready {
		return nil
	}
	events, err := in.Read(1024)
	if err != nil {
		return nil
	}
	out := make([]Message, 0, len(events))
	for _, e := range events {
		ts := int64(e.Timestamp)
		if p.clockFn != nil {
			ts = p.clockFn()
		}
		out = append(out, Message{
			Data:      []byte{byte(e.Status), byte(e.Data1), byte(e.Data2)},
			Timestamp: ts,
		})
	}
	return out
}
