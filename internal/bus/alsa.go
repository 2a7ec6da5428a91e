package bus

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// AlsaBackend wraps one rtmidi (ALSA sequencer, on Linux) input or output
// port via gitlab.com/gomidi/midi/v2/drivers. Grounded on
// other_examples/...odaacabeef-midi-cable__fwd.go's drivers.Ins/drivers.Outs
// + in.Listen/out.Send usage, and
// original_source/seq_alsamidi/src/mastermidibus.cpp's one-port-per-client
// model.
type AlsaBackend struct {
	portName string

	mu      sync.Mutex
	in      drivers.In
	out     drivers.Out
	stopFn  func()
	queue   []Message
	clockFn func() int64
}

// NewAlsaOutput finds and wraps the named ALSA output port.
func NewAlsaOutput(portName string) (*AlsaBackend, error) {
	outs, err := drivers.Outs()
	if err != nil {
		return nil, fmt.Errorf("bus: listing ALSA outputs: %w", err)
	}
	for _, o := range outs {
		if o.String() == portName {
			return &AlsaBackend{portName: portName, out: o}, nil
		}
	}
	return nil, fmt.Errorf("bus: ALSA output port %q not found", portName)
}

// NewAlsaInput finds and wraps the named ALSA input port. clockFn supplies
// the tick timestamp assigned to incoming messages.
func NewAlsaInput(portName string, clockFn func() int64) (*AlsaBackend, error) {
	ins, err := drivers.Ins()
	if err != nil {
		return nil, fmt.Errorf("bus: listing ALSA inputs: %w", err)
	}
	for _, in := range ins {
		if in.String() == portName {
			return &AlsaBackend{portName: portName, in: in, clockFn: clockFn}, nil
		}
	}
	return nil, fmt.Errorf("bus: ALSA input port %q not found", portName)
}

func (a *AlsaBackend) Name() string { return a.portName }

func (a *AlsaBackend) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.out != nil {
		if err := a.out.Open(); err != nil {
			return fmt.Errorf("bus: opening ALSA output %q: %w", a.portName, err)
		}
	}
	if a.in != nil {
		if err := a.in.Open(); err != nil {
			return fmt.Errorf("bus: opening ALSA input %q: %w", a.portName, err)
		}
		stopFn, err := a.in.Listen(a.onMessage, drivers.ListenConfig{})
		if err != nil {
			return fmt.Errorf("bus: listening on ALSA input %q: %w", a.portName, err)
		}
		a.stopFn = stopFn
	}
	return nil
}

func (a *AlsaBackend) onMessage(msg []byte, timestampms int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts := int64(timestampms)
	if a.clockFn != nil {
		ts = a.clockFn()
	}
	a.queue = append(a.queue, Message{Data: append([]byte(nil), msg...), Timestamp: ts})
}

func (a *AlsaBackend) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopFn != nil {
		a.stopFn()
		a.stopFn = nil
	}
	if a.out != nil {
		a.out.Close()
	}
	if a.in != nil {
		a.in.Close()
	}
	return nil
}

func (a *AlsaBackend) Send(raw []byte) error {
	if a.out == nil {
		return fmt.Errorf("bus: ALSA backend %q has no output port", a.portName)
	}
	return a.out.Send(raw)
}

func (a *AlsaBackend) Poll() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.queue
	a.queue = nil
	return out
}
