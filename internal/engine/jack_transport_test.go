package engine

import (
	"sync"

	"sequencer64/internal/bus"
)

// fakeJackBackend is a bus.Backend that also implements bus.JackTransport,
// standing in for a real JackBackend (which needs a running JACK server) so
// StepOutput's slave/master JACK paths can be exercised deterministically.
type fakeJackBackend struct {
	mu sync.Mutex

	sent [][]byte

	state      bus.TransportState
	frame      uint32
	sampleRate uint32

	locateCalls []uint32
	started     int
	stopped     int
}

func newFakeJackBackend(sampleRate uint32) *fakeJackBackend {
	return &fakeJackBackend{sampleRate: sampleRate, state: bus.TransportStopped}
}

func (f *fakeJackBackend) Name() string { return "fake-jack" }
func (f *fakeJackBackend) Open() error  { return nil }
func (f *fakeJackBackend) Close() error { return nil }

func (f *fakeJackBackend) Send(raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), raw...))
	return nil
}

func (f *fakeJackBackend) Poll() []bus.Message { return nil }

func (f *fakeJackBackend) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeJackBackend) setState(state bus.TransportState, frame uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.frame = frame
}

func (f *fakeJackBackend) TransportState() (bus.TransportState, uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.frame
}

func (f *fakeJackBackend) TransportLocate(frame uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locateCalls = append(f.locateCalls, frame)
}

func (f *fakeJackBackend) TransportStart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeJackBackend) TransportStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeJackBackend) SampleRate() uint32 { return f.sampleRate }

func newTestEngineWithJack(sampleRate uint32) (*Engine, *fakeJackBackend) {
	mb := bus.NewMasterBus(nil)
	f := newFakeJackBackend(sampleRate)
	_ = mb.AddOutput(bus.NewMidiBus(0, f))
	e := New(mb, 192, 120, nil)
	return e, f
}
