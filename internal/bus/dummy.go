package bus

import "sync"

// DummyBackend is an in-memory loopback/test double: Send appends to a
// transcript and, if Loopback is set, makes the message immediately
// available to Poll — useful for engine tests and headless operation when
// no real MIDI hardware backend is configured.
type DummyBackend struct {
	name     string
	Loopback bool

	mu     sync.Mutex
	opened bool
	sent   [][]byte
	queue  []Message
	clock  func() int64
}

// NewDummyBackend creates a named in-memory backend. clockFn supplies the
// tick timestamp attached to loopback messages; if nil, timestamps are 0.
func NewDummyBackend(name string, clockFn func() int64) *DummyBackend {
	return &DummyBackend{name: name, clock: clockFn}
}

func (d *DummyBackend) Name() string { return d.name }

func (d *DummyBackend) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	return nil
}

func (d *DummyBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

func (d *DummyBackend) Send(raw []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := append([]byte(nil), raw...)
	d.sent = append(d.sent, cp)
	if d.Loopback {
		ts := int64(0)
		if d.clock != nil {
			ts = d.clock()
		}
		d.queue = append(d.queue, Message{Data: cp, Timestamp: ts})
	}
	return nil
}

func (d *DummyBackend) Poll() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.queue
	d.queue = nil
	return out
}

// Sent returns every message handed to Send so far, for test assertions.
func (d *DummyBackend) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.sent...)
}

// Reset clears the recorded transcript, letting a test arm a scenario (e.g.
// Play()'s Start byte) and then observe only what happens next.
func (d *DummyBackend) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
}

// Inject queues a message as if received from outside, independent of
// Loopback — used by tests to simulate external MIDI input.
func (d *DummyBackend) Inject(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, msg)
}
