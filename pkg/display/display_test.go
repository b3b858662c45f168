package display

import (
	"bytes"
	"sync"
	"time"

	"nextion-host/pkg/protocol"
)

// fakeTransport is an in-memory duplex byte stream. Read returns (0, nil)
// when no device bytes are queued, matching the idle-tick contract.
type fakeTransport struct {
	mu  sync.Mutex
	in  bytes.Buffer // device -> host
	out bytes.Buffer // host -> device
	err error
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return 0, t.err
	}
	if t.in.Len() == 0 {
		return 0, nil
	}
	return t.in.Read(p)
}

func (t *fakeTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Write(p)
}

// inject queues a device frame, appending the terminator.
func (t *fakeTransport) inject(frame ...byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.in.Write(frame)
	t.in.Write(protocol.Terminator[:])
}

// injectRaw queues device bytes verbatim.
func (t *fakeTransport) injectRaw(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.in.Write(data)
}

// sent returns everything the host wrote so far.
func (t *fakeTransport) sent() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.out.Bytes()...)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// touchRecorder records dispatched touch events.
type touchRecorder struct {
	events []protocol.TouchEvent
}

func (r *touchRecorder) DispatchTouch(page, component byte, pressed bool) {
	r.events = append(r.events, protocol.TouchEvent{Page: page, Component: component, Pressed: pressed})
}

func newTestEngine(cfg Config) (*Engine, *fakeTransport) {
	tr := &fakeTransport{}
	return New(tr, cfg), tr
}
