package widget

import (
	"bytes"
	"sync"
	"testing"

	"nextion-host/pkg/display"
	"nextion-host/pkg/protocol"
)

type loopTransport struct {
	mu  sync.Mutex
	in  bytes.Buffer
	out bytes.Buffer
}

func (t *loopTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.in.Len() == 0 {
		return 0, nil
	}
	return t.in.Read(p)
}

func (t *loopTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Write(p)
}

func (t *loopTransport) reply(frame ...byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.in.Write(frame)
	t.in.Write(protocol.Terminator[:])
}

func (t *loopTransport) sent() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.out.Bytes()...)
}

func newTestWidget(t *testing.T) (*Widget, *loopTransport) {
	t.Helper()
	tr := &loopTransport{}
	eng := display.New(tr, display.Config{})
	return New(eng, 0, 2, "t0"), tr
}

func TestFullName(t *testing.T) {
	eng := display.New(&loopTransport{}, display.Config{})
	local := New(eng, 0, 1, "b0")
	if got := local.FullName(); got != "b0" {
		t.Errorf("FullName = %q, want %q", got, "b0")
	}
	global := NewOnPage(eng, 1, 3, "settings", "sw0")
	if got := global.FullName(); got != "settings.sw0" {
		t.Errorf("FullName = %q, want %q", got, "settings.sw0")
	}
}

func TestSetText(t *testing.T) {
	w, tr := newTestWidget(t)
	tr.reply(protocol.RET_CMD_FINISHED_OK)
	if err := w.SetText("ready"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	want := append([]byte(`t0.txt="ready"`), protocol.Terminator[:]...)
	if got := tr.sent(); !bytes.Equal(got, want) {
		t.Errorf("sent = %q, want %q", got, want)
	}
}

func TestText(t *testing.T) {
	w, tr := newTestWidget(t)
	tr.reply(protocol.RET_STRING_HEAD, 'o', 'k')
	s, err := w.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if s != "ok" {
		t.Errorf("Text = %q, want %q", s, "ok")
	}
	want := append([]byte("get t0.txt"), protocol.Terminator[:]...)
	if got := tr.sent(); !bytes.Equal(got, want) {
		t.Errorf("sent = %q, want %q", got, want)
	}
}

func TestValueRoundTrip(t *testing.T) {
	w, tr := newTestWidget(t)
	tr.reply(protocol.RET_CMD_FINISHED_OK)
	if err := w.SetValue(-7); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if !bytes.Contains(tr.sent(), []byte("t0.val=-7")) {
		t.Errorf("sent = %q", tr.sent())
	}

	tr.reply(protocol.RET_NUMBER_HEAD, 0x2A, 0x00, 0x00, 0x00)
	v, err := w.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != 42 {
		t.Errorf("Value = %d, want 42", v)
	}
}

func TestVisibilityAndRefresh(t *testing.T) {
	w, tr := newTestWidget(t)
	tr.reply(protocol.RET_CMD_FINISHED_OK)
	if err := w.SetVisible(false); err != nil {
		t.Fatalf("SetVisible: %v", err)
	}
	if !bytes.Contains(tr.sent(), []byte("vis t0,0")) {
		t.Errorf("sent = %q", tr.sent())
	}

	tr.reply(protocol.RET_CMD_FINISHED_OK)
	if err := w.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !bytes.Contains(tr.sent(), []byte("ref t0")) {
		t.Errorf("sent = %q", tr.sent())
	}
}

func TestDimensions(t *testing.T) {
	w, tr := newTestWidget(t)
	tr.reply(protocol.RET_NUMBER_HEAD, 0x40, 0x01, 0x00, 0x00) // 320
	width, err := w.Width()
	if err != nil {
		t.Fatalf("Width: %v", err)
	}
	if width != 320 {
		t.Errorf("Width = %d, want 320", width)
	}
	if !bytes.Contains(tr.sent(), []byte("get t0.w")) {
		t.Errorf("sent = %q", tr.sent())
	}
}

func TestRegistryDispatch(t *testing.T) {
	eng := display.New(&loopTransport{}, display.Config{})
	a := New(eng, 0, 1, "b0")
	b := New(eng, 0, 2, "b1")
	c := New(eng, 1, 1, "b2")

	var pushes, pops []string
	for _, w := range []*Widget{a, b, c} {
		w := w
		w.OnPush(func() { pushes = append(pushes, w.FullName()) })
		w.OnPop(func() { pops = append(pops, w.FullName()) })
	}

	r := NewRegistry()
	r.Add(a, b, c)

	r.DispatchTouch(0, 1, true)
	r.DispatchTouch(0, 1, false)
	r.DispatchTouch(1, 1, true)
	r.DispatchTouch(9, 9, true) // no match

	if len(pushes) != 2 || pushes[0] != "b0" || pushes[1] != "b2" {
		t.Errorf("pushes = %v", pushes)
	}
	if len(pops) != 1 || pops[0] != "b0" {
		t.Errorf("pops = %v", pops)
	}
}

func TestRegistryOnEngine(t *testing.T) {
	tr := &loopTransport{}
	eng := display.New(tr, display.Config{})
	w := New(eng, 2, 5, "b0")
	pushed := false
	w.OnPush(func() { pushed = true })

	r := NewRegistry()
	r.Add(w)
	eng.SetTouchDispatcher(r)

	tr.reply(protocol.RET_EVENT_TOUCH_HEAD, 0x02, 0x05, 0x01)
	if err := eng.Drive(); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !pushed {
		t.Error("touch event did not reach the widget handler")
	}
}
