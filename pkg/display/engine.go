// Package display implements the Nextion protocol engine: it multiplexes
// outstanding host commands against the display's single ordered reply
// stream, correlates each reply to the command that caused it, routes
// unsolicited event frames to registered callbacks, and layers a blocking
// call style on top of the non-blocking core.
//
// The engine assumes a single logical thread of control: one goroutine
// issues commands and drives the engine. Internal state is still mutex
// protected so a separate goroutine may call Drive in a loop, but callbacks
// always run on whichever goroutine is driving.
package display

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nextion-host/pkg/protocol"
	"nextion-host/pkg/serial"
)

// Transport is the byte stream connecting the engine to the display. Read
// must return promptly when no data is available, either as (0, nil) or as
// serial.ErrTimeout; the engine treats both as an idle tick.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// TouchDispatcher walks an externally owned registry of touch-reactive
// objects. The engine hands it every decoded touch event; it never consumes
// the pending-command queue.
type TouchDispatcher interface {
	DispatchTouch(page, component byte, pressed bool)
}

// Config holds engine tuning. The zero value of any field selects its
// default.
type Config struct {
	// QueueDepth is the pending-command ring capacity (default: 8)
	QueueDepth int

	// ResponseSlots is the response store ring capacity (default: 8)
	ResponseSlots int

	// ResponseBufSize is the per-slot raw frame buffer size (default: 128)
	ResponseBufSize int

	// CommandTimeout bounds waits for command acks (default: 200ms)
	CommandTimeout time.Duration

	// ReturnTimeout bounds waits for value replies (default: 100ms)
	ReturnTimeout time.Duration

	// TransparentTimeout bounds transparent-data-mode waits (default: 400ms)
	TransparentTimeout time.Duration

	// PollInterval is the blocking adapter's yield between drive passes
	// (default: 500us)
	PollInterval time.Duration

	// Clock supplies the current time for expiry checks (default: time.Now)
	Clock func() time.Time

	// Logger receives frame diagnostics (default: disabled)
	Logger *zerolog.Logger
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		QueueDepth:         8,
		ResponseSlots:      8,
		ResponseBufSize:    128,
		CommandTimeout:     200 * time.Millisecond,
		ReturnTimeout:      100 * time.Millisecond,
		TransparentTimeout: 400 * time.Millisecond,
		PollInterval:       500 * time.Microsecond,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.ResponseSlots <= 0 {
		c.ResponseSlots = d.ResponseSlots
	}
	if c.ResponseBufSize <= 0 {
		c.ResponseBufSize = d.ResponseBufSize
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.ReturnTimeout <= 0 {
		c.ReturnTimeout = d.ReturnTimeout
	}
	if c.TransparentTimeout <= 0 {
		c.TransparentTimeout = d.TransparentTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
}

// events holds the optional unsolicited-event callbacks. Registration is
// last-wins; each fires with no queue interaction.
type events struct {
	started         func()
	bufferOverflow  func()
	pageChanged     func(page byte)
	touchCoordinate func(c protocol.Coordinate)
	sleepCoordinate func(c protocol.Coordinate)
	autoSleep       func()
	autoWake        func()
	ready           func()
	upgradeStarted  func()
}

// Stats are cumulative engine counters.
type Stats struct {
	// FramesReceived counts completed frames handed to the dispatcher.
	FramesReceived uint64
	// Overflows counts assembler buffer overflows, each of which drops
	// the partial frame collected so far.
	Overflows uint64
	// CommandsExpired counts pending commands purged past their deadline.
	CommandsExpired uint64
	// RepliesMismatched counts replies whose code did not match the
	// pending command's expectation.
	RepliesMismatched uint64
	// QueueRejects counts commands refused because the pending queue
	// was full.
	QueueRejects uint64
}

// Engine is the protocol engine for one display on one transport. Create
// one Engine per transport; none of its state is shared between instances.
type Engine struct {
	mu      sync.Mutex
	tr      Transport
	cfg     Config
	log     *zerolog.Logger
	asm     *protocol.Assembler
	queue   *commandQueue
	store   *responseStore
	events  events
	touch   TouchDispatcher
	readBuf []byte
	stats   Stats

	// calls collects callbacks decided during a locked dispatch pass;
	// they run after the lock is released so a callback may issue new
	// commands.
	calls []func()
}

// New creates an Engine on the given transport.
func New(tr Transport, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		tr:      tr,
		cfg:     cfg,
		log:     cfg.Logger,
		asm:     protocol.NewAssembler(cfg.ResponseBufSize),
		queue:   newCommandQueue(cfg.QueueDepth),
		store:   newResponseStore(cfg.ResponseSlots, cfg.ResponseBufSize),
		readBuf: make([]byte, 256),
	}
}

// Stats returns a snapshot of the engine's cumulative counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Overflows = uint64(e.asm.Dropped())
	return s
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Pending returns the number of commands awaiting replies.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.len()
}

// Event registration. Passing nil clears a slot. Registration is safe
// while another goroutine drives the engine.

func (e *Engine) OnStarted(fn func()) {
	e.mu.Lock()
	e.events.started = fn
	e.mu.Unlock()
}

func (e *Engine) OnBufferOverflow(fn func()) {
	e.mu.Lock()
	e.events.bufferOverflow = fn
	e.mu.Unlock()
}

func (e *Engine) OnPageChanged(fn func(page byte)) {
	e.mu.Lock()
	e.events.pageChanged = fn
	e.mu.Unlock()
}

func (e *Engine) OnTouchCoordinate(fn func(protocol.Coordinate)) {
	e.mu.Lock()
	e.events.touchCoordinate = fn
	e.mu.Unlock()
}

func (e *Engine) OnSleepTouchCoordinate(fn func(protocol.Coordinate)) {
	e.mu.Lock()
	e.events.sleepCoordinate = fn
	e.mu.Unlock()
}

func (e *Engine) OnAutoSleep(fn func()) {
	e.mu.Lock()
	e.events.autoSleep = fn
	e.mu.Unlock()
}

func (e *Engine) OnAutoWake(fn func()) {
	e.mu.Lock()
	e.events.autoWake = fn
	e.mu.Unlock()
}

func (e *Engine) OnReady(fn func()) {
	e.mu.Lock()
	e.events.ready = fn
	e.mu.Unlock()
}

func (e *Engine) OnUpgradeStarted(fn func()) {
	e.mu.Lock()
	e.events.upgradeStarted = fn
	e.mu.Unlock()
}

// SetTouchDispatcher installs the touch listener registry.
func (e *Engine) SetTouchDispatcher(d TouchDispatcher) {
	e.mu.Lock()
	e.touch = d
	e.mu.Unlock()
}

// SendCommand writes a textual command to the display, appending the frame
// terminator. It does not track a reply; pair it with a Recv* call or use
// the typed command APIs.
func (e *Engine) SendCommand(cmd string) error {
	e.log.Debug().Str("cmd", cmd).Msg("send command")
	_, err := e.tr.Write(protocol.EncodeCommand(cmd))
	return err
}

// SendRaw writes bytes to the display verbatim, without a terminator. Used
// for transparent-data-mode payloads.
func (e *Engine) SendRaw(data []byte) error {
	_, err := e.tr.Write(data)
	return err
}

// SendRawByte writes a single byte to the display.
func (e *Engine) SendRawByte(b byte) error {
	return e.SendRaw([]byte{b})
}

// SetText sends a text-attribute assignment and tracks the expected ack.
// Returns ErrQueueFull if the command was sent but its reply cannot be
// tracked.
func (e *Engine) SetText(field, value string, onSuccess func(), onFailure func(error), timeout time.Duration) error {
	return e.SendWithCode(protocol.FormatSetText(field, value), protocol.RET_CMD_FINISHED_OK, onSuccess, onFailure, timeout)
}

// SetNumber sends a numeric-attribute assignment and tracks the expected
// ack.
func (e *Engine) SetNumber(field string, value int32, onSuccess func(), onFailure func(error), timeout time.Duration) error {
	return e.SendWithCode(protocol.FormatSetNumber(field, value), protocol.RET_CMD_FINISHED_OK, onSuccess, onFailure, timeout)
}

// GetText sends cmd and expects a string reply, delivered to onText. With
// headed false the reply is decoded without the string type byte.
func (e *Engine) GetText(cmd string, headed bool, onText func(string), onFailure func(error), timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.cfg.ReturnTimeout
	}
	if err := e.SendCommand(cmd); err != nil {
		return err
	}
	kind := KindText
	if !headed {
		kind = KindTextHeadless
	}
	return e.track(pendingCommand{
		expect:    protocol.RET_STRING_HEAD,
		kind:      kind,
		onText:    onText,
		onFailure: onFailure,
		expiresAt: e.cfg.Clock().Add(timeout),
	})
}

// GetNumber sends cmd and expects a numeric reply, delivered to onNumber.
func (e *Engine) GetNumber(cmd string, onNumber func(int32), onFailure func(error), timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.cfg.ReturnTimeout
	}
	if err := e.SendCommand(cmd); err != nil {
		return err
	}
	return e.track(pendingCommand{
		expect:    protocol.RET_NUMBER_HEAD,
		kind:      KindNumber,
		onNumber:  onNumber,
		onFailure: onFailure,
		expiresAt: e.cfg.Clock().Add(timeout),
	})
}

// SendWithCode sends cmd and tracks a reply with the given expected leading
// code. Any other code routes to onFailure with the raw byte preserved.
func (e *Engine) SendWithCode(cmd string, code byte, onSuccess func(), onFailure func(error), timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.cfg.CommandTimeout
	}
	if err := e.SendCommand(cmd); err != nil {
		return err
	}
	return e.track(pendingCommand{
		expect:    code,
		kind:      KindAck,
		onSuccess: onSuccess,
		onFailure: onFailure,
		expiresAt: e.cfg.Clock().Add(timeout),
	})
}

func (e *Engine) track(cmd pendingCommand) error {
	e.mu.Lock()
	_, ok := e.queue.enqueue(cmd)
	if !ok {
		e.stats.QueueRejects++
	}
	e.mu.Unlock()
	if !ok {
		e.log.Warn().Msg("pending queue full, reply will not be correlated")
		return ErrQueueFull
	}
	return nil
}

// Drive performs one engine pass: drain available transport bytes through
// the frame assembler, dispatch any completed frames, and purge the expired
// head of the pending queue. The host program must call it repeatedly;
// blocking Recv* calls drive it internally while they wait.
func (e *Engine) Drive() error {
	e.mu.Lock()
	err := e.driveLocked()
	calls := e.takeCallsLocked()
	e.mu.Unlock()

	for _, fn := range calls {
		fn()
	}
	return err
}

func (e *Engine) driveLocked() error {
	n, err := e.tr.Read(e.readBuf)
	if err != nil {
		if errors.Is(err, serial.ErrTimeout) {
			err = nil
			n = 0
		} else if errors.Is(err, io.EOF) || errors.Is(err, serial.ErrClosed) {
			err = ErrClosed
		}
	}
	// A failing Read may still have drained bytes; dispatch them before
	// reporting the error so the final frames of a dying connection are
	// not lost.
	for _, b := range e.readBuf[:n] {
		if frame, ok := e.asm.Feed(b); ok {
			e.stats.FramesReceived++
			e.dispatchLocked(frame)
		}
	}
	if err != nil {
		return err
	}

	now := e.cfg.Clock()
	for {
		cmd, ok := e.queue.purgeExpired(now)
		if !ok {
			break
		}
		e.log.Debug().Msg("pending command expired")
		e.stats.CommandsExpired++
		e.failLocked(cmd, ErrTimeout)
	}
	return nil
}

func (e *Engine) takeCallsLocked() []func() {
	calls := e.calls
	e.calls = nil
	return calls
}

// Reset discards any partial frame and drains the pending queue without
// invoking callbacks. Used before a connect handshake or after a protocol
// desync.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.asm.Reset()
	for !e.queue.empty() {
		e.queue.dequeue()
	}
}
