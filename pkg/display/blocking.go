package display

import (
	"strings"
	"time"

	"nextion-host/pkg/protocol"
)

// Blocking adapter. Each Recv* call claims a response slot, enqueues a
// pending command with no callbacks, then drives the engine until its queue
// position has been consumed or the deadline passes, and finally validates
// the stored raw frame against the expected reply shape.
//
// Known hazard, kept from the source design: if an event callback fired
// during one blocking call's wait loop issues a second blocking call, both
// calls share the engine's queue and response ring, and slot reuse after
// ResponseSlots further claims can hand the inner call stale bytes. Issue
// blocking calls from the driving goroutine only, not from callbacks.

// RecvNumber waits for a numeric reply to a previously sent command.
// A zero timeout selects Config.ReturnTimeout.
func (e *Engine) RecvNumber(timeout time.Duration) (int32, error) {
	if timeout <= 0 {
		timeout = e.cfg.ReturnTimeout
	}
	slot, pos, err := e.prepBlocking(protocol.RET_NUMBER_HEAD, KindNumber, timeout)
	if err != nil {
		return 0, err
	}
	if err := e.waitPassed(pos, timeout); err != nil {
		return 0, err
	}
	frame := slot.bytes()
	if len(frame) == 0 {
		return 0, ErrTimeout
	}
	value, perr := protocol.ParseNumber(frame)
	if perr != nil {
		return 0, replyError(frame, protocol.RET_NUMBER_HEAD)
	}
	return value, nil
}

// RecvText waits for a string reply to a previously sent command. With
// headed false a bare text frame with no type byte is accepted, as in the
// connect handshake. A zero timeout selects Config.ReturnTimeout.
func (e *Engine) RecvText(timeout time.Duration, headed bool) (string, error) {
	if timeout <= 0 {
		timeout = e.cfg.ReturnTimeout
	}
	kind := KindText
	if !headed {
		kind = KindTextHeadless
	}
	slot, pos, err := e.prepBlocking(protocol.RET_STRING_HEAD, kind, timeout)
	if err != nil {
		return "", err
	}
	if err := e.waitPassed(pos, timeout); err != nil {
		return "", err
	}
	frame := slot.bytes()
	if len(frame) == 0 {
		return "", ErrTimeout
	}
	text, perr := protocol.ParseString(frame, headed)
	if perr != nil {
		return "", replyError(frame, protocol.RET_STRING_HEAD)
	}
	return text, nil
}

// RecvCommand waits for a single-byte reply carrying the given code.
// A zero timeout selects Config.CommandTimeout.
func (e *Engine) RecvCommand(code byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.cfg.CommandTimeout
	}
	slot, pos, err := e.prepBlocking(code, KindAck, timeout)
	if err != nil {
		return err
	}
	if err := e.waitPassed(pos, timeout); err != nil {
		return err
	}
	frame := slot.bytes()
	if len(frame) == 0 {
		return ErrTimeout
	}
	if len(frame) != protocol.AckFrameLen || frame[0] != code {
		return replyError(frame, code)
	}
	return nil
}

// RecvAck waits for the command-finished-OK reply.
func (e *Engine) RecvAck(timeout time.Duration) error {
	return e.RecvCommand(protocol.RET_CMD_FINISHED_OK, timeout)
}

// TransparentModeReady waits for the display to signal it is ready to
// receive transparent data. A zero timeout selects Config.TransparentTimeout.
func (e *Engine) TransparentModeReady(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.cfg.TransparentTimeout
	}
	return e.RecvCommand(protocol.RET_TRANSPARENT_READY, timeout)
}

// TransparentModeFinished waits for the display to signal transparent data
// mode has ended.
func (e *Engine) TransparentModeFinished(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.cfg.TransparentTimeout
	}
	return e.RecvCommand(protocol.RET_TRANSPARENT_FINISHED, timeout)
}

// prepBlocking claims a response slot and enqueues the tracking entry
// before any waiting starts. ErrQueueFull here means nothing was tracked.
func (e *Engine) prepBlocking(code byte, kind ResponseKind, timeout time.Duration) (*responseSlot, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	slot := e.store.claim()
	pos, ok := e.queue.enqueue(pendingCommand{
		expect:    code,
		kind:      kind,
		expiresAt: e.cfg.Clock().Add(timeout),
		slot:      slot,
	})
	if !ok {
		e.stats.QueueRejects++
		return nil, 0, ErrQueueFull
	}
	return slot, pos, nil
}

// waitPassed drives the engine until the queue's consumption cursor has
// advanced past pos, yielding between passes. The deadline here mirrors the
// pending command's own expiry, so an unanswered command is purged and
// reported as ErrTimeout by the slot-validation step.
func (e *Engine) waitPassed(pos uint64, timeout time.Duration) error {
	deadline := e.cfg.Clock().Add(timeout)
	for {
		if err := e.Drive(); err != nil {
			return err
		}
		e.mu.Lock()
		done := e.queue.passed(pos)
		e.mu.Unlock()
		if done {
			return nil
		}
		if e.cfg.Clock().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(e.cfg.PollInterval)
	}
}

// replyError classifies a stored frame that failed shape validation.
func replyError(frame []byte, want byte) error {
	if len(frame) > 0 && frame[0] != want {
		return &CodeError{Code: frame[0]}
	}
	code := want
	if len(frame) > 0 {
		code = frame[0]
	}
	return &MalformedError{Code: code, Len: len(frame)}
}

// Connect performs the serial handshake: flush state, send an empty
// command, then "connect", and expect a headerless reply containing
// "comok" with the device details. Returns the raw reply.
func (e *Engine) Connect() (string, error) {
	e.Reset()
	if err := e.SendCommand(""); err != nil {
		return "", err
	}
	if err := e.SendCommand("connect"); err != nil {
		return "", err
	}
	resp, err := e.RecvText(e.cfg.ReturnTimeout, false)
	if err != nil {
		return "", err
	}
	if !strings.Contains(resp, "comok") {
		return resp, ErrHandshake
	}
	e.log.Info().Str("details", resp).Msg("display connected")
	return resp, nil
}

// Init puts a freshly connected display into the driver's expected mode:
// bkcmd=3 so every command is acknowledged, then page 0.
func (e *Engine) Init() error {
	if err := e.SendCommand("bkcmd=3"); err != nil {
		return err
	}
	if err := e.RecvAck(0); err != nil {
		return err
	}
	if err := e.SendCommand("page 0"); err != nil {
		return err
	}
	return e.RecvAck(0)
}
