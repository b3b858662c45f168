package display

import (
	"errors"

	"nextion-host/pkg/protocol"
)

// dispatchLocked routes one completed frame. Side effects are strictly at
// most one callback decision and at most one response-slot write per frame.
// Callbacks are queued on e.calls and run by Drive after the lock drops.
func (e *Engine) dispatchLocked(frame []byte) {
	if len(frame) == 0 {
		return
	}
	code := frame[0]
	e.log.Debug().Hex("frame", frame).Msg("frame received")

	switch code {
	case protocol.RET_EVENT_STARTUP:
		// 0x00 doubles as the power-up announcement and the
		// invalid-instruction error; length disambiguates.
		if protocol.IsStartup(frame) {
			e.fireLocked(e.events.started)
			return
		}
		if len(frame) == 1 && !e.queue.empty() {
			cmd := e.queue.dequeue()
			if cmd.slot != nil {
				cmd.slot.store(frame)
			}
			e.failLocked(cmd, &CodeError{Code: code})
		}

	case protocol.RET_CMD_FINISHED_OK:
		if e.queue.empty() {
			return
		}
		cmd := e.queue.dequeue()
		if code != cmd.expect {
			e.failLocked(cmd, &CodeError{Code: code})
		} else {
			e.succeedLocked(cmd)
		}
		// The raw ack is stored either way so a blocking caller can
		// inspect what actually arrived.
		if cmd.slot != nil {
			cmd.slot.store(frame)
		}

	case protocol.RET_SERIAL_BUFFER_OVERFLOW:
		// The display dropped data on its side. Emitted spontaneously,
		// so it answers no pending command.
		e.fireLocked(e.events.bufferOverflow)

	case protocol.RET_EVENT_TOUCH_HEAD:
		ev, err := protocol.ParseTouchEvent(frame)
		if err != nil {
			e.log.Warn().Hex("frame", frame).Msg("short touch event frame")
			return
		}
		if d := e.touch; d != nil {
			e.calls = append(e.calls, func() {
				d.DispatchTouch(ev.Page, ev.Component, ev.Pressed)
			})
		}

	case protocol.RET_CURRENT_PAGE_ID_HEAD:
		page, err := protocol.ParsePageID(frame)
		if err != nil {
			return
		}
		if fn := e.events.pageChanged; fn != nil {
			e.calls = append(e.calls, func() { fn(page) })
		}

	case protocol.RET_STRING_HEAD:
		if e.queue.empty() {
			return
		}
		cmd := e.queue.dequeue()
		if cmd.slot != nil {
			cmd.slot.store(frame)
		}
		if code != cmd.expect {
			e.failLocked(cmd, &CodeError{Code: code})
			return
		}
		if fn := cmd.onText; fn != nil {
			text := string(frame[1:])
			e.calls = append(e.calls, func() { fn(text) })
		}

	case protocol.RET_NUMBER_HEAD:
		if e.queue.empty() {
			return
		}
		cmd := e.queue.dequeue()
		if cmd.slot != nil {
			cmd.slot.store(frame)
		}
		if code != cmd.expect {
			e.failLocked(cmd, &CodeError{Code: code})
			return
		}
		value, err := protocol.ParseNumber(frame)
		if err != nil {
			e.failLocked(cmd, &MalformedError{Code: code, Len: len(frame)})
			return
		}
		if fn := cmd.onNumber; fn != nil {
			e.calls = append(e.calls, func() { fn(value) })
		}

	case protocol.RET_EVENT_POSITION_HEAD, protocol.RET_EVENT_SLEEP_POSITION:
		c, err := protocol.ParseCoordinate(frame)
		if err != nil {
			e.log.Warn().Hex("frame", frame).Msg("short coordinate frame")
			return
		}
		fn := e.events.touchCoordinate
		if code == protocol.RET_EVENT_SLEEP_POSITION {
			fn = e.events.sleepCoordinate
		}
		if fn != nil {
			e.calls = append(e.calls, func() { fn(c) })
		}

	case protocol.RET_AUTOMATIC_SLEEP:
		e.fireLocked(e.events.autoSleep)

	case protocol.RET_AUTOMATIC_WAKE_UP:
		e.fireLocked(e.events.autoWake)

	case protocol.RET_EVENT_READY:
		e.fireLocked(e.events.ready)

	case protocol.RET_START_SD_UPGRADE:
		e.fireLocked(e.events.upgradeStarted)

	default:
		e.dispatchOtherLocked(frame)
	}
}

// dispatchOtherLocked handles frames with no recognized type code: the
// headerless string reply the handshake uses, acks for commands registered
// with device-specific expected codes (transparent data mode), and
// otherwise the device error codes that fail the head-of-queue command.
func (e *Engine) dispatchOtherLocked(frame []byte) {
	if e.queue.empty() {
		e.log.Debug().Hex("frame", frame).Msg("dropping unsolicited frame")
		return
	}
	cmd := e.queue.dequeue()
	code := frame[0]
	if cmd.slot != nil {
		cmd.slot.store(frame)
	}

	switch {
	case cmd.kind == KindTextHeadless:
		if fn := cmd.onText; fn != nil {
			text := string(frame)
			e.calls = append(e.calls, func() { fn(text) })
		}
	case code == cmd.expect:
		e.succeedLocked(cmd)
	default:
		e.failLocked(cmd, &CodeError{Code: code})
	}
}

func (e *Engine) fireLocked(fn func()) {
	if fn != nil {
		e.calls = append(e.calls, fn)
	}
}

func (e *Engine) succeedLocked(cmd pendingCommand) {
	if cmd.onSuccess != nil {
		e.calls = append(e.calls, cmd.onSuccess)
	}
}

func (e *Engine) failLocked(cmd pendingCommand, err error) {
	var ce *CodeError
	if errors.As(err, &ce) {
		e.stats.RepliesMismatched++
	}
	if cmd.onFailure != nil {
		fn := cmd.onFailure
		e.calls = append(e.calls, func() { fn(err) })
	}
}
