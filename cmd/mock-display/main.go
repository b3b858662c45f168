// mock-display simulates a Nextion display over TCP for testing the host
// driver without hardware. It supports:
// - The connect handshake ("connect" -> "comok ...")
// - bkcmd acknowledgement modes
// - Attribute assignment and readback (txt/val fields)
// - Page switching, visibility, refresh
// - Scripted touch events
//
// Usage:
//
//	mock-display -listen :5480 [-touch 5s] [-trace]
package main

import (
	"bytes"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"nextion-host/pkg/protocol"
)

// comok model string: touch enabled, model, firmware, MCU code, serial, flash.
const deviceDetails = "comok 1,101,NX4832T035_011R,52,61488,DE6600C1B4D5A3F2,16777216"

// displayState is the simulated device: a page id, named variables and an
// acknowledgement mode.
type displayState struct {
	mu     sync.Mutex
	page   byte
	bkcmd  int
	text   map[string]string
	number map[string]int32
}

func newDisplayState() *displayState {
	return &displayState{
		bkcmd: 2,
		text: map[string]string{
			"t0.txt": "hello",
		},
		number: map[string]int32{
			"n0.val": 0,
			"t0.w":   320,
			"t0.h":   24,
		},
	}
}

type session struct {
	conn  net.Conn
	state *displayState
	log   zerolog.Logger

	wmu sync.Mutex
}

func (s *session) send(frame ...byte) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	out := append(append([]byte(nil), frame...), protocol.Terminator[:]...)
	if _, err := s.conn.Write(out); err != nil {
		s.log.Debug().Err(err).Msg("write failed")
	}
}

func (s *session) sendText(text string) {
	s.send([]byte(text)...)
}

// ack replies per the current bkcmd mode: 0 = never, 1 = on success only,
// 2 = on failure only, 3 = always.
func (s *session) ack(code byte) {
	s.state.mu.Lock()
	mode := s.state.bkcmd
	s.state.mu.Unlock()

	ok := code == protocol.RET_CMD_FINISHED_OK
	switch {
	case mode == 3, mode == 1 && ok, mode == 2 && !ok:
		s.send(code)
	}
}

func (s *session) handle(cmd string) {
	s.log.Debug().Str("cmd", cmd).Msg("command")

	switch {
	case cmd == "":
		// Sync padding before a handshake. No reply.

	case cmd == "connect":
		s.sendText(deviceDetails)

	case cmd == "sendme":
		s.state.mu.Lock()
		page := s.state.page
		s.state.mu.Unlock()
		s.send(protocol.RET_CURRENT_PAGE_ID_HEAD, page)

	case strings.HasPrefix(cmd, "bkcmd="):
		mode, err := strconv.Atoi(cmd[len("bkcmd="):])
		if err != nil || mode < 0 || mode > 3 {
			s.ack(protocol.RET_INVALID_VARIABLE)
			return
		}
		s.state.mu.Lock()
		s.state.bkcmd = mode
		s.state.mu.Unlock()
		s.ack(protocol.RET_CMD_FINISHED_OK)

	case strings.HasPrefix(cmd, "page "):
		id, err := strconv.Atoi(strings.TrimSpace(cmd[len("page "):]))
		if err != nil || id < 0 || id > 255 {
			s.ack(protocol.RET_INVALID_PAGE_ID)
			return
		}
		s.state.mu.Lock()
		s.state.page = byte(id)
		s.state.mu.Unlock()
		s.ack(protocol.RET_CMD_FINISHED_OK)

	case strings.HasPrefix(cmd, "get "):
		s.handleGet(strings.TrimSpace(cmd[len("get "):]))

	case strings.HasPrefix(cmd, "vis "), strings.HasPrefix(cmd, "ref "):
		s.ack(protocol.RET_CMD_FINISHED_OK)

	case strings.Contains(cmd, "="):
		s.handleAssign(cmd)

	default:
		s.ack(protocol.RET_INVALID_CMD)
	}
}

func (s *session) handleGet(expr string) {
	// Quoted literal echoes back as a string.
	if strings.HasPrefix(expr, `"`) && strings.HasSuffix(expr, `"`) && len(expr) >= 2 {
		s.send(append([]byte{protocol.RET_STRING_HEAD}, expr[1:len(expr)-1]...)...)
		return
	}

	s.state.mu.Lock()
	text, isText := s.state.text[expr]
	num, isNum := s.state.number[expr]
	s.state.mu.Unlock()

	switch {
	case isText:
		s.send(append([]byte{protocol.RET_STRING_HEAD}, text...)...)
	case isNum:
		frame := []byte{protocol.RET_NUMBER_HEAD,
			byte(num), byte(num >> 8), byte(num >> 16), byte(num >> 24)}
		s.send(frame...)
	default:
		s.ack(protocol.RET_INVALID_VARIABLE)
	}
}

func (s *session) handleAssign(cmd string) {
	name, value, _ := strings.Cut(cmd, "=")
	name = strings.TrimSpace(name)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) >= 2 {
		s.state.text[name] = value[1 : len(value)-1]
		s.ackLocked(protocol.RET_CMD_FINISHED_OK)
		return
	}
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		s.ackLocked(protocol.RET_INVALID_VARIABLE)
		return
	}
	s.state.number[name] = int32(n)
	s.ackLocked(protocol.RET_CMD_FINISHED_OK)
}

// ackLocked acks while state.mu is held; the reply itself only needs
// the write lock.
func (s *session) ackLocked(code byte) {
	mode := s.state.bkcmd
	ok := code == protocol.RET_CMD_FINISHED_OK
	switch {
	case mode == 3, mode == 1 && ok, mode == 2 && !ok:
		s.send(code)
	}
}

// serve reads terminator-delimited commands from one host connection.
func (s *session) serve(touchEvery time.Duration) {
	defer s.conn.Close()
	s.log.Info().Str("peer", s.conn.RemoteAddr().String()).Msg("host connected")

	if touchEvery > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go s.emitTouches(touchEvery, stop)
	}

	var pending []byte
	buf := make([]byte, 256)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			s.log.Info().Msg("host disconnected")
			return
		}
		pending = append(pending, buf[:n]...)
		for {
			idx := bytes.Index(pending, protocol.Terminator[:])
			if idx < 0 {
				break
			}
			cmd := string(pending[:idx])
			pending = pending[idx+protocol.TERMINATOR_LEN:]
			s.handle(cmd)
		}
	}
}

// emitTouches sends a press/release pair for component 1 of the current
// page at a fixed interval.
func (s *session) emitTouches(every time.Duration, stop chan struct{}) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.state.mu.Lock()
			page := s.state.page
			s.state.mu.Unlock()
			s.send(protocol.RET_EVENT_TOUCH_HEAD, page, 1, 1)
			s.send(protocol.RET_EVENT_TOUCH_HEAD, page, 1, 0)
			s.log.Debug().Uint8("page", page).Msg("emitted touch pair")
		}
	}
}

func main() {
	listen := flag.String("listen", ":5480", "TCP listen address")
	touch := flag.Duration("touch", 0, "emit a touch press/release pair at this interval (0 = off)")
	trace := flag.Bool("trace", false, "log every command")
	flag.Parse()

	level := zerolog.InfoLevel
	if *trace {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("mock display listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		ln.Close()
		os.Exit(0)
	}()

	state := newDisplayState()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := &session{conn: conn, state: state, log: log}
		go s.serve(*touch)
	}
}
