package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame length constants, terminator excluded.
const (
	AckFrameLen        = 1
	NumberFrameLen     = 5
	TouchFrameLen      = 4
	PageIDFrameLen     = 2
	CoordinateFrameLen = 6
	startupFrameLen    = 3
)

// TouchEvent is a decoded touch press/release notification.
type TouchEvent struct {
	Page      byte
	Component byte
	Pressed   bool
}

// Coordinate is a decoded touch-coordinate notification.
type Coordinate struct {
	X       uint16
	Y       uint16
	Pressed bool
}

// ParseNumber decodes a numeric reply frame: type byte followed by a
// little-endian signed 32-bit value.
func ParseNumber(frame []byte) (int32, error) {
	if len(frame) != NumberFrameLen || frame[0] != RET_NUMBER_HEAD {
		return 0, fmt.Errorf("protocol: not a number frame (len=%d)", len(frame))
	}
	return int32(binary.LittleEndian.Uint32(frame[1:5])), nil
}

// ParseString decodes a string reply frame. With headed set, the frame must
// start with RET_STRING_HEAD and the text follows it; headerless frames are
// text from the first byte.
func ParseString(frame []byte, headed bool) (string, error) {
	if !headed {
		return string(frame), nil
	}
	if len(frame) < 1 || frame[0] != RET_STRING_HEAD {
		return "", fmt.Errorf("protocol: not a string frame (len=%d)", len(frame))
	}
	return string(frame[1:]), nil
}

// ParseTouchEvent decodes a touch event frame: [0x65 page component flag].
func ParseTouchEvent(frame []byte) (TouchEvent, error) {
	if len(frame) != TouchFrameLen || frame[0] != RET_EVENT_TOUCH_HEAD {
		return TouchEvent{}, fmt.Errorf("protocol: not a touch event frame (len=%d)", len(frame))
	}
	return TouchEvent{
		Page:      frame[1],
		Component: frame[2],
		Pressed:   frame[3] != 0,
	}, nil
}

// ParseCoordinate decodes a touch-coordinate frame:
// [0x67|0x68 x_lo x_hi y_lo y_hi flag].
func ParseCoordinate(frame []byte) (Coordinate, error) {
	if len(frame) != CoordinateFrameLen ||
		(frame[0] != RET_EVENT_POSITION_HEAD && frame[0] != RET_EVENT_SLEEP_POSITION) {
		return Coordinate{}, fmt.Errorf("protocol: not a coordinate frame (len=%d)", len(frame))
	}
	return Coordinate{
		X:       binary.LittleEndian.Uint16(frame[1:3]),
		Y:       binary.LittleEndian.Uint16(frame[3:5]),
		Pressed: frame[5] != 0,
	}, nil
}

// ParsePageID decodes a current-page frame: [0x66 page].
func ParsePageID(frame []byte) (byte, error) {
	if len(frame) != PageIDFrameLen || frame[0] != RET_CURRENT_PAGE_ID_HEAD {
		return 0, fmt.Errorf("protocol: not a page id frame (len=%d)", len(frame))
	}
	return frame[1], nil
}

// IsStartup reports whether a frame with leading code 0x00 is the device
// power-up announcement ([0x00 0x00 0x00]) rather than the single-byte
// invalid-instruction error that shares the code.
func IsStartup(frame []byte) bool {
	return len(frame) == startupFrameLen && frame[0] == RET_EVENT_STARTUP &&
		frame[1] == 0x00 && frame[2] == 0x00
}
