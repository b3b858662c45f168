// Package protocol implements the Nextion serial wire format: the
// terminator-delimited framing, the reply/event type codes, and the
// fixed-layout payload decoders.
package protocol

// Frame terminator: three consecutive 0xFF bytes end every message.
const (
	TERMINATOR_BYTE = 0xFF
	TERMINATOR_LEN  = 3
)

// Leading bytes of unsolicited event frames.
const (
	RET_EVENT_STARTUP        = 0x00
	RET_EVENT_TOUCH_HEAD     = 0x65
	RET_CURRENT_PAGE_ID_HEAD = 0x66
	RET_EVENT_POSITION_HEAD  = 0x67
	RET_EVENT_SLEEP_POSITION = 0x68
	RET_AUTOMATIC_SLEEP      = 0x86
	RET_AUTOMATIC_WAKE_UP    = 0x87
	RET_EVENT_READY          = 0x88
	RET_START_SD_UPGRADE     = 0x89
)

// Leading bytes of command replies.
const (
	RET_CMD_FINISHED_OK       = 0x01
	RET_STRING_HEAD           = 0x70
	RET_NUMBER_HEAD           = 0x71
	RET_TRANSPARENT_FINISHED  = 0xFD
	RET_TRANSPARENT_READY     = 0xFE
)

// Device-defined error codes. Each arrives as a single-byte frame and
// signals why the preceding command failed.
const (
	RET_INVALID_CMD               = 0x00
	RET_INVALID_COMPONENT_ID      = 0x02
	RET_INVALID_PAGE_ID           = 0x03
	RET_INVALID_PICTURE_ID        = 0x04
	RET_INVALID_FONT_ID           = 0x05
	RET_INVALID_FILE_OPERATION    = 0x06
	RET_INVALID_CRC               = 0x09
	RET_INVALID_BAUD              = 0x11
	RET_INVALID_WAVEFORM          = 0x12
	RET_INVALID_VARIABLE          = 0x1A
	RET_INVALID_VARIABLE_OP       = 0x1B
	RET_ASSIGNMENT_FAILED         = 0x1C
	RET_EEPROM_OPERATION_FAILED   = 0x1D
	RET_INVALID_PARAMETER_COUNT   = 0x1E
	RET_IO_OPERATION_FAILED       = 0x1F
	RET_ESCAPE_CHARACTER_INVALID  = 0x20
	RET_VARIABLE_NAME_TOO_LONG    = 0x23
	RET_SERIAL_BUFFER_OVERFLOW    = 0x24
)

// A numeric reply is exactly the type byte plus a 4-byte little-endian
// payload; the terminator cannot legally begin before this offset.
const numberTerminatorOffset = 5

var codeNames = map[byte]string{
	RET_INVALID_CMD:              "invalid instruction",
	RET_INVALID_COMPONENT_ID:     "invalid component id",
	RET_INVALID_PAGE_ID:          "invalid page id",
	RET_INVALID_PICTURE_ID:       "invalid picture id",
	RET_INVALID_FONT_ID:          "invalid font id",
	RET_INVALID_FILE_OPERATION:   "invalid file operation",
	RET_INVALID_CRC:              "crc mismatch",
	RET_INVALID_BAUD:             "invalid baud rate",
	RET_INVALID_WAVEFORM:         "invalid waveform id or channel",
	RET_INVALID_VARIABLE:         "invalid variable or attribute",
	RET_INVALID_VARIABLE_OP:      "invalid variable operation",
	RET_ASSIGNMENT_FAILED:        "assignment failed",
	RET_EEPROM_OPERATION_FAILED:  "eeprom operation failed",
	RET_INVALID_PARAMETER_COUNT:  "invalid quantity of parameters",
	RET_IO_OPERATION_FAILED:      "io operation failed",
	RET_ESCAPE_CHARACTER_INVALID: "invalid escape character",
	RET_VARIABLE_NAME_TOO_LONG:   "variable name too long",
	RET_SERIAL_BUFFER_OVERFLOW:   "serial buffer overflow",
}

// CodeName returns a human-readable description of a device error code.
func CodeName(code byte) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return "unknown return code"
}
