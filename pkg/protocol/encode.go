package protocol

import (
	"strconv"
	"strings"
)

// Terminator is the 3-byte frame terminator appended to every command.
var Terminator = [TERMINATOR_LEN]byte{TERMINATOR_BYTE, TERMINATOR_BYTE, TERMINATOR_BYTE}

// EncodeCommand wraps a textual command with the frame terminator.
func EncodeCommand(cmd string) []byte {
	out := make([]byte, 0, len(cmd)+TERMINATOR_LEN)
	out = append(out, cmd...)
	return append(out, Terminator[:]...)
}

// AppendTerminator appends the frame terminator to dst.
func AppendTerminator(dst []byte) []byte {
	return append(dst, Terminator[:]...)
}

// FormatSetText builds the assignment command for a text attribute. The
// value is quoted; embedded double quotes are dropped since the device has
// no escape syntax for them.
func FormatSetText(field, value string) string {
	value = strings.ReplaceAll(value, `"`, "")
	var b strings.Builder
	b.Grow(len(field) + len(value) + 3)
	b.WriteString(field)
	b.WriteString(`="`)
	b.WriteString(value)
	b.WriteString(`"`)
	return b.String()
}

// FormatSetNumber builds the assignment command for a numeric attribute.
func FormatSetNumber(field string, value int32) string {
	return field + "=" + strconv.FormatInt(int64(value), 10)
}

// FormatGet builds the query command for an attribute.
func FormatGet(field string) string {
	return "get " + field
}
