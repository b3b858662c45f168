package protocol

// DefaultBufferSize is the assembler's accumulation buffer size. It must
// hold the longest expected reply; the "connect" handshake response is the
// largest at roughly 72 bytes.
const DefaultBufferSize = 128

// Assembler accumulates raw serial bytes and detects frame boundaries.
//
// Framing is ambiguous on purpose: a numeric reply carries a little-endian
// 32-bit payload that may itself contain 0xFF bytes, so for frames whose
// first byte is RET_NUMBER_HEAD the terminator is only recognized once the
// type byte and all four payload bytes have been consumed.
type Assembler struct {
	buf     []byte
	termCnt int
	dropped int
}

// NewAssembler returns an Assembler with a fixed accumulation buffer of
// size bytes (DefaultBufferSize if size <= 0).
func NewAssembler(size int) *Assembler {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Assembler{buf: make([]byte, 0, size)}
}

// Feed consumes one byte. When the byte completes a frame, Feed returns the
// frame payload with the 3-byte terminator stripped and true; otherwise it
// returns nil and false. The returned slice is a copy and remains valid
// after further Feed calls.
func (a *Assembler) Feed(b byte) ([]byte, bool) {
	if b == TERMINATOR_BYTE && len(a.buf) == 0 {
		// A frame cannot start with the terminator value.
		return nil, false
	}
	if len(a.buf) == cap(a.buf) {
		// Frame never terminated within the buffer; discard it and
		// start over from this byte.
		a.Reset()
		a.dropped++
		if b == TERMINATOR_BYTE {
			return nil, false
		}
	}
	a.buf = append(a.buf, b)

	if b != TERMINATOR_BYTE {
		a.termCnt = 0
		return nil, false
	}
	if a.buf[0] == RET_NUMBER_HEAD && len(a.buf) <= numberTerminatorOffset {
		// Still inside the numeric payload; 0xFF here is data.
		a.termCnt = 0
		return nil, false
	}

	a.termCnt++
	if a.termCnt < TERMINATOR_LEN {
		return nil, false
	}

	frame := make([]byte, len(a.buf)-TERMINATOR_LEN)
	copy(frame, a.buf[:len(a.buf)-TERMINATOR_LEN])
	a.Reset()
	return frame, true
}

// Len returns the number of bytes accumulated toward the current frame,
// including any pending terminator bytes.
func (a *Assembler) Len() int {
	return len(a.buf)
}

// Dropped returns how many partial frames were discarded due to buffer
// exhaustion since the last Reset-free run. Diagnostic only.
func (a *Assembler) Dropped() int {
	return a.dropped
}

// Reset discards any partial frame.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.termCnt = 0
}
