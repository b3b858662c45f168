package display

import (
	"time"

	"nextion-host/pkg/protocol"
)

// ResponseKind selects how a pending command's reply payload is decoded and
// which callback variant fires on success.
type ResponseKind int

const (
	// KindAck expects a single-byte return code.
	KindAck ResponseKind = iota

	// KindNumber expects a little-endian 32-bit numeric reply.
	KindNumber

	// KindText expects a string reply led by the string type byte.
	KindText

	// KindTextHeadless expects a bare string reply with no type byte,
	// such as the "connect" handshake response.
	KindTextHeadless
)

// pendingCommand tracks one in-flight command awaiting its reply. At most
// one of the callbacks fires, at most once, when the correlated frame is
// dispatched or the command expires.
type pendingCommand struct {
	expect    byte
	kind      ResponseKind
	onSuccess func()
	onFailure func(error)
	onNumber  func(int32)
	onText    func(string)
	expiresAt time.Time
	slot      *responseSlot
}

// commandQueue is a fixed-capacity FIFO of in-flight commands. Queue order
// is the sole correlation mechanism: the Nth reply answers the Nth pending
// command. Read and write cursors grow monotonically so a caller can record
// its insertion position and later test whether consumption passed it.
type commandQueue struct {
	slots []pendingCommand
	read  uint64
	write uint64
}

func newCommandQueue(depth int) *commandQueue {
	return &commandQueue{slots: make([]pendingCommand, depth)}
}

// enqueue appends cmd and returns its queue position. It fails without
// modifying the ring when full: the caller must surface the lost
// correlation rather than silently overwrite the oldest entry.
func (q *commandQueue) enqueue(cmd pendingCommand) (uint64, bool) {
	if q.write-q.read >= uint64(len(q.slots)) {
		return 0, false
	}
	pos := q.write
	q.slots[pos%uint64(len(q.slots))] = cmd
	q.write++
	return pos, true
}

// dequeue removes and returns the oldest entry. Callers must check empty
// first.
func (q *commandQueue) dequeue() pendingCommand {
	cmd := q.slots[q.read%uint64(len(q.slots))]
	q.slots[q.read%uint64(len(q.slots))] = pendingCommand{}
	q.read++
	return cmd
}

func (q *commandQueue) peek() *pendingCommand {
	return &q.slots[q.read%uint64(len(q.slots))]
}

func (q *commandQueue) empty() bool {
	return q.read == q.write
}

func (q *commandQueue) len() int {
	return int(q.write - q.read)
}

// passed reports whether the consumption cursor has advanced beyond the
// given insertion position, i.e. the command at pos has been dequeued.
func (q *commandQueue) passed(pos uint64) bool {
	return q.read > pos
}

// purgeExpired checks only the head: expiry times are non-decreasing in
// enqueue order, so nothing behind an unexpired head can be expired. The
// expired command is returned so the engine can settle its failure
// callback.
func (q *commandQueue) purgeExpired(now time.Time) (pendingCommand, bool) {
	if q.empty() {
		return pendingCommand{}, false
	}
	if now.Before(q.peek().expiresAt) {
		return pendingCommand{}, false
	}
	return q.dequeue(), true
}

// responseSlot is one fixed-size raw-frame buffer. The dispatcher writes
// the matched reply (terminator already stripped) so a blocking caller can
// read the exact bytes after its wait loop finishes.
type responseSlot struct {
	buf []byte
	n   int
}

func (s *responseSlot) store(frame []byte) {
	s.n = copy(s.buf, frame)
}

func (s *responseSlot) bytes() []byte {
	return s.buf[:s.n]
}

// responseStore is a fixed ring of response slots. Claiming advances a
// write cursor; a slot is reused after capacity-many further claims, an
// accepted bounded-staleness trade for zero per-frame allocation.
type responseStore struct {
	slots []responseSlot
	write uint64
}

func newResponseStore(depth, bufSize int) *responseStore {
	if bufSize <= 0 {
		bufSize = protocol.DefaultBufferSize
	}
	s := &responseStore{slots: make([]responseSlot, depth)}
	for i := range s.slots {
		s.slots[i].buf = make([]byte, bufSize)
	}
	return s
}

func (s *responseStore) claim() *responseSlot {
	slot := &s.slots[s.write%uint64(len(s.slots))]
	s.write++
	slot.n = 0
	return slot
}
