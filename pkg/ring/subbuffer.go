package ring

import "encoding/binary"

// writePosOffset is the byte offset of the absolute write position stored at
// the head of a SubBuffer.
const writePosOffset = 0

// initialWritePos is where the first record is appended; bytes [0:4) are
// reserved for the write-position word itself.
const initialWritePos = 4

// SubBuffer is the append-only, absolute-position framing used for
// subscription delivery buffers (spec.md §4.A: "Subscription buffer
// framing"). Unlike Ring it never wraps: the buffer is written until full
// and then recycled by the owner, not evicted record-by-record.
type SubBuffer struct {
	buf []byte
}

// NewSubBuffer allocates a buffer of size bytes and sets the write position
// to its initial value.
func NewSubBuffer(size int) *SubBuffer {
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[writePosOffset:], initialWritePos)
	return &SubBuffer{buf: buf}
}

// WrapSubBuffer adapts an existing, possibly shared, []byte. If its write
// position reads as zero the buffer is treated as freshly allocated and
// initialized.
func WrapSubBuffer(buf []byte) *SubBuffer {
	sb := &SubBuffer{buf: buf}
	if binary.LittleEndian.Uint32(buf[writePosOffset:]) == 0 {
		binary.LittleEndian.PutUint32(buf[writePosOffset:], initialWritePos)
	}
	return sb
}

// WritePos returns the current absolute write position.
func (sb *SubBuffer) WritePos() uint32 {
	return binary.LittleEndian.Uint32(sb.buf[writePosOffset:])
}

// Bytes exposes the underlying buffer for transfer to another context.
func (sb *SubBuffer) Bytes() []byte { return sb.buf }

// Append writes a length-prefixed message at the current write position. It
// reports false (without writing anything) if the message would not fit in
// the remaining space.
func (sb *SubBuffer) Append(msg []byte) bool {
	pos := sb.WritePos()
	need := int(pos) + 4 + len(msg)
	if need > len(sb.buf) {
		return false
	}
	binary.LittleEndian.PutUint32(sb.buf[pos:], uint32(len(msg)))
	copy(sb.buf[pos+4:], msg)
	binary.LittleEndian.PutUint32(sb.buf[writePosOffset:], uint32(need))
	return true
}

// ReadFrom parses every complete record between lastReadPos and the current
// write position. It returns the parsed messages and the position the
// caller should pass as lastReadPos next time. A corrupt length (one that
// would read past the current write position) stops parsing at that point
// and returns everything parsed so far, leaving newPos at the start of the
// corrupt record so the next call retries it.
func (sb *SubBuffer) ReadFrom(lastReadPos uint32) (
	messages [][]byte, newPos uint32,
) {
	writePos := sb.WritePos()
	pos := lastReadPos
	if pos < initialWritePos {
		pos = initialWritePos
	}
	for pos+4 <= writePos {
		l := binary.LittleEndian.Uint32(sb.buf[pos:])
		end := pos + 4 + l
		if end > writePos {
			// corrupt or torn record: stop, retry from here next time.
			return messages, pos
		}
		msg := make([]byte, l)
		copy(msg, sb.buf[pos+4:end])
		messages = append(messages, msg)
		pos = end
	}
	return messages, pos
}

// Reset recycles the buffer for reuse, restoring the initial write position.
func (sb *SubBuffer) Reset() {
	for i := range sb.buf {
		sb.buf[i] = 0
	}
	binary.LittleEndian.PutUint32(sb.buf[writePosOffset:], initialWritePos)
}

// ReadOne parses at most one complete record starting at pos. It returns
// ok=false without advancing if there isn't a complete record available yet
// (empty or torn), the same "retry later" behavior as ReadFrom but one
// message at a time, so a caller can check a time budget between messages
// instead of parsing a whole backlog in one shot (spec.md §4.D's
// cooperative, budgeted drain).
func (sb *SubBuffer) ReadOne(pos uint32) (msg []byte, newPos uint32, ok bool) {
	writePos := sb.WritePos()
	if pos < initialWritePos {
		pos = initialWritePos
	}
	if pos+4 > writePos {
		return nil, pos, false
	}
	l := binary.LittleEndian.Uint32(sb.buf[pos:])
	end := pos + 4 + l
	if end > writePos {
		return nil, pos, false
	}
	msg = make([]byte, l)
	copy(msg, sb.buf[pos+4:end])
	return msg, end, true
}

// Cursor is a reader's private progress marker into a SubBuffer: the
// SubBuffer itself has only one absolute write position, but each
// subscription's delivery pipeline on the UI side tracks its own
// lastReadPos into it (spec.md §4.A: "The reader maintains lastReadPos").
type Cursor struct {
	sb  *SubBuffer
	pos uint32
}

// NewCursor starts a Cursor at the buffer's initial read position.
func NewCursor(sb *SubBuffer) *Cursor {
	return &Cursor{sb: sb, pos: initialWritePos}
}

// Next returns the next unread message, or ok=false if none is available
// yet.
func (c *Cursor) Next() (msg []byte, ok bool) {
	msg, newPos, ok := c.sb.ReadOne(c.pos)
	if ok {
		c.pos = newPos
	}
	return msg, ok
}

// Pos reports the cursor's current read position (exposed for tests).
func (c *Cursor) Pos() uint32 { return c.pos }
