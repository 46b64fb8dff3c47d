package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/lithdew/bytesutil"
	"github.com/valyala/bytebufferpool"
)

// Unlimited disables the maximum frame size check.
const Unlimited = -1

var (
	ErrInvalidSize = errors.New("wire: invalid frame size")
	ErrIncomplete  = errors.New("wire: frame not complete")
)

// Receive is an incoming frame, filled incrementally by ReadFrom. Once
// complete, it is an io.Reader over the payload; Rewind moves the read cursor
// back to the start.
type Receive struct {
	maxSize int
	pooled  bool

	header [HeaderSize]byte
	hoff   int

	buf  *bytebufferpool.ByteBuffer
	size int // payload size, -1 until the header is read
	off  int // payload bytes received
	pos  int // payload read cursor

	err error
}

// NewReceive returns an empty frame accepting payloads of at most maxSize
// bytes, or of any size if maxSize is Unlimited.
func NewReceive(maxSize int) *Receive {
	r := &Receive{}
	r.reset(maxSize)
	return r
}

func (r *Receive) reset(maxSize int) {
	r.maxSize = maxSize
	r.header = [HeaderSize]byte{}
	r.hoff = 0
	r.buf = nil
	r.size = -1
	r.off = 0
	r.pos = 0
	r.err = nil
}

func (r *Receive) Complete() bool { return r.size >= 0 && r.off == r.size }

// Size is the payload size announced by the header, or -1 if the header has
// not been fully read yet.
func (r *Receive) Size() int { return r.size }

// ReadFrom performs at most one read for the header and one for the payload.
// It returns the number of bytes consumed from src. Errors from src,
// including would-block conditions, are returned unchanged; an invalid header
// fails with ErrInvalidSize and poisons the frame.
func (r *Receive) ReadFrom(src io.Reader) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}

	var read int64

	if r.hoff < HeaderSize {
		n, err := src.Read(r.header[r.hoff:])
		r.hoff += n
		read += int64(n)
		if err != nil {
			return read, err
		}
		if r.hoff < HeaderSize {
			return read, nil
		}

		size := int32(bytesutil.Uint32BE(r.header[:]))
		if size < 0 || (r.maxSize >= 0 && int(size) > r.maxSize) {
			r.err = fmt.Errorf("%w: %d (max %d)", ErrInvalidSize, size, r.maxSize)
			return read, r.err
		}

		r.size = int(size)
		r.buf = bytebufferpool.Get()
		if cap(r.buf.B) < r.size {
			r.buf.B = make([]byte, r.size)
		}
		r.buf.B = r.buf.B[:r.size]
	}

	if r.off < r.size {
		n, err := src.Read(r.buf.B[r.off:r.size])
		r.off += n
		read += int64(n)
		if err != nil {
			return read, err
		}
	}

	return read, nil
}

// Payload returns the received payload. It is nil until the frame is
// complete and is only valid until the frame is released.
func (r *Receive) Payload() []byte {
	if !r.Complete() {
		return nil
	}
	return r.buf.B[:r.size]
}

func (r *Receive) Read(p []byte) (int, error) {
	if !r.Complete() {
		return 0, ErrIncomplete
	}
	if r.pos >= r.size {
		return 0, io.EOF
	}
	n := copy(p, r.buf.B[r.pos:r.size])
	r.pos += n
	return n, nil
}

// Rewind moves the payload read cursor back to the start.
func (r *Receive) Rewind() { r.pos = 0 }

// Position is the offset of the payload read cursor.
func (r *Receive) Position() int { return r.pos }

// Release hands the frame back. Pooled frames return to the receive pool;
// others only drop their payload buffer. Calling it twice is harmless.
func (r *Receive) Release() {
	if r.pooled {
		ReleaseReceive(r)
		return
	}
	r.release()
}

func (r *Receive) release() {
	if r.buf != nil {
		bytebufferpool.Put(r.buf)
	}
	r.reset(Unlimited)
}
