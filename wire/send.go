// Package wire implements size-delimited framing: every frame is a 4-byte
// big-endian length followed by that many payload bytes. Send and Receive
// are driven incrementally, one non-blocking I/O call at a time, so they can
// be pumped by a readiness loop.
package wire

import (
	"io"

	"github.com/lithdew/bytesutil"
	"github.com/valyala/bytebufferpool"
)

const HeaderSize = 4

// Appender is anything that can encode itself by appending to a buffer.
type Appender interface {
	AppendTo(dst []byte) []byte
}

// Send is an outgoing frame. The encoded frame lives in a pooled buffer that
// is returned to the pool once the last byte has been written.
type Send struct {
	destination string

	buf  *bytebufferpool.ByteBuffer
	size int // header + payload
	off  int // bytes written so far
}

// NewSend encodes msg into a frame addressed to destination.
func NewSend(destination string, msg Appender) *Send {
	buf := bytebufferpool.Get()
	buf.B = append(buf.B[:0], 0, 0, 0, 0)
	buf.B = msg.AppendTo(buf.B)

	// patch the header in place now that the payload length is known
	bytesutil.AppendUint32BE(buf.B[:0], uint32(len(buf.B)-HeaderSize))

	return &Send{destination: destination, buf: buf, size: len(buf.B)}
}

func (s *Send) Destination() string { return s.destination }

// Size is the full encoded length of the frame, header included.
func (s *Send) Size() int { return s.size }

func (s *Send) Remaining() int { return s.size - s.off }

func (s *Send) Completed() bool { return s.off >= s.size }

// WriteTo performs a single write of the unsent remainder of the frame and
// returns the number of bytes accepted by w. Errors from w, including
// would-block conditions, are returned unchanged after accounting for any
// partial progress.
func (s *Send) WriteTo(w io.Writer) (int64, error) {
	if s.Completed() {
		return 0, nil
	}
	n, err := w.Write(s.buf.B[s.off:s.size])
	s.off += n
	if s.Completed() {
		s.Release()
	}
	return int64(n), err
}

// Release returns the encode buffer to the pool. It is called automatically
// once the frame is fully written; call it directly to abandon a send.
func (s *Send) Release() {
	if s.buf == nil {
		return
	}
	bytebufferpool.Put(s.buf)
	s.buf = nil
	s.off = s.size
}

// Bytes is a convenience Appender for raw payloads.
type Bytes []byte

func (b Bytes) AppendTo(dst []byte) []byte { return append(dst, b...) }
