//go:build unix

// Package sock wraps a raw non-blocking TCP socket descriptor. Reads and
// writes never block: when the kernel has no data or no buffer space they
// return ErrWouldBlock, and callers are expected to wait for readiness
// through a poller before trying again.
package sock

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	ErrWouldBlock = errors.New("sock: operation would block")
	ErrClosed     = errors.New("sock: use of closed socket")
)

type Socket struct {
	fd int
}

// Open creates a non-blocking, close-on-exec TCP socket in the address family
// matching addr.
func Open(addr *net.TCPAddr) (*Socket, error) {
	family, _ := sockaddr(addr)

	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("setnonblock", err)
	}

	return &Socket{fd: fd}, nil
}

func (s *Socket) Fd() int { return s.fd }

func (s *Socket) SetReceiveBufferSize(n int) error {
	return s.setsockopt(unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

func (s *Socket) SetSendBufferSize(n int) error {
	return s.setsockopt(unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

func (s *Socket) SetKeepAlive(on bool) error {
	return s.setsockopt(unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolint(on))
}

// SetNoDelay controls Nagle's algorithm. true disables send coalescing.
func (s *Socket) SetNoDelay(on bool) error {
	return s.setsockopt(unix.IPPROTO_TCP, unix.TCP_NODELAY, boolint(on))
}

// Connect starts an asynchronous connect to addr. It returns true if the
// connection was established immediately; otherwise the connect is in
// progress and must be completed with FinishConnect once the socket is
// reported writable.
func (s *Socket) Connect(addr *net.TCPAddr) (bool, error) {
	if s.fd < 0 {
		return false, ErrClosed
	}
	_, sa := sockaddr(addr)
	for {
		err := unix.Connect(s.fd, sa)
		switch err {
		case nil:
			return true, nil
		case unix.EINTR:
			continue
		case unix.EINPROGRESS, unix.EALREADY:
			return false, nil
		default:
			return false, os.NewSyscallError("connect", err)
		}
	}
}

// FinishConnect reports whether a connect started by Connect has completed.
// A pending connect yields false with no error; a failed one yields the
// socket error, e.g. ECONNREFUSED.
func (s *Socket) FinishConnect() (bool, error) {
	if s.fd < 0 {
		return false, ErrClosed
	}
	soerr, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return false, os.NewSyscallError("getsockopt", err)
	}
	if soerr != 0 {
		return false, os.NewSyscallError("connect", syscall.Errno(soerr))
	}
	if _, err := unix.Getpeername(s.fd); err != nil {
		if err == unix.ENOTCONN {
			return false, nil
		}
		return false, os.NewSyscallError("getpeername", err)
	}
	return true, nil
}

// Read reads whatever is available without blocking. It returns
// ErrWouldBlock if nothing is available and io.EOF once the peer has closed
// its side of the connection.
func (s *Socket) Read(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, os.NewSyscallError("read", err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes as much of p as the kernel accepts without blocking. A short
// write is reported together with ErrWouldBlock.
func (s *Socket) Write(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, ErrClosed
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(s.fd, p[written:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return written, ErrWouldBlock
		case err != nil:
			return written, os.NewSyscallError("write", err)
		}
		written += n
	}
	return written, nil
}

func (s *Socket) LocalAddr() (*net.TCPAddr, error) {
	if s.fd < 0 {
		return nil, ErrClosed
	}
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return nil, os.NewSyscallError("getsockname", err)
	}
	return tcpAddr(sa), nil
}

func (s *Socket) RemoteAddr() (*net.TCPAddr, error) {
	if s.fd < 0 {
		return nil, ErrClosed
	}
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return nil, os.NewSyscallError("getpeername", err)
	}
	return tcpAddr(sa), nil
}

// Close releases the descriptor. It is safe to call more than once.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	if err := unix.Close(fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

func (s *Socket) setsockopt(level, opt, value int) error {
	if s.fd < 0 {
		return ErrClosed
	}
	if err := unix.SetsockoptInt(s.fd, level, opt, value); err != nil {
		return os.NewSyscallError("setsockopt", err)
	}
	return nil
}

func boolint(b bool) int {
	if b {
		return 1
	}
	return 0
}
