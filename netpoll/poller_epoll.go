//go:build linux

package netpoll

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Poller waits for readiness of one registered descriptor using epoll. The
// epoll instance is owned by the Poller and released by Close.
type Poller struct {
	epfd     int
	fd       int
	interest Interest
	ready    Interest
	closed   bool

	events [1]unix.EpollEvent
}

// New creates a Poller backed by a fresh epoll instance.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Poller{epfd: epfd, fd: -1}, nil
}

// Register binds fd to the poller with the given interest.
func (p *Poller) Register(fd int, in Interest) error {
	if p.closed {
		return ErrClosed
	}
	if p.fd >= 0 {
		return ErrRegistered
	}
	ev := unix.EpollEvent{Events: epollEvents(in), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	p.fd, p.interest, p.ready = fd, in, 0
	return nil
}

// SetInterest switches the registered descriptor to a new interest. Switching
// to the interest already active is a no-op and keeps the cached readiness.
func (p *Poller) SetInterest(in Interest) error {
	if p.closed {
		return ErrClosed
	}
	if p.fd < 0 {
		return ErrNotRegistered
	}
	if in == p.interest {
		return nil
	}
	ev := unix.EpollEvent{Events: epollEvents(in), Fd: int32(p.fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, p.fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	p.interest, p.ready = in, 0
	return nil
}

// Wait blocks for at most timeout until the registered descriptor is ready for
// the active interest. It returns false without error when the timeout
// elapses. Error and hang-up conditions count as ready so the following I/O
// call can report them.
func (p *Poller) Wait(timeout time.Duration) (bool, error) {
	if p.closed {
		return false, ErrClosed
	}
	if p.fd < 0 {
		return false, ErrNotRegistered
	}

	deadline := time.Now().Add(timeout)
	for {
		n, err := unix.EpollWait(p.epfd, p.events[:], toMillis(timeout))
		if err == unix.EINTR {
			timeout = time.Until(deadline)
			continue
		}
		if err != nil {
			return false, os.NewSyscallError("epoll_wait", err)
		}
		if n == 0 {
			p.ready = 0
			return false, nil
		}
		p.ready = p.interest
		return true, nil
	}
}

// Close releases the epoll instance. It is safe to call more than once.
func (p *Poller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.fd, p.ready = -1, 0
	if err := unix.Close(p.epfd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

func epollEvents(in Interest) uint32 {
	var events uint32
	if in&Read != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if in&(Connect|Write) != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}
