//go:build unix && !linux

package netpoll

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Poller waits for readiness of one registered descriptor using poll(2).
// There is no kernel object to own, so Close only invalidates the Poller.
type Poller struct {
	fd       int
	interest Interest
	ready    Interest
	closed   bool

	fds [1]unix.PollFd
}

// New creates a Poller.
func New() (*Poller, error) {
	return &Poller{fd: -1}, nil
}

// Register binds fd to the poller with the given interest.
func (p *Poller) Register(fd int, in Interest) error {
	if p.closed {
		return ErrClosed
	}
	if p.fd >= 0 {
		return ErrRegistered
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
	p.interest, p.ready = in, 0
	return nil
}

// Wait blocks for at most timeout until the registered descriptor is ready for
// the active interest. It returns false without error when the timeout
// elapses.
func (p *Poller) Wait(timeout time.Duration) (bool, error) {
	if p.closed {
		return false, ErrClosed
	}
	if p.fd < 0 {
		return false, ErrNotRegistered
	}

	p.fds[0] = unix.PollFd{Fd: int32(p.fd), Events: pollEvents(p.interest)}

	deadline := time.Now().Add(timeout)
	for {
		n, err := unix.Poll(p.fds[:], toMillis(timeout))
		if err == unix.EINTR {
			timeout = time.Until(deadline)
			continue
		}
		if err != nil {
			return false, os.NewSyscallError("poll", err)
		}
		if n == 0 || p.fds[0].Revents == 0 {
			p.ready = 0
			return false, nil
		}
		p.ready = p.interest
		return true, nil
	}
}

// Close invalidates the Poller. It is safe to call more than once.
func (p *Poller) Close() error {
	p.closed = true
	p.fd, p.ready = -1, 0
	return nil
}

func pollEvents(in Interest) int16 {
	var events int16
	if in&Read != 0 {
		events |= unix.POLLIN
	}
	if in&(Connect|Write) != 0 {
		events |= unix.POLLOUT
	}
	return events
}
