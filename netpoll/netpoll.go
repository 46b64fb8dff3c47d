//go:build unix

// Package netpoll provides a readiness multiplexer bound to a single file
// descriptor. It is the primitive the channel uses to emulate blocking I/O
// with deadlines on top of a non-blocking socket: every wait is bounded, and
// the result of the last wait is cached so callers can skip a redundant wait
// when the descriptor is already known to be ready.
//
// A Poller is not safe for concurrent use.
package netpoll

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrClosed        = errors.New("netpoll: poller closed")
	ErrNotRegistered = errors.New("netpoll: no descriptor registered")
	ErrRegistered    = errors.New("netpoll: descriptor already registered")
)

// Interest is the I/O direction a Poller waits on. Exactly one interest is
// active at a time.
type Interest uint8

const (
	Connect Interest = 1 << iota
	Read
	Write
)

func (in Interest) String() string {
	var parts []string
	if in&Connect != 0 {
		parts = append(parts, "connect")
	}
	if in&Read != 0 {
		parts = append(parts, "read")
	}
	if in&Write != 0 {
		parts = append(parts, "write")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Ready reports whether the last Wait observed readiness for in. The cache is
// reset by Clear, SetInterest and every subsequent Wait.
func (p *Poller) Ready(in Interest) bool { return p.ready&in != 0 }

// Clear drops the cached readiness, forcing the next caller to Wait. Call it
// after an I/O attempt reports that it would block.
func (p *Poller) Clear() { p.ready = 0 }

// Interest returns the interest the descriptor is currently registered for.
func (p *Poller) Interest() Interest { return p.interest }

// Closed reports whether Close has been called.
func (p *Poller) Closed() bool { return p.closed }

// toMillis rounds a timeout up to whole milliseconds so that a short positive
// timeout never turns into a non-blocking poll.
func toMillis(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}
