package channel

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("channel not connected")
	ErrConnectTimeout = errors.New("connect timed out")
	ErrWriteTimeout   = errors.New("write timed out")
	ErrReadTimeout    = errors.New("read timed out")
	ErrClosedByPeer   = errors.New("connection closed by peer")
)

// ConnectError describes why a connect attempt failed. The channel has been
// torn down by the time it is returned.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to '%s': %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
