package channel

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"
)

// UseDefaultBufferSize leaves a socket buffer at the operating system
// default. Any value <= 0 has the same effect.
const UseDefaultBufferSize = -1

// Config is fixed for the lifetime of a Channel.
type Config struct {
	Host string
	Port int

	ReadBufferSize  int
	WriteBufferSize int

	// Timeout bounds the connect wait and every single readiness wait during
	// Send and Receive.
	Timeout time.Duration
}

func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("host must not be empty")
	}
	if c.Port <= 0 || c.Port > math.MaxUint16 {
		return fmt.Errorf("'%d' is an invalid port", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("'%s' is an invalid timeout: it must be positive", c.Timeout)
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
