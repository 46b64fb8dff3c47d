//go:build unix

// Package channel implements a client-side network channel with synchronous,
// timeout-bounded request/response semantics over a non-blocking socket.
//
// A Channel talks to one remote endpoint. Connect blocks until the connection
// is established or the configured timeout elapses; Send blocks until a whole
// request has been written; Receive blocks until a whole response has been
// decoded. Blocking is emulated by waiting on a readiness multiplexer with a
// bounded timeout before every non-blocking I/O call.
//
// Connect and Disconnect are mutually exclusive and may be called from any
// goroutine. Send and Receive must not be called concurrently with each other
// or with Connect/Disconnect: the protocol is half-duplex, one request in
// flight at a time.
package channel

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/TheSmallBoat/netchannel/netpoll"
	"github.com/TheSmallBoat/netchannel/sock"
	"github.com/TheSmallBoat/netchannel/wire"
)

// Message is a request value that can encode itself.
type Message interface {
	AppendTo(dst []byte) []byte
}

// Outgoing is a request being transmitted. WriteTo performs a single write
// attempt of the remaining bytes.
type Outgoing interface {
	Completed() bool
	io.WriterTo
}

// Incoming is a response being received. ReadFrom performs a single read
// attempt; once complete, the payload is read through io.Reader.
type Incoming interface {
	Complete() bool
	io.ReaderFrom
	io.Reader
	Rewind()
}

// Encoder turns a request into an outgoing send tagged with the connection
// identity.
type Encoder func(connectionID string, msg Message) Outgoing

// Decoder creates an empty response buffer.
type Decoder func() Incoming

const (
	stateDisconnected uint32 = iota
	stateConnected
)

// Channel is a half-duplex request/response connection to one endpoint.
type Channel struct {
	cfg Config

	encoder Encoder
	decoder Decoder
	logger  *log.Logger

	mu    sync.Mutex // serializes Connect and Disconnect
	state uint32

	// sock and poller are acquired together in connect and released
	// together in teardown.
	sock   *sock.Socket
	poller *netpoll.Poller
	id     string
}

// New returns a disconnected Channel for cfg. By default requests and
// responses use size-delimited framing.
func New(cfg Config, opts ...Option) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("channel: invalid config: %w", err)
	}

	c := &Channel{
		cfg:     cfg,
		encoder: SizeDelimitedEncoder,
		decoder: SizeDelimitedDecoder(wire.Unlimited),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the configuration the channel was built with.
func (c *Channel) Config() Config { return c.cfg }

// IsConnected reports whether the last connect succeeded and no disconnect
// has happened since.
func (c *Channel) IsConnected() bool {
	return atomic.LoadUint32(&c.state) == stateConnected
}

// ConnectionID identifies the current connection as
// "localHost:localPort-remoteHost:remotePort". It is empty while
// disconnected.
func (c *Channel) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Connect establishes the connection if the channel is not connected yet.
// Failures are not returned: the channel is torn down, the failure is logged,
// and callers learn the outcome from IsConnected. Use TryConnect to get the
// failure as an error.
func (c *Channel) Connect() {
	if err := c.TryConnect(); err != nil {
		c.logger.Printf("Channel to %s is disconnected: %v", c.cfg.Addr(), err)
	}
}

// TryConnect is Connect reporting the failure. On error the channel is left
// disconnected with all resources released, and the error is a
// *ConnectError.
func (c *Channel) TryConnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsConnected() {
		return nil
	}

	if err := c.connect(); err != nil {
		c.teardown()
		return &ConnectError{Addr: c.cfg.Addr(), Err: err}
	}
	return nil
}

func (c *Channel) connect() error {
	addr, err := sock.ResolveTCPAddr(c.cfg.Host, c.cfg.Port)
	if err != nil {
		return err
	}

	c.poller, err = netpoll.New()
	if err != nil {
		return err
	}
	c.sock, err = sock.Open(addr)
	if err != nil {
		return err
	}

	if c.cfg.ReadBufferSize > 0 {
		if err := c.sock.SetReceiveBufferSize(c.cfg.ReadBufferSize); err != nil {
			return err
		}
	}
	if c.cfg.WriteBufferSize > 0 {
		if err := c.sock.SetSendBufferSize(c.cfg.WriteBufferSize); err != nil {
			return err
		}
	}
	if err := c.sock.SetKeepAlive(true); err != nil {
		return err
	}
	if err := c.sock.SetNoDelay(true); err != nil {
		return err
	}

	if err := c.poller.Register(c.sock.Fd(), netpoll.Connect); err != nil {
		return err
	}

	connected, err := c.sock.Connect(addr)
	if err != nil {
		return err
	}
	if !connected {
		if _, err := c.poller.Wait(c.cfg.Timeout); err != nil {
			return err
		}
		connected, err = c.sock.FinishConnect()
		if err != nil {
			return err
		}
		if !connected {
			return fmt.Errorf("%w after %s", ErrConnectTimeout, c.cfg.Timeout)
		}
	}

	if err := c.poller.SetInterest(netpoll.Read); err != nil {
		return err
	}

	local, err := c.sock.LocalAddr()
	if err != nil {
		return err
	}
	remote, err := c.sock.RemoteAddr()
	if err != nil {
		return err
	}

	c.id = connectionID(local, remote)
	atomic.StoreUint32(&c.state, stateConnected)
	return nil
}

// Disconnect releases the connection. It is safe to call at any time and more
// than once.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardown()
}

// teardown closes the poller and the socket independently of each other and
// discards close errors.
func (c *Channel) teardown() {
	atomic.StoreUint32(&c.state, stateDisconnected)

	if c.poller != nil {
		_ = c.poller.Close()
	}
	if c.sock != nil {
		_ = c.sock.Close()
	}

	c.poller = nil
	c.sock = nil
	c.id = ""
}

// Send writes msg in full and returns the number of bytes written. Each wait
// for writability is bounded by the configured timeout; if one elapses before
// the request is complete, Send fails with ErrWriteTimeout and the channel
// should be disconnected.
func (c *Channel) Send(msg Message) (int64, error) {
	if !c.IsConnected() {
		return 0, ErrNotConnected
	}

	out := c.encoder(c.id, msg)
	if out.Completed() {
		return 0, nil
	}
	defer abandon(out)

	if err := c.poller.SetInterest(netpoll.Write); err != nil {
		return 0, fmt.Errorf("channel: send: %w", err)
	}

	var written int64
	for !out.Completed() {
		if !c.poller.Ready(netpoll.Write) {
			ready, err := c.poller.Wait(c.cfg.Timeout)
			if err != nil {
				return written, fmt.Errorf("channel: send: %w", err)
			}
			if !ready {
				return written, fmt.Errorf("%w after %s (%d bytes written)", ErrWriteTimeout, c.cfg.Timeout, written)
			}
		}

		n, err := out.WriteTo(c.sock)
		written += n
		if err != nil && !errors.Is(err, sock.ErrWouldBlock) {
			return written, fmt.Errorf("channel: send: %w", err)
		}
		if err != nil || n == 0 {
			c.poller.Clear()
		}
	}

	if err := c.poller.SetInterest(netpoll.Read); err != nil {
		return written, fmt.Errorf("channel: send: %w", err)
	}
	return written, nil
}

// Receive reads one whole response. Each wait for readability is bounded by
// the configured timeout; if one elapses before the response is complete,
// Receive fails with ErrReadTimeout and the partial response is dropped. The
// returned response is rewound to the start of its payload.
func (c *Channel) Receive() (Incoming, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	if err := c.poller.SetInterest(netpoll.Read); err != nil {
		return nil, fmt.Errorf("channel: receive: %w", err)
	}

	in := c.decoder()
	if err := c.receive(in); err != nil {
		drop(in)
		return nil, err
	}

	in.Rewind()
	return in, nil
}

func (c *Channel) receive(in Incoming) error {
	for !in.Complete() {
		if !c.poller.Ready(netpoll.Read) {
			ready, err := c.poller.Wait(c.cfg.Timeout)
			if err != nil {
				return fmt.Errorf("channel: receive: %w", err)
			}
			if !ready {
				return fmt.Errorf("%w after %s", ErrReadTimeout, c.cfg.Timeout)
			}
		}

		n, err := in.ReadFrom(c.sock)
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("channel: receive: %w", ErrClosedByPeer)
		case err != nil && !errors.Is(err, sock.ErrWouldBlock):
			return fmt.Errorf("channel: receive: %w", err)
		case err != nil || n == 0:
			c.poller.Clear()
		}
	}
	return nil
}

// abandon hands back the buffers of a send that failed before completion.
func abandon(out Outgoing) {
	if r, ok := out.(interface{ Release() }); ok && !out.Completed() {
		r.Release()
	}
}

// drop hands back the buffers of a response that failed before completion.
func drop(in Incoming) {
	if r, ok := in.(interface{ Release() }); ok {
		r.Release()
	}
}

func connectionID(local, remote *net.TCPAddr) string {
	return net.JoinHostPort(local.IP.String(), strconv.Itoa(local.Port)) + "-" +
		net.JoinHostPort(remote.IP.String(), strconv.Itoa(remote.Port))
}
