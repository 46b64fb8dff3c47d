//go:build unix

package channel

import (
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/lithdew/bytesutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// mockServer is an in-process remote. Each accepted connection is handed to
// handler on its own goroutine; done is closed when the server shuts down.
type mockServer struct {
	ln      net.Listener
	handler func(conn net.Conn, done <-chan struct{})
	done    chan struct{}

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns []net.Conn
}

func startServer(t *testing.T, handler func(conn net.Conn, done <-chan struct{})) *mockServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &mockServer{ln: ln, handler: handler, done: make(chan struct{})}
	s.wg.Add(1)
	go s.serve()
	return s
}

func (s *mockServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		select {
		case <-s.done:
			s.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		s.conns = append(s.conns, conn)
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handler(conn, s.done)
		}()
	}
}

func (s *mockServer) Close() {
	close(s.done)
	_ = s.ln.Close()

	s.mu.Lock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *mockServer) config(timeout time.Duration) Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            s.ln.Addr().(*net.TCPAddr).Port,
		ReadBufferSize:  UseDefaultBufferSize,
		WriteBufferSize: UseDefaultBufferSize,
		Timeout:         timeout,
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, bytesutil.Uint32BE(header[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	buf := bytesutil.AppendUint32BE(make([]byte, 0, 4+len(payload)), uint32(len(payload)))
	_, err := w.Write(append(buf, payload...))
	return err
}

// echoFrames answers every size-delimited request with the same frame.
func echoFrames(conn net.Conn, done <-chan struct{}) {
	for {
		payload, err := readFrame(conn)
		if err != nil {
			return
		}
		if err := writeFrame(conn, payload); err != nil {
			return
		}
	}
}

// replyImmediately writes payload as soon as the connection is accepted and
// then drains whatever the client sends.
func replyImmediately(payload []byte) func(net.Conn, <-chan struct{}) {
	return func(conn net.Conn, done <-chan struct{}) {
		if err := writeFrame(conn, payload); err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, conn)
	}
}

// discard reads everything and never answers.
func discard(conn net.Conn, done <-chan struct{}) {
	_, _ = io.Copy(io.Discard, conn)
}

// stall neither reads nor writes until the server shuts down.
func stall(conn net.Conn, done <-chan struct{}) {
	<-done
}

// hangUp closes the connection right after accepting it.
func hangUp(conn net.Conn, done <-chan struct{}) {}

// freePort returns a loopback port nothing is listening on.
func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// saturatedListener returns the port of a loopback listener that never
// accepts and whose accept queue is already full, so further handshakes
// stall until the client gives up.
func saturatedListener(t *testing.T) int {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fd) })

	require.NoError(t, unix.Bind(fd, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, unix.Listen(fd, 0))

	sa, err := unix.Getsockname(fd)
	require.NoError(t, err)
	port := sa.(*unix.SockaddrInet4).Port

	filler, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = filler.Close() })

	return port
}
