//go:build unix

package netpoll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestPollerReadTimeout(t *testing.T) {
	a, _ := socketPair(t)

	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Register(a, Read))

	start := time.Now()
	ready, err := p.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ready)
	require.False(t, p.Ready(Read))
	require.GreaterOrEqual(t, int64(time.Since(start)), int64(40*time.Millisecond))
}

func TestPollerReadReady(t *testing.T) {
	a, b := socketPair(t)

	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Register(a, Read))

	_, err = unix.Write(b, []byte("hello"))
	require.NoError(t, err)

	ready, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.True(t, ready)
	require.True(t, p.Ready(Read))
	require.False(t, p.Ready(Write))

	p.Clear()
	require.False(t, p.Ready(Read))
}

func TestPollerSetInterest(t *testing.T) {
	a, _ := socketPair(t)

	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Register(a, Read))
	require.Equal(t, Read, p.Interest())

	require.NoError(t, p.SetInterest(Write))
	require.Equal(t, Write, p.Interest())

	// an idle socket pair always has room to write
	ready, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.True(t, ready)
	require.True(t, p.Ready(Write))

	// same interest keeps the cached readiness
	require.NoError(t, p.SetInterest(Write))
	require.True(t, p.Ready(Write))

	require.NoError(t, p.SetInterest(Read))
	require.False(t, p.Ready(Write))
	require.False(t, p.Ready(Read))
}

func TestPollerRegisterTwice(t *testing.T) {
	a, b := socketPair(t)

	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Register(a, Read))
	require.ErrorIs(t, p.Register(b, Read), ErrRegistered)
}

func TestPollerNotRegistered(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Wait(time.Millisecond)
	require.ErrorIs(t, err, ErrNotRegistered)
	require.ErrorIs(t, p.SetInterest(Write), ErrNotRegistered)
}

func TestPollerClose(t *testing.T) {
	a, _ := socketPair(t)

	p, err := New()
	require.NoError(t, err)
	require.NoError(t, p.Register(a, Read))

	require.False(t, p.Closed())
	require.NoError(t, p.Close())
	require.True(t, p.Closed())
	require.NoError(t, p.Close())

	_, err = p.Wait(time.Millisecond)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, p.SetInterest(Write), ErrClosed)
	require.ErrorIs(t, p.Register(a, Read), ErrClosed)
}

func TestInterestString(t *testing.T) {
	require.Equal(t, "none", Interest(0).String())
	require.Equal(t, "read", Read.String())
	require.Equal(t, "connect|write", (Connect | Write).String())
}

func TestToMillis(t *testing.T) {
	require.Equal(t, 0, toMillis(0))
	require.Equal(t, 0, toMillis(-time.Second))
	require.Equal(t, 1, toMillis(time.Microsecond))
	require.Equal(t, 250, toMillis(250*time.Millisecond))
	require.Equal(t, 251, toMillis(250*time.Millisecond+time.Nanosecond))
}
