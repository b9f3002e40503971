package netio

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeAddr is a minimal net.Addr for tests that never resolve a real
// socket.
type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

// stallingConn is a net.Conn whose Write can be told to accept fewer
// bytes than requested on specific calls, to exercise the sendBuf
// stall/retry path without a real socket. Calls past len(accepts)
// write everything.
type stallingConn struct {
	net.Conn
	remote  net.Addr
	accepts []int
	failErr error // when set, every Write returns this error
	calls   int
}

func (c *stallingConn) Write(p []byte) (int, error) {
	n := len(p)
	if c.calls < len(c.accepts) {
		n = c.accepts[c.calls]
		if n > len(p) {
			n = len(p)
		}
	}
	c.calls++
	if c.failErr != nil {
		return n, c.failErr
	}
	return n, nil
}

func (c *stallingConn) RemoteAddr() net.Addr { return c.remote }
func (c *stallingConn) Close() error         { return nil }

func Test_Connection_Write_buffersShortWrite(t *testing.T) {
	sc := &stallingConn{remote: fakeAddr("1.2.3.4:1"), accepts: []int{3}}
	c := &Connection{conn: sc}

	n, err := c.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, c.Pending())

	flushed, err := c.FlushPending()
	assert.NoError(t, err)
	assert.Equal(t, 2, flushed)
	assert.False(t, c.Pending())
}

func Test_Connection_Write_queuesBehindPendingFlushInOrder(t *testing.T) {
	sc := &stallingConn{remote: fakeAddr("1.2.3.4:1"), accepts: []int{0, 0}}
	c := &Connection{conn: sc}

	n, err := c.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 0, n) // the socket itself accepted nothing this call
	assert.True(t, c.Pending())

	n, err = c.Write([]byte(" world"))
	assert.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "hello world", c.sendBuf.String())

	flushed, err := c.FlushPending()
	assert.NoError(t, err)
	assert.Equal(t, len("hello world"), flushed)
	assert.False(t, c.Pending())
}

func Test_Connection_FlushPending_noopWhenNothingPending(t *testing.T) {
	sc := &stallingConn{remote: fakeAddr("1.2.3.4:1")}
	c := &Connection{conn: sc}

	n, err := c.FlushPending()
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}
