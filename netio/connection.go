package netio

import (
	"bytes"
	"net"
	"time"

	"github.com/rs/xid"
)

// Connection is one live socket record.
// Grounded on Regentag-go1090's reliance on patrickmn/go-cache for stable
// keys; here the stable id comes from rs/xid the way
// runZeroInc/sockstats keys its TCPInfoCollector entries by connection
// identity rather than raw fd number.
type Connection struct {
	ID xid.ID

	Service *Service
	ref     ref

	conn   net.Conn
	Remote net.Addr

	Accepted  bool // true if this came from Accept, false if Connect (active)
	KeepAlive bool
	GzipOK    bool

	sendBuf bytes.Buffer

	BytesIn  uint64
	BytesOut uint64

	OpenedAt time.Time
	closed   bool
}

func newConnection(svc *Service, c net.Conn, accepted bool) *Connection {
	return &Connection{
		ID:       xid.New(),
		Service:  svc,
		conn:     c,
		Remote:   c.RemoteAddr(),
		Accepted: accepted,
		OpenedAt: time.Now(),
	}
}

// Write queues data for the connection's socket, accounting bytes out.
// Any bytes already parked in sendBuf from an earlier stall are flushed
// first, so a second Write arriving while a retry is still pending can
// never reorder the stream ahead of what's already queued.
func (c *Connection) Write(p []byte) (int, error) {
	if c.sendBuf.Len() > 0 {
		if _, err := c.flush(); err != nil {
			return 0, err
		}
		if c.sendBuf.Len() > 0 {
			// still draining from an earlier stall; queue behind it
			c.sendBuf.Write(p)
			return len(p), nil
		}
	}

	n, err := c.conn.Write(p)
	c.BytesOut += uint64(n)
	if n < len(p) {
		c.sendBuf.Write(p[n:])
	}
	return n, err
}

// flush retries writing bytes parked in sendBuf, returning how many it
// managed to drain.
func (c *Connection) flush() (int, error) {
	if c.sendBuf.Len() == 0 {
		return 0, nil
	}
	n, err := c.conn.Write(c.sendBuf.Bytes())
	c.sendBuf.Next(n)
	c.BytesOut += uint64(n)
	return n, err
}

// FlushPending retries any bytes sendBuf accumulated during a stall. The
// reactor's write-retry sweep (reactor.go writeRetryLoop) calls this
// periodically via the EvWrite event, so a stalled write eventually
// drains without the connection needing another Write call to trigger it.
func (c *Connection) FlushPending() (int, error) {
	return c.flush()
}

// Pending reports whether bytes are parked in sendBuf awaiting retry.
func (c *Connection) Pending() bool {
	return c.sendBuf.Len() > 0
}

func (c *Connection) close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
