package netio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_dispatch_acceptAddsConnectionAndBumpsStats(t *testing.T) {
	svc := NewService(RawIn, "RAW_IN", "tcp", 0)
	r := NewReactor(nil)
	conn := newConnection(svc, &stallingConn{remote: fakeAddr("203.0.113.5:4000")}, true)

	r.dispatch(Event{Type: EvAccept, Conn: conn, Svc: svc})

	assert.EqualValues(t, 1, svc.Accepts)
	assert.Equal(t, 1, svc.OpenCount())
	assert.Equal(t, 1, r.Unique.Count())
}

func Test_dispatch_acceptDeniedClosesConnectionWithoutAdding(t *testing.T) {
	svc := NewService(RawIn, "RAW_IN", "tcp", 0)
	dl, err := ParseCIDRList("203.0.113.0/24")
	assert.NoError(t, err)
	svc.Deny = dl
	r := NewReactor(nil)
	conn := newConnection(svc, &stallingConn{remote: fakeAddr("203.0.113.5:4000")}, true)

	r.dispatch(Event{Type: EvAccept, Conn: conn, Svc: svc})

	assert.EqualValues(t, 0, svc.Accepts)
	assert.Equal(t, 0, svc.OpenCount())
}

func Test_dispatch_acceptFromLoopbackSkipsDenyAndUniqueTracking(t *testing.T) {
	svc := NewService(RawIn, "RAW_IN", "tcp", 0)
	dl, err := ParseCIDRList("127.0.0.0/8")
	assert.NoError(t, err)
	svc.Deny = dl
	r := NewReactor(nil)
	conn := newConnection(svc, &stallingConn{remote: fakeAddr("127.0.0.1:4000")}, true)

	r.dispatch(Event{Type: EvAccept, Conn: conn, Svc: svc})

	assert.EqualValues(t, 1, svc.Accepts, "loopback connections are never deny-checked")
	assert.Equal(t, 1, svc.OpenCount())
	assert.Equal(t, 0, r.Unique.Count())
}

func Test_dispatch_connectAddsConnectionAndBumpsConnects(t *testing.T) {
	svc := NewActiveService(SbsOut, "SBS_OUT", "tcp", "example.invalid", 30003)
	r := NewReactor(nil)
	conn := newConnection(svc, &stallingConn{remote: fakeAddr("198.51.100.9:9")}, false)

	r.dispatch(Event{Type: EvConnect, Conn: conn, Svc: svc})

	assert.EqualValues(t, 1, svc.Connects)
	assert.Equal(t, 1, svc.OpenCount())
}

func Test_dispatch_closeRemovesConnection(t *testing.T) {
	svc := NewService(RawIn, "RAW_IN", "tcp", 0)
	r := NewReactor(nil)
	conn := newConnection(svc, &stallingConn{remote: fakeAddr("203.0.113.5:4000")}, true)
	r.dispatch(Event{Type: EvAccept, Conn: conn, Svc: svc})
	assert.Equal(t, 1, svc.OpenCount())

	r.dispatch(Event{Type: EvClose, Conn: conn, Svc: svc})

	assert.Equal(t, 0, svc.OpenCount())
	assert.EqualValues(t, 1, svc.Removes)
}

func Test_dispatch_errorOnAcceptedConnectionRemovesItWithoutShutdown(t *testing.T) {
	svc := NewService(RawIn, "RAW_IN", "tcp", 0)
	r := NewReactor(nil)
	conn := newConnection(svc, &stallingConn{remote: fakeAddr("203.0.113.5:4000")}, true)
	r.dispatch(Event{Type: EvAccept, Conn: conn, Svc: svc})

	r.dispatch(Event{Type: EvError, Conn: conn, Svc: svc, Err: errors.New("connection reset by peer")})

	assert.Equal(t, 0, svc.OpenCount())
	assert.EqualValues(t, 1, svc.Removes)
	select {
	case <-r.Done():
		t.Fatal("a transient per-client error must not signal shutdown")
	default:
	}
}

func Test_dispatch_errorOnActiveConnectionRecordsErrorAndSignalsShutdown(t *testing.T) {
	svc := NewActiveService(SbsOut, "SBS_OUT", "tcp", "example.invalid", 30003)
	r := NewReactor(nil)

	r.dispatch(Event{Type: EvError, Svc: svc, Err: errors.New("boom")})

	assert.Equal(t, "boom", svc.LastError)
	select {
	case <-r.Done():
	default:
		t.Fatal("a fatal active-connect error must signal shutdown")
	}
}

func Test_dispatch_evWriteFlushesPendingAndAccountsServiceBytes(t *testing.T) {
	svc := NewService(RawOut, "RAW_OUT", "tcp", 0)
	conn := newConnection(svc, &stallingConn{remote: fakeAddr("9.9.9.9:1")}, true)
	conn.sendBuf.WriteString("pending")
	r := NewReactor(nil)

	r.dispatch(Event{Type: EvWrite, Conn: conn, Svc: svc})

	assert.False(t, conn.Pending())
	assert.EqualValues(t, len("pending"), svc.BytesOut)
}

func Test_dispatch_evWriteErrorOnAcceptedConnectionClosesIt(t *testing.T) {
	svc := NewService(RawOut, "RAW_OUT", "tcp", 0)
	conn := newConnection(svc, &stallingConn{remote: fakeAddr("9.9.9.9:1"), failErr: errors.New("broken pipe")}, true)
	conn.sendBuf.WriteString("pending")
	r := NewReactor(nil)
	r.dispatch(Event{Type: EvAccept, Conn: conn, Svc: svc})
	assert.Equal(t, 1, svc.OpenCount())

	r.dispatch(Event{Type: EvWrite, Conn: conn, Svc: svc})

	assert.Equal(t, 0, svc.OpenCount())
}

func Test_dispatch_evWriteErrorOnActiveConnectionSignalsShutdown(t *testing.T) {
	svc := NewActiveService(SbsOut, "SBS_OUT", "tcp", "example.invalid", 30003)
	conn := newConnection(svc, &stallingConn{remote: fakeAddr("9.9.9.9:1"), failErr: errors.New("broken pipe")}, false)
	conn.sendBuf.WriteString("pending")
	r := NewReactor(nil)

	r.dispatch(Event{Type: EvWrite, Conn: conn, Svc: svc})

	assert.Equal(t, "broken pipe", svc.LastError)
	select {
	case <-r.Done():
	default:
		t.Fatal("a fatal write error on an active connection must signal shutdown")
	}
}

// Test_dialActive_unreachableHostTimesOutWithinFiveSeconds exercises
// spec.md §8 Seed Scenario 6: an active connect to a host that never
// answers must fail with a recorded error and a shutdown signal within
// the 5s active-connect timeout (reactor.go activeConnectTimeout).
// 192.0.2.0/24 is the TEST-NET-1 block (RFC 5737): reserved, never
// routed, so the dial either blocks until our own timeout fires or
// fails immediately if the sandbox has no route to it at all — either
// way dispatch must still record the error and signal shutdown.
func Test_dialActive_unreachableHostTimesOutWithinFiveSeconds(t *testing.T) {
	svc := NewActiveService(RawOut, "RAW_OUT_ACTIVE", "tcp", "192.0.2.1", 1)
	r := NewReactor(nil)
	r.Register(svc)

	start := time.Now()
	go r.dialActive(svc)

	var ev Event
	select {
	case ev = <-r.events:
	case <-time.After(6 * time.Second):
		t.Fatal("active connect did not fail within the 5s timeout budget")
	}
	elapsed := time.Since(start)

	assert.Equal(t, EvError, ev.Type)
	assert.Error(t, ev.Err)
	assert.Less(t, elapsed, 6*time.Second)
	if elapsed >= 4500*time.Millisecond {
		assert.Contains(t, ev.Err.Error(), "Timeout in connection to host")
	}

	r.dispatch(ev)

	assert.NotEmpty(t, svc.LastError)
	select {
	case <-r.Done():
	default:
		t.Fatal("a fatal active-connect failure must signal shutdown")
	}
}
