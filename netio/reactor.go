// Package netio implements the network service fabric:
// a cooperative reactor hosting the RAW_IN, RAW_OUT, SBS_IN and SBS_OUT
// services, with per-service connection arenas, access control and
// active-connect timeouts. HTTP is served by net/http and decoded frames
// are fanned out by the root go1090 package, not by this package.
//
// Grounded on Regentag-go1090's single goroutine + go-cache style of
// owning all mutable state from one place, generalized from the
// original_source/ Mongoose-based net_io.c reactor: every state
// mutation (arena insert/remove, byte counters, deny checks) funnels
// through dispatch(), which runs on exactly one goroutine, so raw
// socket I/O can use ordinary blocking goroutines per Go convention
// while the bookkeeping itself stays single-threaded: no shared
// mutable state is ever accessed from more than one goroutine.
package netio

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventType is the unified handler's event tag.
type EventType int

const (
	EvOpen EventType = iota
	EvPoll
	EvResolve
	EvConnect
	EvAccept
	EvRead
	EvWrite
	EvClose
	EvError
)

// Event is one item flowing through the reactor's single dispatch
// point.
type Event struct {
	Type EventType
	Conn *Connection
	Svc  *Service
	Data []byte
	Err  error
}

// Stats is the structured shutdown report: bytes in/out, connects,
// accepts, removes, unknowns per service. Report leaves HTTPStatus nil;
// HTTP status counts are kept only in httpapi.Server.StatusCounts. The
// demod/CPR buckets live on their own packages' Stats types; this is
// the network-fabric slice.
type Stats struct {
	PerService map[string]ServiceStats
	HTTPStatus map[int]uint64
}

// ServiceStats is one service's slice of the shutdown report.
type ServiceStats struct {
	BytesIn, BytesOut          uint64
	Connects, Accepts, Removes uint64
	Unknowns                   uint64
	LastError                  string
}

// Reactor owns every socket and service descriptor.
type Reactor struct {
	mu       sync.Mutex
	services map[ServiceKind]*Service

	events chan Event

	Unique *UniqueIPSet

	onRead func(svc *Service, conn *Connection, data []byte)

	exitCh   chan struct{}
	exitOnce sync.Once
}

// NewReactor builds an empty reactor. onRead is invoked exactly once
// per Read event, for RAW_IN and SBS_IN connections only — it is the caller's job (go1090.go) to
// own per-connection incremental framing (beast.Framer / sbs.LineReader),
// keyed by Connection.ID, since that's a concern of the wire-format
// packages, not the reactor itself.
func NewReactor(onRead func(svc *Service, conn *Connection, data []byte)) *Reactor {
	return &Reactor{
		services: make(map[ServiceKind]*Service),
		events:   make(chan Event, 256),
		Unique:   NewUniqueIPSet(),
		onRead:   onRead,
		exitCh:   make(chan struct{}),
	}
}

// Register adds a service descriptor to the reactor before Serve.
func (r *Reactor) Register(svc *Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[svc.Kind] = svc
}

// Service looks up a registered descriptor by kind.
func (r *Reactor) Service(kind ServiceKind) *Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.services[kind]
}

// Done reports whether shutdown has been signalled.
func (r *Reactor) Done() <-chan struct{} { return r.exitCh }

func (r *Reactor) signalShutdown() {
	r.exitOnce.Do(func() { close(r.exitCh) })
}

// Serve starts every registered service's accept/connect loop and then
// runs the single dispatch loop until Shutdown is called or an
// actively-initiated connection fails fatally. It returns once the
// dispatch loop has drained and every listener is closed.
func (r *Reactor) Serve() error {
	r.mu.Lock()
	services := make([]*Service, 0, len(r.services))
	for _, s := range r.services {
		services = append(services, s)
	}
	r.mu.Unlock()

	for _, svc := range services {
		if svc.RemoteHost != "" {
			go r.dialActive(svc)
		} else {
			if err := r.listen(svc); err != nil {
				return err
			}
		}
	}

	go r.writeRetryLoop(services)

	r.loop()
	r.shutdownAll(services)
	return nil
}

// Shutdown signals the dispatch loop to exit on its next event, the
// cooperative equivalent of a signal handler setting a single exit flag.
func (r *Reactor) Shutdown() { r.signalShutdown() }

func (r *Reactor) loop() {
	for {
		select {
		case ev := <-r.events:
			r.dispatch(ev)
		case <-r.exitCh:
			r.drain()
			return
		}
	}
}

// drain lets any already-queued events (typically Close events from
// sockets unwinding after Shutdown) flush before the loop returns, a
// short grace period for pending closes to propagate.
func (r *Reactor) drain() {
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case ev := <-r.events:
			r.dispatch(ev)
		case <-deadline:
			return
		}
	}
}

func (r *Reactor) listen(svc *Service) error {
	ln, err := net.Listen(svc.Transport, net.JoinHostPort("0.0.0.0", portString(svc.Port)))
	if err != nil {
		log.Errorf("[NET][%s] listen failed: %v", svc.Name, err)
		return err
	}
	svc.listener = ln
	go r.acceptLoop(svc)
	return nil
}

func (r *Reactor) acceptLoop(svc *Service) {
	for {
		c, err := svc.listener.Accept()
		if err != nil {
			select {
			case <-r.exitCh:
				return
			default:
			}
			log.Warnf("[NET][%s] accept error: %v", svc.Name, err)
			return
		}
		conn := newConnection(svc, c, true)
		r.events <- Event{Type: EvAccept, Conn: conn, Svc: svc}
		go r.readLoop(conn)
	}
}

// dialActive connects out for a service configured in active mode,
// arming the one-shot active-connect timeout: 5s for TCP, disabled for
// UDP.
func (r *Reactor) dialActive(svc *Service) {
	addr := net.JoinHostPort(svc.RemoteHost, portString(svc.RemotePort))

	timeout := activeConnectTimeout
	if svc.Transport == "udp" {
		timeout = 0
	}

	var c net.Conn
	var err error
	if timeout > 0 {
		c, err = net.DialTimeout(svc.Transport, addr, timeout)
	} else {
		c, err = net.Dial(svc.Transport, addr)
	}

	if err != nil {
		if timeout > 0 {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				err = errTimeout(addr)
			}
		}
		r.events <- Event{Type: EvError, Svc: svc, Err: err}
		return
	}

	conn := newConnection(svc, c, false)
	r.events <- Event{Type: EvConnect, Conn: conn, Svc: svc}
	r.readLoop(conn)
}

// writeRetryInterval is how often the reactor sweeps every connection
// for bytes still parked in sendBuf and retries flushing them, the
// concrete realization of spec.md §4.3's "a per-connection send buffer
// absorbs short write stalls".
const writeRetryInterval = 50 * time.Millisecond

// writeRetryLoop periodically emits an EvWrite event for every
// connection with pending buffered bytes, so a short write that stalled
// during a publish eventually drains without needing another Write call
// to notice it.
func (r *Reactor) writeRetryLoop(services []*Service) {
	ticker := time.NewTicker(writeRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, svc := range services {
				svc.Each(func(c *Connection) {
					if c.Pending() {
						r.events <- Event{Type: EvWrite, Conn: c, Svc: svc}
					}
				})
			}
		case <-r.exitCh:
			return
		}
	}
}

func (r *Reactor) readLoop(conn *Connection) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			r.events <- Event{Type: EvRead, Conn: conn, Svc: conn.Service, Data: data}
		}
		if err != nil {
			if conn.Accepted {
				r.events <- Event{Type: EvClose, Conn: conn, Svc: conn.Service}
			} else {
				r.events <- Event{Type: EvError, Conn: conn, Svc: conn.Service, Err: err}
			}
			return
		}
	}
}

func (r *Reactor) dispatch(ev Event) {
	switch ev.Type {
	case EvOpen, EvPoll, EvResolve:
		// no work at the core level

	case EvAccept:
		svc := ev.Svc
		host := hostOf(ev.Conn.Remote)
		if !isLoopback(host) {
			r.Unique.Observe(host, svc.Name, time.Now().UnixNano())
			if ip := net.ParseIP(host); ip != nil && svc.Deny.Denied(ip) {
				log.Infof("[NET][%s] denied connection from %s", svc.Name, host)
				_ = ev.Conn.close()
				return
			}
		}
		svc.addConn(ev.Conn)
		svc.mu.Lock()
		svc.Accepts++
		svc.mu.Unlock()

	case EvConnect:
		svc := ev.Svc
		svc.addConn(ev.Conn)
		svc.mu.Lock()
		svc.Connects++
		svc.mu.Unlock()

	case EvRead:
		svc := ev.Svc
		svc.mu.Lock()
		svc.BytesIn += uint64(len(ev.Data))
		svc.mu.Unlock()
		ev.Conn.BytesIn += uint64(len(ev.Data))

		if (svc.Kind == RawIn || svc.Kind == SbsIn) && r.onRead != nil {
			r.onRead(svc, ev.Conn, ev.Data)
		}

	case EvWrite:
		conn := ev.Conn
		if conn == nil {
			return
		}
		svc := ev.Svc
		n, err := conn.FlushPending()
		if n > 0 && svc != nil {
			svc.mu.Lock()
			svc.BytesOut += uint64(n)
			svc.mu.Unlock()
		}
		if err != nil {
			if conn.Accepted {
				if svc != nil {
					svc.removeConn(conn)
				}
				_ = conn.close()
			} else if svc != nil {
				svc.LastError = err.Error()
				log.Errorf("[NET][%s] write error: %v", svc.Name, err)
				r.signalShutdown()
			}
		}

	case EvClose:
		svc := ev.Svc
		svc.removeConn(ev.Conn)
		_ = ev.Conn.close()

	case EvError:
		if ev.Conn != nil && ev.Conn.Accepted {
			ev.Conn.Service.removeConn(ev.Conn)
			_ = ev.Conn.close()
			return
		}
		if ev.Svc != nil {
			ev.Svc.LastError = ev.Err.Error()
			log.Errorf("[NET][%s] %v", ev.Svc.Name, ev.Err)
		}
		r.signalShutdown()
	}
}

func (r *Reactor) shutdownAll(services []*Service) {
	for _, svc := range services {
		if svc.listener != nil {
			_ = svc.listener.Close()
		}
		svc.Each(func(c *Connection) { _ = c.close() })
	}
}

// Report builds the structured shutdown statistics report.
func (r *Reactor) Report() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Stats{PerService: make(map[string]ServiceStats, len(r.services))}
	for _, svc := range r.services {
		svc.mu.Lock()
		out.PerService[svc.Name] = ServiceStats{
			BytesIn: svc.BytesIn, BytesOut: svc.BytesOut,
			Connects: svc.Connects, Accepts: svc.Accepts, Removes: svc.Removes,
			Unknowns: svc.Unknowns, LastError: svc.LastError,
		}
		svc.mu.Unlock()
	}
	return out
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func portString(p int) string {
	return itoa(p)
}
