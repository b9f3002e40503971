package netio

import (
	"net"
	"sync"
	"time"

	"github.com/rs/xid"
)

// ServiceKind is a closed tagged variant: {RawIn, RawOut, SbsIn, SbsOut,
// Http}, matched exhaustively wherever service-specific behaviour is
// needed.
type ServiceKind int

const (
	RawIn ServiceKind = iota
	RawOut
	SbsIn
	SbsOut
	Http
)

func (k ServiceKind) String() string {
	switch k {
	case RawIn:
		return "RAW_IN"
	case RawOut:
		return "RAW_OUT"
	case SbsIn:
		return "SBS_IN"
	case SbsOut:
		return "SBS_OUT"
	case Http:
		return "HTTP"
	default:
		return "UNKNOWN"
	}
}

// activeConnectTimeout is the one-shot timer armed on every active
// connect attempt: 5s for TCP,
// disabled for UDP.
const activeConnectTimeout = 5 * time.Second

// Service is one logical service descriptor: a listener (passive mode) or a remote host/port (active
// mode), its connection arena, and accounting.
type Service struct {
	mu sync.Mutex

	Kind      ServiceKind
	Name      string
	Transport string // "tcp" or "udp"
	Port      int

	RemoteHost string // non-empty selects active mode
	RemotePort int

	Deny *DenyList

	listener net.Listener

	arena *arena
	byRef map[xid.ID]ref

	BytesIn  uint64
	BytesOut uint64
	Accepts  uint64
	Connects uint64
	Removes  uint64
	Unknowns uint64

	LastError string
}

// NewService builds a passive (listening) service descriptor.
func NewService(kind ServiceKind, name, transport string, port int) *Service {
	return &Service{
		Kind: kind, Name: name, Transport: transport, Port: port,
		arena: newArena(), byRef: make(map[xid.ID]ref),
	}
}

// NewActiveService builds an active (outbound-connecting) descriptor.
func NewActiveService(kind ServiceKind, name, transport, host string, port int) *Service {
	return &Service{
		Kind: kind, Name: name, Transport: transport,
		RemoteHost: host, RemotePort: port,
		arena: newArena(), byRef: make(map[xid.ID]ref),
	}
}

func (s *Service) addConn(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.arena.insert(c)
	c.ref = r
	s.byRef[c.ID] = r
}

func (s *Service) removeConn(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byRef[c.ID]
	if !ok {
		return
	}
	s.arena.remove(r)
	delete(s.byRef, c.ID)
	s.Removes++
}

// Each iterates every live connection in arena order.
func (s *Service) Each(fn func(*Connection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arena.each(fn)
}

// OpenCount returns the number of connections currently tracked,
// which equals Accepts plus Connects minus Removes.
func (s *Service) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.len()
}
