// Package go1090 ties the three core subsystems together: the
// demodulator, the frame decoder / fleet table, and the network
// service fabric.
package go1090

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go1090/beast"
	"go1090/demod"
	"go1090/httpapi"
	"go1090/magnitude"
	"go1090/modes"
	"go1090/netio"
	"go1090/sbs"
)

// Config collects every tunable the reactor and decoder need to start.
type Config struct {
	Demod   demod.Config
	Decoder modes.Config

	HasHome bool
	Home    modes.Position

	RawInPort, RawOutPort int
	SbsInPort, SbsOutPort int
	HTTPPort              int

	DenyListSpec string // comma-separated CIDR entries
	WebRoot      string // empty disables static file serving (no packed filesystem is wired in)
	WebPage      string
	MetricsPath  string
}

// DefaultConfig returns a runnable configuration with the standard
// Beast/Basestation ports.
func DefaultConfig() Config {
	return Config{
		Demod:       demod.DefaultConfig(),
		Decoder:     modes.DefaultConfig(),
		RawInPort:   30001,
		RawOutPort:  30002,
		SbsInPort:   30004,
		SbsOutPort:  30003,
		HTTPPort:    8080,
		WebPage:     "index.html",
		MetricsPath: "/metrics",
	}
}

// Receiver wires the demodulator, decoder, fleet table and network
// fabric into one runnable unit.
type Receiver struct {
	cfg Config

	Decoder *modes.Decoder
	Fleet   *modes.Fleet

	DemodStats demod.Stats

	Reactor    *netio.Reactor
	HTTPServer *httpapi.Server
	httpLn     net.Listener

	mu        sync.Mutex
	framers   map[string]*beast.Framer
	lineScans map[string]*sbs.LineReader

	tickDone chan struct{}
}

// tickInterval is the interactive refresh tick the fleet's show-state
// machine and staleness/expiry sweep run against, per §4.3/§5.
const tickInterval = 125 * time.Millisecond

// New builds a Receiver from cfg without starting any network I/O.
func New(cfg Config) *Receiver {
	fleet := modes.NewFleet()
	if cfg.HasHome {
		fleet.SetHome(cfg.Home)
	}

	r := &Receiver{
		cfg:       cfg,
		Decoder:   modes.NewDecoder(cfg.Decoder),
		Fleet:     fleet,
		framers:   make(map[string]*beast.Framer),
		lineScans: make(map[string]*sbs.LineReader),
	}
	r.Reactor = netio.NewReactor(r.onRead)
	r.HTTPServer = httpapi.NewServer(fleet, r.fileSystem(), cfg.WebPage)
	return r
}

// runTicker drives the fleet's show-state transitions, staleness
// expiry, and dead-reckoning estimates on the interactive refresh tick,
// independent of any UI consumer.
func (r *Receiver) runTicker() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			r.Fleet.Tick(now)
			for _, a := range r.Fleet.Snapshot() {
				a.EstimatePosition(now)
			}
		case <-r.tickDone:
			return
		}
	}
}

func (r *Receiver) fileSystem() httpapi.FileSystem {
	if r.cfg.WebRoot == "" {
		return nil
	}
	return httpapi.DiskFileSystem{Root: r.cfg.WebRoot}
}

// ProcessBuffer runs one magnitude buffer through the demodulator and
// decoder, folding every accepted message into the fleet table and
// publishing it to RAW_OUT/SBS_OUT subscribers.
// The sample capture itself is an external collaborator;
// callers feed buffers from an SDR front end or a prerecorded file.
func (r *Receiver) ProcessBuffer(buf *magnitude.Buffer) {
	buf.ComputeStats()
	msgs := demod.Demodulate(buf, r.cfg.Demod, r.Decoder.NewScorer(), &r.DemodStats)

	now := time.Now()
	for _, dm := range msgs {
		mm := r.Decoder.Decode(dm.Payload, now)
		mm.Score = dm.Score
		mm.SignalLevel = dm.SignalLevel
		mm.Phase = dm.Phase
		mm.ClockTimestamp = dm.ClockTimestamp

		if !mm.CRCOK {
			continue
		}
		a := r.Fleet.Update(mm, now)
		r.publish(mm, a, now)
	}
}

// publish re-encodes an accepted message once in each wire format and
// fans it out to every RAW_OUT / SBS_OUT connection.
func (r *Receiver) publish(mm *modes.Message, a *modes.Aircraft, now time.Time) {
	rawLine := beast.Encode(mm.Raw)
	sbsLine := []byte(sbs.Encode(mm, a, now) + "\r\n")

	if svc := r.Reactor.Service(netio.RawOut); svc != nil {
		svc.Each(func(c *netio.Connection) {
			_, _ = c.Write(rawLine)
		})
	}
	if svc := r.Reactor.Service(netio.SbsOut); svc != nil {
		svc.Each(func(c *netio.Connection) {
			_, _ = c.Write(sbsLine)
		})
	}
}

// onRead demultiplexes a raw Read event into complete Beast frames or
// SBS lines, keyed by the connection's stable id so partial reads
// accumulate correctly across calls.
func (r *Receiver) onRead(svc *netio.Service, conn *netio.Connection, data []byte) {
	switch svc.Kind {
	case netio.RawIn:
		f := r.framerFor(conn)
		frames, err := f.Feed(data)
		if err != nil {
			log.Warnf("[NET][RAW_IN] %v", err)
		}
		now := time.Now()
		for _, payload := range frames {
			mm := r.Decoder.Decode(payload, now)
			if mm.CRCOK {
				a := r.Fleet.Update(mm, now)
				r.publish(mm, a, now)
			}
		}

	case netio.SbsIn:
		lr := r.lineReaderFor(conn)
		for _, line := range lr.Feed(data) {
			rec, err := sbs.Parse(line)
			if err != nil {
				log.Warnf("[NET][SBS_IN] %v", err)
				continue
			}
			r.foldSBSRecord(rec)
		}
	}
}

func (r *Receiver) foldSBSRecord(rec sbs.Record) {
	mm := &modes.Message{
		Addr:     rec.ICAO,
		DF:       17,
		CRCOK:    true,
		Callsign: rec.Callsign,
		Altitude: rec.Altitude,
		Velocity: int(rec.GroundSpeed),
		Identity: rec.Squawk,
		OnGround: rec.OnGround,
	}
	if rec.Track != 0 {
		mm.Heading = rec.Track
		mm.HeadingValid = true
	}
	mm.MType = 11
	r.Fleet.Update(mm, time.Now())
}

func (r *Receiver) framerFor(conn *netio.Connection) *beast.Framer {
	key := conn.ID.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.framers[key]
	if !ok {
		f = &beast.Framer{}
		r.framers[key] = f
	}
	return f
}

func (r *Receiver) lineReaderFor(conn *netio.Connection) *sbs.LineReader {
	key := conn.ID.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	lr, ok := r.lineScans[key]
	if !ok {
		lr = &sbs.LineReader{}
		r.lineScans[key] = lr
	}
	return lr
}

// Start registers every service, launches the reactor, and serves HTTP
// (including /metrics) until Shutdown is called. It blocks until the
// reactor's dispatch loop exits.
func (r *Receiver) Start() error {
	r.Reactor.Register(netio.NewService(netio.RawIn, "RAW_IN", "tcp", r.cfg.RawInPort))
	r.Reactor.Register(netio.NewService(netio.RawOut, "RAW_OUT", "tcp", r.cfg.RawOutPort))
	r.Reactor.Register(netio.NewService(netio.SbsIn, "SBS_IN", "tcp", r.cfg.SbsInPort))
	r.Reactor.Register(netio.NewService(netio.SbsOut, "SBS_OUT", "tcp", r.cfg.SbsOutPort))

	if r.cfg.DenyListSpec != "" {
		dl, err := netio.ParseCIDRList(r.cfg.DenyListSpec)
		if err != nil {
			return fmt.Errorf("go1090: %w", err)
		}
		for _, kind := range []netio.ServiceKind{netio.RawIn, netio.RawOut, netio.SbsIn, netio.SbsOut} {
			if svc := r.Reactor.Service(kind); svc != nil {
				svc.Deny = dl
			}
		}
	}

	if err := r.startHTTP(); err != nil {
		return err
	}

	r.tickDone = make(chan struct{})
	go r.runTicker()

	return r.Reactor.Serve()
}

func (r *Receiver) startHTTP() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", r.cfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("go1090: http listen: %w", err)
	}
	r.httpLn = ln

	reg := prometheus.NewRegistry()
	reg.MustRegister(netio.NewCollector(r.Reactor))

	mux := http.NewServeMux()
	mux.Handle(r.cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", r.HTTPServer)

	go func() {
		if err := http.Serve(ln, mux); err != nil {
			log.Warnf("[HTTP] serve exited: %v", err)
		}
	}()
	return nil
}

// Shutdown signals every subsystem to stop.
func (r *Receiver) Shutdown() {
	r.Reactor.Shutdown()
	if r.httpLn != nil {
		_ = r.httpLn.Close()
	}
	if r.tickDone != nil {
		close(r.tickDone)
	}
}
