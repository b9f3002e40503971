package modes

import (
	"math"
	"sync"
	"time"
)

// ShowState drives the fleet listing's lifecycle: an aircraft is announced once, shown normally while
// fresh, announced once more on its way out, then dropped.
type ShowState int

const (
	ShowFirstTime ShowState = iota
	ShowNormal
	ShowLastTime
	ShowNone
)

// Position is a decoded latitude/longitude pair in degrees.
type Position struct {
	Lat, Lon float64
}

const (
	positionExpiryAge  = 10 * time.Second // CPR pair freshness gate
	aircraftStaleAge   = 60 * time.Second
	aircraftExpireAge  = 5 * time.Minute
	maxPlausibleRangeN = 600.0 // NM from home before a fix is rejected as implausible
	maxPlausibleSpeed  = 900.0 // knots envelope for dead reckoning sanity gate
)

// rawCPRFrame is one half of an odd/even CPR pair as seen on the wire.
type rawCPRFrame struct {
	rawLat, rawLon int
	onGround       bool
	received       time.Time
}

// Aircraft is the live record for one ICAO address.
type Aircraft struct {
	mu sync.Mutex

	Addr     uint32
	Callsign string
	Squawk   int

	Altitude    int
	GroundSpeed float64

	Heading      float64
	HeadingValid bool

	Position    Position
	HasPosition bool

	evenFrame, oddFrame rawCPRFrame
	haveEven, haveOdd   bool

	// Dead reckoning support: last known velocity vector and the time
	// it was derived, used to extrapolate a position estimate forward
	// between fixes.
	lastFixTime   time.Time
	drHeading     float64
	drSpeedKnots  float64
	drValid       bool
	EstPosition   Position
	HasEstimate   bool
	DistFromHome  float64

	rssi      [4]float64
	rssiNext  int

	MessageCount uint64

	FirstSeen  time.Time
	LastSeen   time.Time
	EstLastSeen time.Time

	Show ShowState
}

func newAircraft(addr uint32, now time.Time) *Aircraft {
	return &Aircraft{
		Addr:        addr,
		FirstSeen:   now,
		LastSeen:    now,
		EstLastSeen: now,
		Show:        ShowFirstTime,
	}
}

// RecordRSSI pushes a signal-level sample into the aircraft's 4-slot
// ring buffer.
func (a *Aircraft) RecordRSSI(level float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rssi[a.rssiNext] = level
	a.rssiNext = (a.rssiNext + 1) % len(a.rssi)
}

// MeanRSSI averages all four ring-buffer slots; slots not yet written
// count as zero.
func (a *Aircraft) MeanRSSI() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum float64
	for _, v := range a.rssi {
		sum += v
	}
	return sum / float64(len(a.rssi))
}

// Fleet is the keyed store of every aircraft seen recently, grounded on Regentag-go1090's package-level
// Sky map (Regentag-go1090/mode_s/aircraft.go) but made a proper type
// with its own mutex and a richer lifecycle.
type Fleet struct {
	mu   sync.Mutex
	byID map[uint32]*Aircraft

	Home        Position
	HaveHome    bool
}

// NewFleet builds an empty fleet. Home is optional; without it, local
// CPR decode and the range-from-home plausibility gate are skipped.
func NewFleet() *Fleet {
	return &Fleet{byID: make(map[uint32]*Aircraft)}
}

// SetHome records the receiver's reference position, enabling local
// CPR decode and range-from-home plausibility gates.
func (f *Fleet) SetHome(pos Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Home = pos
	f.HaveHome = true
}

// getOrCreate returns the aircraft record for addr, creating one (in
// ShowFirstTime state) if this is the first sighting.
func (f *Fleet) getOrCreate(addr uint32, now time.Time) *Aircraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[addr]
	if !ok {
		a = newAircraft(addr, now)
		f.byID[addr] = a
	}
	return a
}

// Snapshot returns every aircraft currently tracked, for the JSON and
// TUI consumers. Callers must not mutate the returned aircraft directly
// except through its own methods.
func (f *Fleet) Snapshot() []*Aircraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Aircraft, 0, len(f.byID))
	for _, a := range f.byID {
		out = append(out, a)
	}
	return out
}

// Update folds a decoded Message into the fleet, creating the aircraft
// record if needed and running CPR/dead-reckoning as the message allows.
func (f *Fleet) Update(mm *Message, now time.Time) *Aircraft {
	a := f.getOrCreate(mm.Addr, now)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.MessageCount++
	a.LastSeen = now
	a.EstLastSeen = now
	if a.Show == ShowLastTime || a.Show == ShowNone {
		a.Show = ShowFirstTime
	}

	if mm.Callsign != "" {
		a.Callsign = mm.Callsign
	}
	if mm.Identity != 0 {
		a.Squawk = mm.Identity
	}
	if mm.Altitude != 0 {
		a.Altitude = mm.Altitude
	}
	if mm.HeadingValid {
		a.Heading = mm.Heading
		a.HeadingValid = true
	}
	if mm.Velocity != 0 {
		a.GroundSpeed = float64(mm.Velocity)
		a.drSpeedKnots = float64(mm.Velocity)
		a.drHeading = mm.Heading
		a.drValid = mm.HeadingValid
		a.lastFixTime = now
	}
	a.RecordRSSI(mm.SignalLevel)

	if mm.MType >= 5 && mm.MType <= 18 {
		f.updatePosition(a, mm, now)
	}

	return a
}

// updatePosition runs the CPR state machine: every fresh frame is
// stashed by parity, a matching pair within positionExpiryAge triggers
// a global decode, and lacking that, a home position enables a local
// decode off the single frame.
func (f *Fleet) updatePosition(a *Aircraft, mm *Message, now time.Time) {
	frame := rawCPRFrame{rawLat: mm.RawLatitude, rawLon: mm.RawLongitude, onGround: mm.OnGround, received: now}

	if mm.FFlag {
		a.oddFrame = frame
		a.haveOdd = true
	} else {
		a.evenFrame = frame
		a.haveEven = true
	}

	if a.haveEven && a.haveOdd {
		dt := a.evenFrame.received.Sub(a.oddFrame.received)
		if dt < 0 {
			dt = -dt
		}
		if dt < positionExpiryAge {
			pair := CPRPair{
				EvenLat:     a.evenFrame.rawLat,
				EvenLon:     a.evenFrame.rawLon,
				OddLat:      a.oddFrame.rawLat,
				OddLon:      a.oddFrame.rawLon,
				EvenIsNewer: a.evenFrame.received.After(a.oddFrame.received),
			}
			if lat, lon, ok := globalDecode(pair, mm.OnGround); ok {
				f.acceptFix(a, Position{Lat: lat, Lon: lon}, now)
				return
			}
		}
	}

	if f.HaveHome {
		ref := a.Position
		if !a.HasPosition {
			ref = f.Home
		}
		if lat, lon, ok := localDecode(mm.RawLatitude, mm.RawLongitude, mm.FFlag, ref, mm.OnGround); ok {
			f.acceptFix(a, Position{Lat: lat, Lon: lon}, now)
		}
	}
}

// acceptFix applies a plausibility gate against the home range before
// committing a decoded position, and refreshes dead-reckoning state.
func (f *Fleet) acceptFix(a *Aircraft, pos Position, now time.Time) {
	if f.HaveHome {
		dist := haversineNM(f.Home.Lat, f.Home.Lon, pos.Lat, pos.Lon)
		if dist > maxPlausibleRangeN {
			return
		}
		a.DistFromHome = dist
	}
	a.Position = pos
	a.HasPosition = true
	a.EstPosition = pos
	a.HasEstimate = true
	a.lastFixTime = now
}

// EstimatePosition extrapolates an aircraft's position forward from its
// last fix using a flat-earth dead-reckoning model. It is a read-only projection: callers display
// EstPosition, it does not get folded back into Position.
func (a *Aircraft) EstimatePosition(now time.Time) (Position, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.HasPosition || !a.drValid {
		return Position{}, false
	}
	if a.drSpeedKnots <= 0 || a.drSpeedKnots > maxPlausibleSpeed {
		return a.Position, true
	}

	elapsedHours := now.Sub(a.lastFixTime).Hours()
	if elapsedHours <= 0 {
		return a.Position, true
	}

	distNM := a.drSpeedKnots * elapsedHours
	headingRad := a.drHeading * (math.Pi / 180)

	const nmPerDegLat = 60.0
	dLat := (distNM * math.Cos(headingRad)) / nmPerDegLat
	nmPerDegLon := nmPerDegLat * math.Cos(a.Position.Lat*math.Pi/180)
	if nmPerDegLon == 0 {
		nmPerDegLon = 1
	}
	dLon := (distNM * math.Sin(headingRad)) / nmPerDegLon

	est := Position{Lat: a.Position.Lat + dLat, Lon: a.Position.Lon + dLon}
	a.EstPosition = est
	a.HasEstimate = true
	return est, true
}

// Tick advances every aircraft's show state based on staleness, and
// removes aircraft that have been gone long enough to retire. It returns the addresses removed.
func (f *Fleet) Tick(now time.Time) []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var removed []uint32
	for addr, a := range f.byID {
		a.mu.Lock()
		age := now.Sub(a.LastSeen)
		switch {
		case age > aircraftExpireAge:
			a.Show = ShowNone
		case age > aircraftStaleAge:
			if a.Show == ShowNormal || a.Show == ShowFirstTime {
				a.Show = ShowLastTime
			}
		default:
			if a.Show == ShowFirstTime {
				a.Show = ShowNormal
			}
		}
		state := a.Show
		a.EstLastSeen = now
		a.mu.Unlock()

		if state == ShowNone {
			delete(f.byID, addr)
			removed = append(removed, addr)
		}
	}
	return removed
}
