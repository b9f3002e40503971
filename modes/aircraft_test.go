package modes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Fleet_Update_createsOnFirstSighting(t *testing.T) {
	fleet := NewFleet()
	now := time.Now()

	mm := &Message{Addr: 0x4840D6, Callsign: "BAW123", DF: 17, MType: 1}
	a := fleet.Update(mm, now)

	assert.Equal(t, uint32(0x4840D6), a.Addr)
	assert.Equal(t, "BAW123", a.Callsign)
	assert.Equal(t, ShowFirstTime, a.Show)
	assert.True(t, a.FirstSeen.Equal(now))
	assert.Len(t, fleet.Snapshot(), 1)
}

func Test_Fleet_Tick_promotesThenExpires(t *testing.T) {
	fleet := NewFleet()
	now := time.Now()
	fleet.Update(&Message{Addr: 1, DF: 17}, now)

	fleet.Tick(now)
	a := fleet.Snapshot()[0]
	assert.Equal(t, ShowNormal, a.Show)

	removed := fleet.Tick(now.Add(10 * time.Minute))
	assert.Equal(t, []uint32{1}, removed)
	assert.Len(t, fleet.Snapshot(), 0)
}

func Test_Fleet_Update_globalCPRPairProducesPosition(t *testing.T) {
	fleet := NewFleet()
	base := time.Now()

	even := &Message{Addr: 7, DF: 17, MType: 11, FFlag: false,
		RawLatitude: 92095, RawLongitude: 39846}
	odd := &Message{Addr: 7, DF: 17, MType: 11, FFlag: true,
		RawLatitude: 88385, RawLongitude: 125818}

	fleet.Update(even, base)
	a := fleet.Update(odd, base.Add(time.Second))

	assert.True(t, a.HasPosition)
	assert.InDelta(t, 10.21621, a.Position.Lat, 1e-3)
	assert.InDelta(t, 123.88913, a.Position.Lon, 1e-3)
}

func Test_Fleet_Update_staleCPRPairIsIgnored(t *testing.T) {
	fleet := NewFleet()
	base := time.Now()

	even := &Message{Addr: 9, DF: 17, MType: 11, FFlag: false,
		RawLatitude: 92095, RawLongitude: 39846}
	odd := &Message{Addr: 9, DF: 17, MType: 11, FFlag: true,
		RawLatitude: 88385, RawLongitude: 125818}

	fleet.Update(even, base)
	a := fleet.Update(odd, base.Add(2*time.Minute))

	assert.False(t, a.HasPosition)
}

func Test_Fleet_Update_CPRPairBoundary_exactTenSecondsRejected(t *testing.T) {
	fleet := NewFleet()
	base := time.Now()

	even := &Message{Addr: 11, DF: 17, MType: 11, FFlag: false,
		RawLatitude: 92095, RawLongitude: 39846}
	odd := &Message{Addr: 11, DF: 17, MType: 11, FFlag: true,
		RawLatitude: 88385, RawLongitude: 125818}

	fleet.Update(even, base)
	a := fleet.Update(odd, base.Add(10*time.Second))
	assert.False(t, a.HasPosition)
}

func Test_Fleet_Update_CPRPairBoundary_justUnderTenSecondsAccepted(t *testing.T) {
	fleet := NewFleet()
	base := time.Now()

	even := &Message{Addr: 12, DF: 17, MType: 11, FFlag: false,
		RawLatitude: 92095, RawLongitude: 39846}
	odd := &Message{Addr: 12, DF: 17, MType: 11, FFlag: true,
		RawLatitude: 88385, RawLongitude: 125818}

	fleet.Update(even, base)
	a := fleet.Update(odd, base.Add(9999*time.Millisecond))
	assert.True(t, a.HasPosition)
}

func Test_Aircraft_RecordRSSI_averagesRingBuffer(t *testing.T) {
	a := newAircraft(1, time.Now())
	a.RecordRSSI(0.4)
	a.RecordRSSI(0.8)
	assert.InDelta(t, 0.3, a.MeanRSSI(), 1e-9)
}

func Test_Aircraft_EstimatePosition_deadReckons(t *testing.T) {
	fleet := NewFleet()
	base := time.Now()
	even := &Message{Addr: 3, DF: 17, MType: 11, FFlag: false,
		RawLatitude: 92095, RawLongitude: 39846}
	odd := &Message{Addr: 3, DF: 17, MType: 11, FFlag: true,
		RawLatitude: 88385, RawLongitude: 125818, Velocity: 120, Heading: 90, HeadingValid: true}

	fleet.Update(even, base)
	a := fleet.Update(odd, base.Add(time.Second))

	est, ok := a.EstimatePosition(base.Add(2*time.Second + time.Hour))
	assert.True(t, ok)
	assert.NotEqual(t, a.Position, est)
}
