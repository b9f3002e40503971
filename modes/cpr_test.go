package modes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_cprNLFunction_knownZones(t *testing.T) {
	assert.Equal(t, 59, cprNLFunction(0))
	assert.Equal(t, 1, cprNLFunction(89.9))
	assert.Equal(t, 59, cprNLFunction(-0.1))
}

func Test_globalDecode_roundTrip(t *testing.T) {
	// Encoded fragments taken from the worked example at
	// lll.lu/~edward/edward/adsb, decoded by hand to get the expected
	// lat/lon below.
	pair := CPRPair{
		EvenLat:     92095,
		EvenLon:     39846,
		OddLat:      88385,
		OddLon:      125818,
		EvenIsNewer: false,
	}
	lat, lon, ok := globalDecode(pair, false)
	assert.True(t, ok)
	assert.InDelta(t, 10.21621, lat, 1e-3)
	assert.InDelta(t, 123.88913, lon, 1e-3)
}

func Test_localDecode_withinRangeOfReference(t *testing.T) {
	ref := Position{Lat: 10.21621, Lon: 123.88913}
	lat, lon, ok := localDecode(88385, 125818, true, ref, false)
	assert.True(t, ok)
	assert.InDelta(t, 10.21621, lat, 1e-2)
	assert.InDelta(t, 123.88913, lon, 1e-2)
}

func Test_localDecode_rejectsFarReference(t *testing.T) {
	// The nearest zone puts the fix at 10.216/123.889, about 227 NM from
	// this reference, outside the 180 NM window.
	farRef := Position{Lat: 13.0, Lon: 126.5}
	_, _, ok := localDecode(88385, 125818, true, farRef, false)
	assert.False(t, ok)
}

func Test_haversineNM_zeroForSamePoint(t *testing.T) {
	assert.InDelta(t, 0, haversineNM(51.5, -0.1, 51.5, -0.1), 1e-9)
}
