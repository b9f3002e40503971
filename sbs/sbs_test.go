package sbs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go1090/modes"
)

func Test_Encode_identityMessage(t *testing.T) {
	mm := &modes.Message{Addr: 0x4840D6, MType: 1, DF: 17}
	a := &modes.Aircraft{Callsign: "BAW123"}
	line := Encode(mm, a, time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))

	assert.Contains(t, line, "MSG,1,")
	assert.Contains(t, line, "4840D6")
	assert.Contains(t, line, "BAW123")
}

func Test_Parse_roundTripsEncodedIdentity(t *testing.T) {
	mm := &modes.Message{Addr: 0x4840D6, MType: 1, DF: 17}
	a := &modes.Aircraft{Callsign: "BAW123"}
	line := Encode(mm, a, time.Now())

	rec, err := Parse(line + "\r\n")
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x4840D6), rec.ICAO)
	assert.Equal(t, "BAW123", rec.Callsign)
	assert.Equal(t, TransmissionIdentity, rec.TransmissionType)
}

func Test_Parse_rejectsNonMSGLine(t *testing.T) {
	_, err := Parse("SEL,1,1,1,aabbcc\r\n")
	assert.Error(t, err)
}

func Test_LineReader_splitsAcrossFeeds(t *testing.T) {
	var lr LineReader
	lines := lr.Feed([]byte("MSG,1,1,1,AABBCC,1,"))
	assert.Len(t, lines, 0)

	lines = lr.Feed([]byte("2026/07/31,12:00:00.000,2026/07/31,12:00:00.000,,,,,,,,,,,,0\r\nMSG,1"))
	assert.Len(t, lines, 1)
}
