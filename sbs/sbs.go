// Package sbs implements the Basestation/SBS comma-separated text wire
// format used by the SBS_IN and SBS_OUT services.
package sbs

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go1090/modes"
)

// Transmission types, the second MSG field. Only the ones the decoder
// can actually produce are named; others pass through on ingest.
const (
	TransmissionIdentity  = 1
	TransmissionSurface   = 2
	TransmissionAirborne  = 3
	TransmissionVelocity  = 4
	TransmissionAltitude  = 5
	TransmissionAllCallRe = 6
	TransmissionSquawk    = 7
)

// Encode renders a decoded message as one SBS MSG line (no trailing
// newline), the way dump1090-family tools write client output.
func Encode(mm *modes.Message, a *modes.Aircraft, now time.Time) string {
	transType := transmissionType(mm)

	dateGen := now.Format("2006/01/02")
	timeGen := now.Format("15:04:05.000")

	callsign := ""
	altitude := ""
	speed := ""
	track := ""
	lat := ""
	lon := ""
	vrate := ""
	squawk := ""
	onGround := "0"

	if a != nil {
		if a.Callsign != "" {
			callsign = a.Callsign
		}
		if a.Altitude != 0 {
			altitude = strconv.Itoa(a.Altitude)
		}
		if a.GroundSpeed != 0 {
			speed = strconv.FormatFloat(a.GroundSpeed, 'f', 1, 64)
		}
		if a.HeadingValid {
			track = strconv.FormatFloat(a.Heading, 'f', 1, 64)
		}
		if a.HasPosition {
			lat = strconv.FormatFloat(a.Position.Lat, 'f', 5, 64)
			lon = strconv.FormatFloat(a.Position.Lon, 'f', 5, 64)
		}
		if a.Squawk != 0 {
			squawk = fmt.Sprintf("%04d", a.Squawk)
		}
	}
	if mm.OnGround {
		onGround = "-1"
	}
	if mm.VertRate != 0 {
		vrate = strconv.Itoa(mm.VertRate)
	}

	fields := []string{
		"MSG",
		strconv.Itoa(transType),
		"1", "1",
		fmt.Sprintf("%06X", mm.Addr),
		"1",
		dateGen, timeGen,
		dateGen, timeGen,
		callsign, altitude, speed, track, lat, lon, vrate, squawk,
		"0", "0", "0", onGround,
	}
	return strings.Join(fields, ",")
}

func transmissionType(mm *modes.Message) int {
	switch {
	case mm.MType >= 1 && mm.MType <= 4:
		return TransmissionIdentity
	case mm.MType >= 5 && mm.MType <= 8:
		return TransmissionSurface
	case mm.MType >= 9 && mm.MType <= 18:
		return TransmissionAirborne
	case mm.MType == 19:
		return TransmissionVelocity
	case mm.DF == 4 || mm.DF == 20:
		return TransmissionAltitude
	case mm.DF == 5 || mm.DF == 21:
		return TransmissionSquawk
	default:
		return TransmissionAllCallRe
	}
}

// Record is a parsed SBS_IN line: just the fields the core cares about
// forwarding as a synthetic position/identity update.
type Record struct {
	TransmissionType int
	ICAO             uint32
	Callsign         string
	Altitude         int
	GroundSpeed      float64
	Track            float64
	Lat, Lon         float64
	HasPosition      bool
	Squawk           int
	OnGround         bool
}

// Parse decodes one CR/LF-terminated SBS MSG line.
func Parse(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")
	if len(fields) < 22 || fields[0] != "MSG" {
		return Record{}, fmt.Errorf("sbs: malformed record %q", line)
	}

	var rec Record
	transType, err := strconv.Atoi(fields[1])
	if err != nil {
		return Record{}, fmt.Errorf("sbs: bad transmission type: %w", err)
	}
	rec.TransmissionType = transType

	icao, err := strconv.ParseUint(fields[4], 16, 32)
	if err != nil {
		return Record{}, fmt.Errorf("sbs: bad ICAO field %q: %w", fields[4], err)
	}
	rec.ICAO = uint32(icao)

	rec.Callsign = strings.TrimSpace(fields[10])
	rec.Altitude, _ = strconv.Atoi(fields[11])
	rec.GroundSpeed, _ = strconv.ParseFloat(fields[12], 64)
	rec.Track, _ = strconv.ParseFloat(fields[13], 64)

	if fields[14] != "" && fields[15] != "" {
		lat, errLat := strconv.ParseFloat(fields[14], 64)
		lon, errLon := strconv.ParseFloat(fields[15], 64)
		if errLat == nil && errLon == nil {
			rec.Lat, rec.Lon = lat, lon
			rec.HasPosition = true
		}
	}
	rec.Squawk, _ = strconv.Atoi(fields[17])
	rec.OnGround = fields[21] == "-1"

	return rec, nil
}

// LineReader incrementally splits a RAW byte stream into CR/LF
// terminated SBS records, the SBS_IN counterpart to beast.Framer. It is
// a plain in-memory accumulator, not a goroutine, so Feed can be called
// straight from the reactor's non-blocking Read event.
type LineReader struct {
	buf bytes.Buffer
}

// Feed appends freshly-read bytes and returns every complete,
// unterminated record line found so far, in arrival order.
func (lr *LineReader) Feed(data []byte) []string {
	lr.buf.Write(data)

	var lines []string
	for {
		raw := lr.buf.Bytes()
		i := bytes.IndexByte(raw, '\n')
		if i < 0 {
			return lines
		}
		line := strings.TrimRight(string(raw[:i]), "\r")
		if line != "" {
			lines = append(lines, line)
		}
		lr.buf.Next(i + 1)
	}
}
