// Package modes implements the Mode-S frame decoder and the live
// aircraft fleet table: CRC checking and single/two-bit
// error correction, downlink-format dispatch, CPR position decoding,
// dead reckoning, and the keyed aircraft store with its lifecycle.
package modes

import (
	"fmt"
	"math"
	"time"

	cache "github.com/patrickmn/go-cache"
)

const (
	shortMsgBits = 56
	longMsgBits  = 112

	icaoCacheTTL = 60 * time.Second
)

// aisCharset is the 6-bit ICAO character alphabet used for callsigns.
var aisCharset = []rune("?ABCDEFGHIJKLMNOPQRSTUVWXYZ????? ???????????????0123456789??????")

// Config tunes the decoder's error-correction behaviour.
type Config struct {
	FixErrors  bool // single-bit error correction using the CRC
	CheckCRC   bool // only accept messages with good CRC
	Aggressive bool // try two-bit correction on DF17
}

// DefaultConfig matches Regentag-go1090's modesInitConfig defaults.
func DefaultConfig() Config {
	return Config{FixErrors: true, CheckCRC: true}
}

// Decoder turns raw demodulated payloads into Message values.
type Decoder struct {
	cfg       Config
	icaoCache *cache.Cache
}

// NewDecoder builds a Decoder with its ICAO recently-seen cache.
func NewDecoder(cfg Config) *Decoder {
	return &Decoder{
		cfg:       cfg,
		icaoCache: cache.New(icaoCacheTTL, 10*time.Second),
	}
}

// Message is a fully decoded Mode-S frame.
type Message struct {
	Raw      []byte
	Bits     int
	DF       int
	CRCOK    bool
	CRC      uint32
	ErrorBit int // bit corrected, -1 if none

	Addr uint32 // 24-bit ICAO address
	CA   int    // DF11 capability

	// DF17/18 extended squitter fields.
	MType int
	MSub  int

	Callsign string

	FFlag        bool // true = odd CPR, false = even
	TFlag        bool
	RawLatitude  int
	RawLongitude int
	OnGround     bool

	HeadingValid bool
	Heading      float64
	Velocity     int

	VertRateSource int
	VertRate       int

	FS       int // flight status (DF4,5,20,21)
	Identity int // squawk, 4 octal digits packed as decimal

	Altitude int // feet
	UnitM    bool

	Score          int
	SignalLevel    float64
	Phase          int
	ClockTimestamp int64
	SysTimestamp   time.Time
}

func messageLenByType(df int) int {
	switch df {
	case 16, 17, 18, 19, 20, 21:
		return longMsgBits
	default:
		return shortMsgBits
	}
}

func (d *Decoder) addRecentlySeenICAO(addr uint32) {
	d.icaoCache.SetDefault(fmt.Sprint(addr), addr)
}

func (d *Decoder) icaoRecentlySeen(addr uint32) bool {
	_, found := d.icaoCache.Get(fmt.Sprint(addr))
	return found
}

// bruteForceAP recovers the ICAO address for downlink formats whose
// checksum field is XORed with the address (AP/PI), by trying every
// recently-seen address.
func (d *Decoder) bruteForceAP(msg []byte, mm *Message) bool {
	switch mm.DF {
	case 0, 4, 5, 16, 20, 21, 24:
	default:
		return false
	}

	aux := make([]byte, len(msg))
	copy(aux, msg)

	lastbyte := mm.Bits/8 - 1
	crc := checksum(aux, mm.Bits)
	aux[lastbyte] ^= byte(crc & 0xff)
	aux[lastbyte-1] ^= byte((crc >> 8) & 0xff)
	aux[lastbyte-2] ^= byte((crc >> 16) & 0xff)

	addr := uint32(aux[lastbyte]) | uint32(aux[lastbyte-1])<<8 | uint32(aux[lastbyte-2])<<16
	if d.icaoRecentlySeen(addr) {
		mm.Addr = addr
		return true
	}
	return false
}

// decodeAC13Field decodes the 13-bit altitude field in DF0/4/16/20.
func decodeAC13Field(msg []byte) (altitude int, meters bool) {
	mBit := msg[3] & (1 << 6)
	qBit := msg[3] & (1 << 4)

	if mBit == 0 {
		if qBit != 0 {
			n := (int(msg[2]&31) << 6) |
				(int(msg[3]&0x80) >> 2) |
				(int(msg[3]&0x20) >> 1) |
				int(msg[3]&15)
			return n*25 - 1000, false
		}
		return 0, false
	}
	return 0, true
}

// decodeAC12Field decodes the 12-bit altitude field in DF17/18.
func decodeAC12Field(msg []byte) (altitude int, meters bool) {
	qBit := msg[5] & 1
	if qBit != 0 {
		n := (int(msg[5]>>1) << 4) | int((msg[6]&0xF0)>>4)
		return n*25 - 1000, false
	}
	return 0, false
}

// Decode splits a raw payload (from the demodulator or a raw-in
// socket) into a Message, running CRC check/repair and field extraction.
func (d *Decoder) Decode(msg []byte, now time.Time) *Message {
	mm := &Message{Raw: append([]byte(nil), msg...), SysTimestamp: now, ErrorBit: -1}
	msg = mm.Raw

	mm.DF = int(msg[0]) >> 3
	mm.Bits = messageLenByType(mm.DF)

	mm.CRC = crcField(msg, mm.Bits)
	crc2 := checksum(msg, mm.Bits)
	mm.CRCOK = mm.CRC == crc2

	if !mm.CRCOK && d.cfg.FixErrors && (mm.DF == 11 || mm.DF == 17) {
		if bit := fixSingleBitErrors(msg, mm.Bits); bit != -1 {
			mm.ErrorBit = bit
			mm.CRC = checksum(msg, mm.Bits)
			mm.CRCOK = true
		} else if d.cfg.Aggressive && mm.DF == 17 {
			if bit := fixTwoBitsErrors(msg, mm.Bits); bit != -1 {
				mm.ErrorBit = bit
				mm.CRC = checksum(msg, mm.Bits)
				mm.CRCOK = true
			}
		}
	}

	mm.CA = int(msg[0]) & 7
	aa1, aa2, aa3 := uint32(msg[1]), uint32(msg[2]), uint32(msg[3])
	mm.Addr = aa1<<16 | aa2<<8 | aa3

	mm.MType = int(msg[4]) >> 3
	mm.MSub = int(msg[4]) & 7

	mm.FS = int(msg[0]) & 7

	// Squawk: interleaved Gillham code, see decoder comment history.
	{
		a := ((msg[3] & 0x80) >> 5) | ((msg[2] & 0x02) >> 0) | ((msg[2] & 0x08) >> 3)
		b := ((msg[3] & 0x02) << 1) | ((msg[3] & 0x08) >> 2) | ((msg[3] & 0x20) >> 5)
		c := ((msg[2] & 0x01) << 2) | ((msg[2] & 0x04) >> 1) | ((msg[2] & 0x10) >> 4)
		e := ((msg[3] & 0x01) << 2) | ((msg[3] & 0x04) >> 1) | ((msg[3] & 0x10) >> 4)
		mm.Identity = int(a)*1000 + int(b)*100 + int(c)*10 + int(e)
	}

	if mm.DF != 11 && mm.DF != 17 && mm.DF != 18 {
		if d.bruteForceAP(msg, mm) {
			mm.CRCOK = true
		} else {
			mm.CRCOK = false
		}
	} else if mm.CRCOK && mm.ErrorBit == -1 {
		d.addRecentlySeenICAO(mm.Addr)
	}

	if !mm.CRCOK && d.cfg.CheckCRC {
		return mm
	}

	if mm.DF == 0 || mm.DF == 4 || mm.DF == 16 || mm.DF == 20 {
		mm.Altitude, mm.UnitM = decodeAC13Field(msg)
	}

	if mm.DF == 17 || mm.DF == 18 {
		d.decodeExtendedSquitter(msg, mm)
	}

	return mm
}

func (d *Decoder) decodeExtendedSquitter(msg []byte, mm *Message) {
	switch {
	case mm.MType >= 1 && mm.MType <= 4:
		runes := []rune{
			aisCharset[msg[5]>>2],
			aisCharset[((msg[5]&3)<<4)|(msg[6]>>4)],
			aisCharset[((msg[6]&15)<<2)|(msg[7]>>6)],
			aisCharset[msg[7]&63],
			aisCharset[msg[8]>>2],
			aisCharset[((msg[8]&3)<<4)|(msg[9]>>4)],
			aisCharset[((msg[9]&15)<<2)|(msg[10]>>6)],
			aisCharset[msg[10]&63],
		}
		mm.Callsign = trimCallsign(string(runes))

	case mm.MType >= 5 && mm.MType <= 8:
		mm.OnGround = true
		mm.FFlag = msg[6]&(1<<2) != 0
		mm.RawLatitude = ((int(msg[6]) & 3) << 15) | (int(msg[7]) << 7) | (int(msg[8]) >> 1)
		mm.RawLongitude = ((int(msg[8]) & 1) << 16) | (int(msg[9]) << 8) | int(msg[10])

	case mm.MType >= 9 && mm.MType <= 18:
		mm.FFlag = msg[6]&(1<<2) != 0
		mm.TFlag = msg[6]&(1<<3) != 0
		mm.Altitude, mm.UnitM = decodeAC12Field(msg)
		mm.RawLatitude = ((int(msg[6]) & 3) << 15) | (int(msg[7]) << 7) | (int(msg[8]) >> 1)
		mm.RawLongitude = ((int(msg[8]) & 1) << 16) | (int(msg[9]) << 8) | int(msg[10])

	case mm.MType == 19 && mm.MSub >= 1 && mm.MSub <= 4:
		d.decodeVelocity(msg, mm)
	}
}

func (d *Decoder) decodeVelocity(msg []byte, mm *Message) {
	switch mm.MSub {
	case 1, 2:
		ewDir := (int(msg[5]) & 4) >> 2
		ewVelocity := ((int(msg[5]) & 3) << 8) | int(msg[6])
		nsDir := (int(msg[7]) & 0x80) >> 7
		nsVelocity := ((int(msg[7]) & 0x7f) << 3) | ((int(msg[8]) & 0xe0) >> 5)
		mm.VertRateSource = (int(msg[8]) & 0x10) >> 4
		vertRateSign := (int(msg[8]) & 0x8) >> 3
		vertRate := ((int(msg[8]) & 7) << 6) | ((int(msg[9]) & 0xfc) >> 2)
		if vertRateSign != 0 {
			vertRate = -vertRate
		}
		mm.VertRate = vertRate

		mm.Velocity = int(math.Sqrt(float64(nsVelocity*nsVelocity + ewVelocity*ewVelocity)))
		if mm.Velocity != 0 {
			ewv, nsv := float64(ewVelocity), float64(nsVelocity)
			if ewDir == 1 {
				ewv = -ewv
			}
			if nsDir == 1 {
				nsv = -nsv
			}
			heading := math.Atan2(ewv, nsv) * 360 / (2 * math.Pi)
			if heading < 0 {
				heading += 360
			}
			mm.Heading = heading
			mm.HeadingValid = true
		}

	case 3, 4:
		mm.HeadingValid = msg[5]&(1<<2) != 0
		mm.Heading = (360.0 / 128) * float64(((int(msg[5])&3)<<5)|(int(msg[6])>>3))
	}
}

func trimCallsign(s string) string {
	i := len(s)
	for i > 0 && (s[i-1] == ' ' || s[i-1] == '?') {
		i--
	}
	return s[:i]
}
