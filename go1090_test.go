package go1090

import (
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"

	"go1090/beast"
	"go1090/demod"
	"go1090/magnitude"
	"go1090/modes"
	"go1090/netio"
)

func newTestReceiver() *Receiver {
	cfg := DefaultConfig()
	cfg.Decoder = modes.Config{CheckCRC: true}
	cfg.Demod = demod.DefaultConfig()
	return New(cfg)
}

// checksumTable mirrors modes/crc.go's parity table (unexported there)
// so these wiring tests can stamp a valid CRC onto a crafted payload
// without reaching into the modes package's internals.
var checksumTable = [112]uint32{
	0x3935ea, 0x1c9af5, 0xf1b77e, 0x78dbbf, 0xc397db, 0x9e31e9, 0xb0e2f0, 0x587178,
	0x2c38bc, 0x161c5e, 0x0b0e2f, 0xfa7d13, 0x82c48d, 0xbe9842, 0x5f4c21, 0xd05c14,
	0x682e0a, 0x341705, 0xe5f186, 0x72f8c3, 0xc68665, 0x9cb936, 0x4e5c9b, 0xd8d449,
	0x939020, 0x49c810, 0x24e408, 0x127204, 0x093902, 0x049c81, 0xfdb444, 0x7eda22,
	0x3f6d11, 0xe04c8c, 0x702646, 0x381323, 0xe3f395, 0x8e03ce, 0x4701e7, 0xdc7af7,
	0x91c77f, 0xb719bb, 0xa476d9, 0xadc168, 0x56e0b4, 0x2b705a, 0x15b82d, 0xf52612,
	0x7a9309, 0xc2b380, 0x6159c0, 0x30ace0, 0x185670, 0x0c2b38, 0x06159c, 0x030ace,
	0x018567, 0xff38b7, 0x80665f, 0xbfc92b, 0xa01e91, 0xaff54c, 0x57faa6, 0x2bfd53,
	0xea04ad, 0x8af852, 0x457c29, 0xdd4410, 0x6ea208, 0x375104, 0x1ba882, 0x0dd441,
	0xf91024, 0x7c8812, 0x3e4409, 0xe0d800, 0x706c00, 0x383600, 0x1c1b00, 0x0e0d80,
	0x0706c0, 0x038360, 0x01c1b0, 0x00e0d8, 0x00706c, 0x003836, 0x001c1b, 0xfff409,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
	0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000, 0x000000,
}

// stampCRC computes the Mode S CRC over the first len(msg)*8-24 bits of
// msg (a short, 7-byte message) and writes it into the trailing 3 bytes.
func stampCRC(msg []byte) {
	bits := len(msg) * 8
	offset := 112 - bits
	var crc uint32
	for j := 0; j < bits; j++ {
		sByte := j / 8
		mask := byte(1) << (7 - byte(j)%8)
		if msg[sByte]&mask != 0 {
			crc ^= checksumTable[j+offset]
		}
	}
	last := bits/8 - 1
	msg[last-2] = byte(crc >> 16)
	msg[last-1] = byte(crc >> 8)
	msg[last] = byte(crc)
}

func Test_Receiver_onRead_rawIn_feedsFleet(t *testing.T) {
	r := newTestReceiver()
	svc := netio.NewService(netio.RawIn, "RAW_IN", "tcp", 0)
	conn := &netio.Connection{ID: xid.New(), Service: svc}

	// DF11 all-call reply: CA=5, ICAO 0x4840D6, CRC stamped to validate.
	payload := []byte{0x5D, 0x48, 0x40, 0xD6, 0x00, 0x00, 0x00}
	stampCRC(payload)
	line := beast.Encode(payload)

	r.onRead(svc, conn, line)

	snap := r.Fleet.Snapshot()
	if assert.Len(t, snap, 1) {
		assert.Equal(t, uint32(0x4840D6), snap[0].Addr)
		assert.EqualValues(t, 1, snap[0].MessageCount)
	}
}

func Test_Receiver_onRead_rawIn_accumulatesPartialFrames(t *testing.T) {
	r := newTestReceiver()
	svc := netio.NewService(netio.RawIn, "RAW_IN", "tcp", 0)
	conn := &netio.Connection{ID: xid.New(), Service: svc}

	payload := []byte{0x5D, 0x11, 0x22, 0x33, 0x00, 0x00, 0x00}
	stampCRC(payload)
	line := beast.Encode(payload)

	// Split the frame mid-way across two Read events, as a stalled
	// socket read would deliver it.
	r.onRead(svc, conn, line[:len(line)/2])
	assert.Len(t, r.Fleet.Snapshot(), 0)

	r.onRead(svc, conn, line[len(line)/2:])
	assert.Len(t, r.Fleet.Snapshot(), 1)
}

func Test_Receiver_ProcessBuffer_shortBufferIsNoop(t *testing.T) {
	r := newTestReceiver()
	buf := &magnitude.Buffer{Data: make([]uint16, 4)}
	r.ProcessBuffer(buf)
	assert.Len(t, r.Fleet.Snapshot(), 0)
}

func Test_Receiver_runTicker_promotesShowState(t *testing.T) {
	r := newTestReceiver()
	r.Fleet.Update(&modes.Message{Addr: 0x4840D6, DF: 17, MType: 1}, time.Now())

	r.tickDone = make(chan struct{})
	go r.runTicker()
	defer close(r.tickDone)

	assert.Eventually(t, func() bool {
		snap := r.Fleet.Snapshot()
		return len(snap) == 1 && snap[0].Show == modes.ShowNormal
	}, time.Second, 10*time.Millisecond)
}
