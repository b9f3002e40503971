package beast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Encode_sevenByteFrame(t *testing.T) {
	payload := []byte{0x28, 0x48, 0x40, 0xD6, 0x00, 0x00, 0x00}
	line := Encode(payload)
	assert.Equal(t, "*284840d6000000;\n", string(line))
}

func Test_Framer_roundTripsEncodedFrame(t *testing.T) {
	payload := []byte{0x28, 0x48, 0x40, 0xD6, 0x11, 0x22, 0x33}
	line := Encode(payload)

	var f Framer
	frames, err := f.Feed(line)
	assert.NoError(t, err)
	assert.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
}

func Test_Framer_acrossTwoReads(t *testing.T) {
	payload := []byte{0x28, 0x48, 0x40, 0xD6, 0x00, 0x00, 0x00}
	line := Encode(payload)

	var f Framer
	frames, err := f.Feed(line[:len(line)/2])
	assert.NoError(t, err)
	assert.Len(t, frames, 0)

	frames, err = f.Feed(line[len(line)/2:])
	assert.NoError(t, err)
	assert.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
}

func Test_Framer_skipsMalformedFrame(t *testing.T) {
	var f Framer
	frames, err := f.Feed([]byte("*zz;\n*284840d6000000;\n"))
	assert.Error(t, err)
	assert.Len(t, frames, 1)
}

func Test_Framer_twoFramesInOneRead(t *testing.T) {
	p1 := []byte{0x28, 0x48, 0x40, 0xD6, 0x00, 0x00, 0x00}
	p2 := []byte{0x5D, 0xAA, 0xBB, 0xCC, 0x00, 0x00, 0x00}
	var buf []byte
	buf = append(buf, Encode(p1)...)
	buf = append(buf, Encode(p2)...)

	var f Framer
	frames, err := f.Feed(buf)
	assert.NoError(t, err)
	assert.Equal(t, [][]byte{p1, p2}, frames)
}
