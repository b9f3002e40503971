// Package beast implements the raw Beast-like wire framing used by the
// RAW_IN and RAW_OUT services.
package beast

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Encode renders a decoded frame's raw payload as a Beast-like line:
// "*<hex>;\n", payload 14 or 28 hex characters (7 or 14 bytes).
func Encode(payload []byte) []byte {
	out := make([]byte, 0, 2+len(payload)*2+2)
	out = append(out, '*')
	out = append(out, []byte(hex.EncodeToString(payload))...)
	out = append(out, ';', '\n')
	return out
}

// A Framer accumulates bytes off a RAW_IN socket and yields complete
// payloads as they are recognised, one `*<hex>;` frame at a time.
// Grounded on Regentag-go1090's rtl_adsb stdin-pipe hex parsing
// (Regentag-go1090/rtl_adsb), generalized from a blocking line reader to
// an incremental feed usable from the reactor's non-blocking Read event.
type Framer struct {
	buf bytes.Buffer
}

// Feed appends freshly-read bytes and returns every complete frame found,
// in arrival order. Partial trailing bytes are retained for the next
// call. Malformed frames are skipped and reported via the returned
// error (the last one seen), without losing frames parsed around them.
func (f *Framer) Feed(data []byte) ([][]byte, error) {
	f.buf.Write(data)

	var frames [][]byte
	var lastErr error
	for {
		raw := f.buf.Bytes()
		star := bytes.IndexByte(raw, '*')
		if star == -1 {
			f.buf.Reset()
			return frames, lastErr
		}
		semi := bytes.IndexByte(raw[star:], ';')
		if semi == -1 {
			if star > 0 {
				f.buf.Next(star)
			}
			return frames, lastErr
		}

		hexPart := raw[star+1 : star+semi]
		payload, err := hex.DecodeString(string(hexPart))
		switch {
		case err != nil:
			lastErr = fmt.Errorf("beast: malformed frame %q: %w", hexPart, err)
		case len(payload) != 7 && len(payload) != 14:
			lastErr = fmt.Errorf("beast: unexpected payload length %d", len(payload))
		default:
			frames = append(frames, payload)
		}
		f.buf.Next(star + semi + 1)
	}
}
