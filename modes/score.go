package modes

// Score weights, grounded on Regentag-go1090's scoring thresholds
// (Regentag-go1090/mode_s/decoder.go ScoreModesMessage) and extended
// with the recently-seen-ICAO check dump1090-family decoders apply to
// the address/parity formats (DF0/4/5/16/20/21/24). scoreReject (-1)
// marks an unknown ICAO address; scoreBadCRC (-2) marks a bad CRC.
const (
	scoreValidCRC       = 1000
	scoreKnownICAO      = 1000
	scoreRepairedBit    = -1
	scoreRepairedTwoBit = -2
	scoreReject         = -1
	scoreBadCRC         = -2
)

// NewScorer returns a demod.ScoreFunc bound to this decoder's ICAO
// cache, so the correlator can break ties between overlapping candidate
// messages using the same recently-seen-address confidence the full
// decode pass uses.
func (d *Decoder) NewScorer() func(msg []byte, bitCount int) int {
	return func(msg []byte, bitCount int) int {
		return d.scoreMessage(msg, bitCount)
	}
}

func (d *Decoder) scoreMessage(msg []byte, bitCount int) int {
	if len(msg) == 0 {
		return scoreReject
	}
	df := int(msg[0]) >> 3

	switch df {
	case 0, 4, 5, 16, 20, 21, 24:
		aux := make([]byte, len(msg))
		copy(aux, msg)
		lastbyte := bitCount/8 - 1
		crc := checksum(aux, bitCount)
		aux[lastbyte] ^= byte(crc & 0xff)
		aux[lastbyte-1] ^= byte((crc >> 8) & 0xff)
		aux[lastbyte-2] ^= byte((crc >> 16) & 0xff)
		addr := uint32(aux[lastbyte]) | uint32(aux[lastbyte-1])<<8 | uint32(aux[lastbyte-2])<<16
		if d.icaoRecentlySeen(addr) {
			return scoreKnownICAO
		}
		return scoreReject

	case 11, 17, 18:
		crc := checksum(msg, bitCount)
		field := crcField(msg, bitCount)
		if crc == field {
			return scoreValidCRC
		}
		if df == 17 || df == 18 {
			if bit := fixSingleBitErrors(cloneMsg(msg), bitCount); bit != -1 {
				return scoreValidCRC + scoreRepairedBit
			}
		}
		return scoreBadCRC

	default:
		return scoreBadCRC
	}
}

func cloneMsg(msg []byte) []byte {
	out := make([]byte, len(msg))
	copy(out, msg)
	return out
}
