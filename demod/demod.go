// Package demod implements the 2.4 MHz correlating-slicer Mode-S
// demodulator: preamble search, multi-phase byte slicing, message
// scoring, and the signal-statistics accounting that rides along with it.
//
// The coefficients and sample-advance counts below are preserved exactly
// as they appear in the reference demodulator (readsb's demod_2400.c) —
// byte boundaries for the rest of the pipeline depend on bit-for-bit
// fidelity here.
package demod

import "go1090/magnitude"

const (
	shortMsgBytes = 7
	longMsgBytes  = 14

	// PreambleThresholdDefault is the nominal threshold_factor.
	PreambleThresholdDefault = 75
	// PreambleThresholdDropped is the floor used once samples have
	// recently been dropped.
	PreambleThresholdDropped = 75

	strongSignalThreshold = 0.50119 // -3 dBFS
)

// Config tunes the demodulator.
type Config struct {
	// PreambleThreshold is threshold_factor in the ref_level formula.
	PreambleThreshold uint32
	// SamplesRecentlyDropped raises the threshold floor.
	SamplesRecentlyDropped bool
	// FixDF extends the long-message DF acceptance bitset with every
	// DF reachable from 17 by a single bit flip.
	FixDF bool
}

// DefaultConfig returns the nominal demodulator tuning.
func DefaultConfig() Config {
	return Config{PreambleThreshold: PreambleThresholdDefault}
}

// ScoreFunc scores a candidate message payload.
// >=0 is a candidate goodness (higher is better), -1 is an unknown
// ICAO address, any other negative value is a bad CRC.
type ScoreFunc func(msg []byte, bitCount int) int

// Message is one accepted demodulator output, ready for the frame decoder.
type Message struct {
	Payload []byte // 7 or 14 bytes

	// Phase is the winning phase index in [0,4].
	Phase int
	Score int

	// ClockTimestamp is the 12MHz sample-clock timestamp at end-of-bit-56.
	ClockTimestamp int64
	SysTimestamp   int64 // ns since buffer start, added to buffer.SysTimestamp by caller

	SignalLevel float64 // linear power 0..1
}

// Stats accumulates the demodulator's per-call signal/preamble counters.
type Stats struct {
	Preambles           uint64
	RejectedBad         uint64
	RejectedUnknownICAO uint64
	Accepted            uint64
	PreamblePhase       [5]uint64
	BestPhase           [5]uint64

	SignalPowerSum   float64
	SignalPowerCount uint64
	PeakSignalPower  float64
	StrongSignals    uint64

	NoisePowerSum   float64
	NoisePowerCount uint64
}

var (
	validDFShortBitset uint32
	validDFLongBitset  uint32
	bitsetsFor         Config
	bitsetsInit        bool
)

func generateDamageSet(df uint8, damageBits int) uint32 {
	result := uint32(1) << df
	if damageBits == 0 {
		return result
	}
	for bit := 0; bit < 5; bit++ {
		damaged := df ^ (1 << uint(bit))
		result |= generateDamageSet(damaged, damageBits-1)
	}
	return result
}

func initBitsets(cfg Config) {
	validDFShortBitset = (1 << 0) | (1 << 4) | (1 << 5) | (1 << 11)
	validDFLongBitset = (1 << 16) | (1 << 17) | (1 << 18) | (1 << 20) | (1 << 21)

	if cfg.FixDF {
		validDFLongBitset |= generateDamageSet(17, 1)
	}
	bitsetsFor = cfg
	bitsetsInit = true
}

// correlation functions: sign of the linear combination selects a 1/0 bit.
func slicePhase0(m []uint16) int { return 18*int(m[0]) - 15*int(m[1]) - 3*int(m[2]) }
func slicePhase1(m []uint16) int { return 14*int(m[0]) - 5*int(m[1]) - 9*int(m[2]) }
func slicePhase2(m []uint16) int { return 16*int(m[0]) + 5*int(m[1]) - 20*int(m[2]) }
func slicePhase3(m []uint16) int { return 7*int(m[0]) + 11*int(m[1]) - 18*int(m[2]) }
func slicePhase4(m []uint16) int { return 4*int(m[0]) + 15*int(m[1]) - 20*int(m[2]) + int(m[3]) }

func bit(v int, mask uint8) uint8 {
	if v > 0 {
		return mask
	}
	return 0
}

// sliceByte extracts one byte at the given phase from m, advancing pos
// and phase in place. Each step consumes 19 samples except the 4->0
// wraparound which consumes 20 — these exact counts keep byte
// boundaries aligned.
func sliceByte(m []uint16, pos *int, phase *int) uint8 {
	p := m[*pos:]
	var b uint8

	switch *phase {
	case 0:
		b = bit(slicePhase0(p), 0x80) |
			bit(slicePhase2(p[2:]), 0x40) |
			bit(slicePhase4(p[4:]), 0x20) |
			bit(slicePhase1(p[7:]), 0x10) |
			bit(slicePhase3(p[9:]), 0x08) |
			bit(slicePhase0(p[12:]), 0x04) |
			bit(slicePhase2(p[14:]), 0x02) |
			bit(slicePhase4(p[16:]), 0x01)
		*phase = 1
		*pos += 19
	case 1:
		b = bit(slicePhase1(p), 0x80) |
			bit(slicePhase3(p[2:]), 0x40) |
			bit(slicePhase0(p[5:]), 0x20) |
			bit(slicePhase2(p[7:]), 0x10) |
			bit(slicePhase4(p[9:]), 0x08) |
			bit(slicePhase1(p[12:]), 0x04) |
			bit(slicePhase3(p[14:]), 0x02) |
			bit(slicePhase0(p[17:]), 0x01)
		*phase = 2
		*pos += 19
	case 2:
		b = bit(slicePhase2(p), 0x80) |
			bit(slicePhase4(p[2:]), 0x40) |
			bit(slicePhase1(p[5:]), 0x20) |
			bit(slicePhase3(p[7:]), 0x10) |
			bit(slicePhase0(p[10:]), 0x08) |
			bit(slicePhase2(p[12:]), 0x04) |
			bit(slicePhase4(p[14:]), 0x02) |
			bit(slicePhase1(p[17:]), 0x01)
		*phase = 3
		*pos += 19
	case 3:
		b = bit(slicePhase3(p), 0x80) |
			bit(slicePhase0(p[3:]), 0x40) |
			bit(slicePhase2(p[5:]), 0x20) |
			bit(slicePhase4(p[7:]), 0x10) |
			bit(slicePhase1(p[10:]), 0x08) |
			bit(slicePhase3(p[12:]), 0x04) |
			bit(slicePhase0(p[15:]), 0x02) |
			bit(slicePhase2(p[17:]), 0x01)
		*phase = 4
		*pos += 19
	case 4:
		b = bit(slicePhase4(p), 0x80) |
			bit(slicePhase1(p[3:]), 0x40) |
			bit(slicePhase3(p[5:]), 0x20) |
			bit(slicePhase0(p[8:]), 0x10) |
			bit(slicePhase2(p[10:]), 0x08) |
			bit(slicePhase4(p[12:]), 0x04) |
			bit(slicePhase1(p[15:]), 0x02) |
			bit(slicePhase3(p[17:]), 0x01)
		*phase = 0
		*pos += 20
	}
	return b
}

func messageLenByType(df uint32) int {
	if df&0x10 != 0 {
		return longMsgBytes
	}
	return shortMsgBytes
}

// scorePhase slices one candidate message at tryPhase (a value in [4,8])
// starting at sample offset pa into dst; the caller decides whether it
// beats the best so far. Returns the score, the byte length used (0 if
// the DF gate rejected it), and false if the DF gate rejected it.
func scorePhase(m []uint16, pa int, tryPhase int, score ScoreFunc, dst []byte, stats *Stats) (int, int, bool) {
	stats.PreamblePhase[tryPhase-4]++

	pos := pa + 19 + tryPhase/5
	phase := tryPhase % 5

	dst[0] = sliceByte(m, &pos, &phase)
	df := uint32(dst[0]) >> 3

	var bytelen int
	if validDFLongBitset&(1<<df) != 0 {
		bytelen = longMsgBytes
	} else if validDFShortBitset&(1<<df) != 0 {
		bytelen = shortMsgBytes
	} else {
		return -2, 0, false
	}

	for i := 1; i < bytelen; i++ {
		dst[i] = sliceByte(m, &pos, &phase)
	}

	s := score(dst[:bytelen], bytelen*8)
	return s, bytelen, true
}

// Demodulate scans one magnitude buffer for Mode-S frames, returning every
// accepted message. stats is updated in place so callers can fold counts
// into a longer-running report.
func Demodulate(buf *magnitude.Buffer, cfg Config, score ScoreFunc, stats *Stats) []Message {
	if !bitsetsInit || bitsetsFor != cfg {
		initBitsets(cfg)
	}

	m := buf.Data
	mlen := len(m)
	if mlen < 20 {
		return nil
	}

	var out []Message
	msg1 := make([]byte, longMsgBytes)
	msg2 := make([]byte, longMsgBytes)
	msg := msg1

	threshold := cfg.PreambleThreshold
	if threshold == 0 {
		threshold = PreambleThresholdDefault
	}
	if cfg.SamplesRecentlyDropped && threshold < PreambleThresholdDropped {
		threshold = PreambleThresholdDropped
	}

	var sumScaledSignalPower uint64

	stop := mlen - 20 // avoid running the 19-sample lookahead off the end
	if stop < 0 {
		stop = 0
	}

	for pa := 0; pa < stop; pa++ {
		// cheap pre-check, unrolled by ten to cut CPU usage.
		found := false
		for u := 0; u < 10; u++ {
			if pa+15 >= mlen {
				break
			}
			if m[pa+1] > m[pa+7] && m[pa+12] > m[pa+14] && m[pa+12] > m[pa+15] {
				found = true
				break
			}
			pa++
		}
		if !found || pa >= mlen || pa+18 >= mlen {
			continue
		}

		baseNoise := int32(m[pa+5]) + int32(m[pa+8]) + int32(m[pa+16]) + int32(m[pa+17]) + int32(m[pa+18])
		refLevel := (baseNoise * int32(threshold)) >> 5

		bestScore := -42
		bestPhase := 0
		var bestmsg []byte

		diff23 := int32(m[pa+2]) - int32(m[pa+3])
		sum14 := int32(m[pa+1]) + int32(m[pa+4])
		diff1011 := int32(m[pa+10]) - int32(m[pa+11])
		common3456 := sum14 - diff23 + int32(m[pa+9]) + int32(m[pa+12])

		tryConsider := func(tryPhase int) {
			if pa+19+tryPhase/5+longMsgBytes*20 > mlen {
				return
			}
			s, bytelen, ok := scorePhase(m, pa, tryPhase, score, msg, stats)
			if !ok {
				if s > bestScore {
					bestScore = s
				}
				return
			}
			if s > bestScore {
				bestScore = s
				bestPhase = tryPhase
				bestmsg = append(bestmsg[:0], msg[:bytelen]...)
				if &msg[0] == &msg1[0] {
					msg = msg2
				} else {
					msg = msg1
				}
			}
		}

		paMag := common3456 - diff1011
		if paMag >= refLevel {
			tryConsider(4)
			tryConsider(5)
		}
		paMag = common3456 + diff1011
		if paMag >= refLevel {
			tryConsider(6)
			tryConsider(7)
		}
		paMag = sum14 + 2*diff23 + diff1011 + int32(m[pa+12])
		if paMag >= refLevel {
			tryConsider(8)
		}

		if bestScore == -42 {
			continue
		}
		stats.Preambles++

		if bestScore < 0 {
			if bestScore == -1 {
				stats.RejectedUnknownICAO++
			} else {
				stats.RejectedBad++
			}
			continue
		}

		msglen := messageLenByType(uint32(bestmsg[0]) >> 3)
		stats.BestPhase[bestPhase-4]++
		stats.Accepted++

		clockTS := buf.ClockAt(pa) + int64((8+56)*12+bestPhase)

		signalLen := msglen * 12 / 5
		var scaledSignalPower uint64
		for k := 0; k < signalLen && pa+19+k < mlen; k++ {
			mag := uint32(m[pa+19+k])
			scaledSignalPower += uint64(mag) * uint64(mag)
		}
		signalPower := float64(scaledSignalPower) / 65535.0 / 65535.0
		signalLevel := signalPower / float64(signalLen)

		stats.SignalPowerSum += signalPower
		stats.SignalPowerCount += uint64(signalLen)
		sumScaledSignalPower += scaledSignalPower
		if signalLevel > stats.PeakSignalPower {
			stats.PeakSignalPower = signalLevel
		}
		if signalLevel > strongSignalThreshold {
			stats.StrongSignals++
		}

		out = append(out, Message{
			Payload:        append([]byte(nil), bestmsg[:msglen]...),
			Phase:          bestPhase - 4,
			Score:          bestScore,
			ClockTimestamp: clockTS,
			SignalLevel:    signalLevel,
		})

		// Skip ahead short of the full frame length so near-colliding
		// followers can still be caught by the preamble detector.
		pa += msglen*8/4 - 1
	}

	sumSignalPower := float64(sumScaledSignalPower) / 65535.0 / 65535.0
	stats.NoisePowerSum += buf.MeanPower*float64(mlen) - sumSignalPower
	stats.NoisePowerCount += uint64(mlen)

	return out
}
