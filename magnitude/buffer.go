// Package magnitude holds the 2.4 Msps magnitude sample buffer that the
// SDR capture collaborator hands to the demodulator.
package magnitude

import "time"

// SampleRate is the fixed sampling rate the demodulator is built around.
const SampleRate = 2400000

// Buffer is a contiguous run of 16-bit unsigned magnitude samples,
// stamped with both a wall-clock and a 12 MHz sample-clock timestamp at
// the start of the buffer.
//
// The buffer is owned by the capture collaborator and is only borrowed for the duration of one
// Demodulate call; nothing in this module retains a reference past that.
type Buffer struct {
	Data []uint16

	// SysTimestamp is the wall-clock time of the first sample.
	SysTimestamp time.Time

	// SampleTimestamp is the monotonic 12 MHz clock value of the first
	// sample, used to stamp decoded messages without touching the
	// wall clock mid-buffer.
	SampleTimestamp int64

	MeanLevel float64
	MeanPower float64
}

// Len reports the number of samples in the buffer.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// ComputeStats fills MeanLevel and MeanPower from Data, used for noise
// estimation by the demodulator and for the home-made signal reports.
func (b *Buffer) ComputeStats() {
	if len(b.Data) == 0 {
		b.MeanLevel = 0
		b.MeanPower = 0
		return
	}

	var sumLevel, sumPower float64
	for _, s := range b.Data {
		level := float64(s) / 65535.0
		sumLevel += level
		sumPower += level * level
	}
	n := float64(len(b.Data))
	b.MeanLevel = sumLevel / n
	b.MeanPower = sumPower / n
}

// ClockAt returns the 12 MHz sample-clock timestamp of the sample at
// offset (in samples) from the start of the buffer.
func (b *Buffer) ClockAt(offset int) int64 {
	return b.SampleTimestamp + int64(offset)*5
}
