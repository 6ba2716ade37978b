// Package media defines the timestamp and frame types that flow through the
// ZenPlay pipeline, from demuxing through presentation.
package media

import (
	"time"

	"github.com/asticode/go-astiav"
)

// Default queue capacities for local playback. Sized so that each stage can
// absorb jitter from its neighbor without unbounded memory: roughly one GOP
// of packets, one second of decoded video, and several device buffers of
// resampled audio.
const (
	VideoPacketQueueSize = 64
	AudioPacketQueueSize = 96
	VideoFrameQueueSize  = 30
	AudioFrameQueueSize  = 150
)

// NoPTS marks an absent presentation timestamp.
const NoPTS = astiav.NoPtsValue

// Timestamp carries a stream timestamp pair plus the rational time base that
// converts it to wall time. Conversions are pure.
type Timestamp struct {
	PTS      int64
	DTS      int64
	TimeBase astiav.Rational
}

// PTSMilliseconds converts the PTS to milliseconds. Returns NoPTS unchanged
// when the PTS is absent.
func (t Timestamp) PTSMilliseconds() int64 {
	return toMilliseconds(t.PTS, t.TimeBase)
}

// DTSMilliseconds converts the DTS to milliseconds.
func (t Timestamp) DTSMilliseconds() int64 {
	return toMilliseconds(t.DTS, t.TimeBase)
}

// PTSSeconds converts the PTS to seconds.
func (t Timestamp) PTSSeconds() float64 {
	if t.PTS == NoPTS || t.TimeBase.Den() == 0 {
		return 0
	}
	return float64(t.PTS) * float64(t.TimeBase.Num()) / float64(t.TimeBase.Den())
}

func toMilliseconds(v int64, tb astiav.Rational) int64 {
	if v == NoPTS || tb.Den() == 0 {
		return NoPTS
	}
	return v * 1000 * int64(tb.Num()) / int64(tb.Den())
}

// Frame is a decoded picture (or raw audio frame) together with its stream
// timestamp and the wall-clock instant it left the decoder. The payload is
// always CPU-resident: the decoder downloads hardware-decoded surfaces into
// system memory before emitting them, so no Frame carries a GPU handle.
//
// A Frame is exclusively owned by its queue slot. Pop transfers ownership to
// the consumer, which must call Release exactly once.
type Frame struct {
	Pict    *astiav.Frame
	TS      Timestamp
	Arrival time.Time
}

// Release frees the underlying frame storage. Safe on a zero Frame.
func (f *Frame) Release() {
	if f == nil || f.Pict == nil {
		return
	}
	f.Pict.Free()
	f.Pict = nil
}

// PCMFrame is a resampled audio frame in the fixed output spec: interleaved
// signed 16-bit samples. Owned by its queue slot; the audio callback consumes
// it byte-wise across calls.
type PCMFrame struct {
	Data    []byte
	Samples int
	PTSMs   int64
}
