// Package decode wraps per-stream codec contexts. A Decoder accepts packets
// and yields zero or more decoded frames; a HWContext provides the shared
// GPU device and frame-pool sizing for hardware-accelerated decoding.
package decode

import (
	"errors"
	"log/slog"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/zenplay/errs"
	"github.com/zsiec/zenplay/media"
)

// Options tune a decoder at open time.
type Options struct {
	// ThreadCount of zero lets the codec pick.
	ThreadCount int
	// HW, when non-nil, routes decoding through the hardware device.
	HW *HWContext
	// FrameQueueCap sizes the hardware frame pool for the downstream queue.
	FrameQueueCap int
}

// Decoder wraps a single codec context.
type Decoder struct {
	log      *slog.Logger
	cc       *astiav.CodecContext
	hw       *HWContext
	timeBase astiav.Rational
	stage    string

	// invalidData counts tolerated "invalid data" ingestions. The first one
	// is expected on streams whose leading B-frame precedes its references.
	invalidData int64
}

// Open initializes a codec context for the stream described by params.
func Open(params *astiav.CodecParameters, timeBase astiav.Rational, stage string, opts Options, log *slog.Logger) (*Decoder, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Decoder{
		log:      log.With("component", stage),
		hw:       opts.HW,
		timeBase: timeBase,
		stage:    stage,
	}

	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return nil, errs.E(errs.KindUnsupportedFormat, stage, "no decoder for codec", nil)
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errs.E(errs.KindOutOfMemory, stage, "alloc codec context", nil)
	}
	if err := params.ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, errs.E(errs.KindDecode, stage, "apply codec parameters", err)
	}
	if opts.ThreadCount > 0 {
		cc.SetThreadCount(opts.ThreadCount)
	}
	if opts.HW != nil {
		opts.HW.Apply(cc, opts.ThreadCount, opts.FrameQueueCap)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, errs.E(errs.KindDecode, stage, "open codec", err)
	}
	d.cc = cc
	d.log.Debug("decoder opened", "codec", codec.Name(), "hardware", opts.HW != nil)
	return d, nil
}

// Decode sends one packet and drains every ready frame. An empty result
// means the decoder needs more data.
//
// "Invalid data" from the send side is tolerated: it occurs when the first
// B-frame of a stream arrives before its referenced I/P frame, and the codec
// buffers the packet internally. Receiving must still be attempted.
func (d *Decoder) Decode(pkt *astiav.Packet) ([]*media.Frame, error) {
	if d.cc == nil {
		return nil, errs.E(errs.KindNotInitialized, d.stage, "decode on closed decoder", nil)
	}
	if err := d.cc.SendPacket(pkt); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			// Receive side is full; drain below.
		case errors.Is(err, astiav.ErrInvaliddata):
			d.invalidData++
			if d.invalidData == 1 {
				d.log.Debug("tolerating invalid data on first reference-less frame")
			}
		default:
			return nil, errs.E(errs.KindDecode, d.stage, "send packet", err)
		}
	}
	return d.receiveAll()
}

// Flush drains frames buffered inside the codec at end of stream.
func (d *Decoder) Flush() ([]*media.Frame, error) {
	if d.cc == nil {
		return nil, nil
	}
	if err := d.cc.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return nil, errs.E(errs.KindDecode, d.stage, "send flush packet", err)
	}
	return d.receiveAll()
}

// Reset discards the codec's internal buffers after a seek.
func (d *Decoder) Reset() {
	if d.cc != nil {
		d.cc.FlushBuffers()
	}
}

func (d *Decoder) receiveAll() ([]*media.Frame, error) {
	var out []*media.Frame
	for {
		f := astiav.AllocFrame()
		err := d.cc.ReceiveFrame(f)
		if err != nil {
			f.Free()
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return out, nil
			}
			return out, errs.E(errs.KindDecode, d.stage, "receive frame", err)
		}

		// The codec's reordered PTS is published verbatim. Substituting a
		// "best effort" timestamp breaks B-frame-bearing hardware streams.
		ts := media.Timestamp{PTS: f.Pts(), DTS: f.PktDts(), TimeBase: d.timeBase}

		if d.hw != nil && f.PixelFormat() == d.hw.PixelFormat() {
			sw, terr := d.transfer(f)
			f.Free()
			if terr != nil {
				return out, terr
			}
			f = sw
		}

		out = append(out, &media.Frame{Pict: f, TS: ts, Arrival: time.Now()})
	}
}

// transfer downloads a GPU-resident frame into system memory, recycling the
// hardware pool slot immediately.
func (d *Decoder) transfer(src *astiav.Frame) (*astiav.Frame, error) {
	dst := astiav.AllocFrame()
	if err := src.TransferHardwareData(dst); err != nil {
		dst.Free()
		return nil, errs.E(errs.KindDecode, d.stage, "transfer hardware frame", err)
	}
	dst.SetPts(src.Pts())
	return dst, nil
}

// InvalidDataCount reports how many "invalid data" ingestions were tolerated.
func (d *Decoder) InvalidDataCount() int64 {
	return d.invalidData
}

// Close releases the codec context.
func (d *Decoder) Close() {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
}
