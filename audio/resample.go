// Package audio converts decoded audio to the fixed output spec and serves
// it to the output device, publishing the audio clock from the device's own
// pull callback.
package audio

import (
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/zenplay/errs"
	"github.com/zsiec/zenplay/media"
)

// OutputSpec is the fixed output format: interleaved signed 16-bit PCM.
type OutputSpec struct {
	SampleRate int
	Channels   int
}

func (s OutputSpec) layout() astiav.ChannelLayout {
	if s.Channels == 1 {
		return astiav.ChannelLayoutMono
	}
	return astiav.ChannelLayoutStereo
}

// BytesPerSecond returns the output byte rate.
func (s OutputSpec) BytesPerSecond() int {
	return s.SampleRate * s.Channels * 2
}

// Resampler converts decoded frames to the output spec. The converter is
// created lazily from the first frame's source spec and recreated only when
// the source spec changes.
type Resampler struct {
	log *slog.Logger
	out OutputSpec

	swr *astiav.SoftwareResampleContext
	dst *astiav.Frame

	srcRate   int
	srcFormat astiav.SampleFormat
	srcLayout astiav.ChannelLayout
}

// NewResampler creates a resampler targeting the output spec.
func NewResampler(out OutputSpec, log *slog.Logger) *Resampler {
	if log == nil {
		log = slog.Default()
	}
	return &Resampler{
		log: log.With("component", "resample"),
		out: out,
	}
}

// Convert resamples one decoded frame into a PCMFrame carrying the frame's
// PTS in milliseconds. The input frame remains owned by the caller.
func (r *Resampler) Convert(src *astiav.Frame, ts media.Timestamp) (*media.PCMFrame, error) {
	if err := r.ensure(src); err != nil {
		return nil, err
	}

	// Worst-case output size for this input, padded for resampler delay.
	nb := src.NbSamples()*r.out.SampleRate/src.SampleRate() + 256

	r.dst.Unref()
	r.dst.SetSampleFormat(astiav.SampleFormatS16)
	r.dst.SetChannelLayout(r.out.layout())
	r.dst.SetSampleRate(r.out.SampleRate)
	r.dst.SetNbSamples(nb)
	if err := r.dst.AllocBuffer(0); err != nil {
		return nil, errs.E(errs.KindOutOfMemory, "resample", "alloc output buffer", err)
	}
	if err := r.swr.ConvertFrame(src, r.dst); err != nil {
		return nil, errs.E(errs.KindDecode, "resample", "convert frame", err)
	}

	samples := r.dst.NbSamples()
	if samples == 0 {
		return nil, nil
	}
	pcm, err := r.dst.Data().Bytes(0)
	if err != nil {
		return nil, errs.E(errs.KindDecode, "resample", "read converted samples", err)
	}
	need := samples * r.out.Channels * 2
	if need > len(pcm) {
		need = len(pcm)
	}

	// Bytes already copied the samples out of the reusable dst frame, so the
	// slice can be owned by the queue slot without another staging copy.
	return &media.PCMFrame{
		Data:    pcm[:need],
		Samples: samples,
		PTSMs:   ts.PTSMilliseconds(),
	}, nil
}

// ensure (re)creates the converter when the source spec changes.
func (r *Resampler) ensure(src *astiav.Frame) error {
	if r.swr != nil &&
		src.SampleRate() == r.srcRate &&
		src.SampleFormat() == r.srcFormat &&
		src.ChannelLayout().Equal(r.srcLayout) {
		return nil
	}

	if r.swr != nil {
		r.log.Debug("source spec changed, recreating converter",
			"rate", src.SampleRate(), "format", src.SampleFormat().String())
		r.swr.Free()
		r.swr = nil
	}

	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return errs.E(errs.KindOutOfMemory, "resample", "alloc resample context", nil)
	}
	r.swr = swr
	if r.dst == nil {
		r.dst = astiav.AllocFrame()
	}
	r.srcRate = src.SampleRate()
	r.srcFormat = src.SampleFormat()
	r.srcLayout = src.ChannelLayout()
	return nil
}

// Close frees the converter and its staging frame.
func (r *Resampler) Close() {
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}
	if r.dst != nil {
		r.dst.Free()
		r.dst = nil
	}
}
