// Package demux opens a media URL and produces encoded packets for the
// active audio and video streams. Local files are read on demand; networked
// sources run an async prefetch worker that keeps a byte-budgeted queue of
// packets ahead of the consumer.
package demux

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/zenplay/config"
	"github.com/zsiec/zenplay/errs"
)

// Codec-library configuration is process-wide and must happen exactly once.
var libInitOnce sync.Once

func initLib() {
	libInitOnce.Do(func() {
		astiav.SetLogLevel(astiav.LogLevelError)
	})
}

// StreamInfo describes one active stream.
type StreamInfo struct {
	Index           int
	TimeBase        astiav.Rational
	AvgFrameRate    astiav.Rational
	CodecParameters *astiav.CodecParameters
}

// Demuxer wraps one open container. The format context is guarded by a mutex
// because packet reads and seeks arrive from different goroutines.
type Demuxer struct {
	log *slog.Logger
	url string

	mu sync.Mutex // guards fc
	fc *astiav.FormatContext

	video *StreamInfo
	audio *StreamInfo

	network    bool
	prefetcher *Prefetcher
}

// Open opens the URL, probes its streams, and (for network sources with
// prefetch enabled) starts the prefetch worker.
func Open(url string, cfg config.DemuxConfig, log *slog.Logger) (*Demuxer, error) {
	initLib()
	if log == nil {
		log = slog.Default()
	}

	d := &Demuxer{
		log:     log.With("component", "demuxer"),
		url:     url,
		network: IsNetworkURL(url),
	}

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errs.E(errs.KindOutOfMemory, "demux", "alloc format context", nil)
	}

	opts := astiav.NewDictionary()
	defer opts.Free()
	for k, v := range protocolOptions(url) {
		_ = opts.Set(k, v, 0)
	}

	if err := fc.OpenInput(url, nil, opts); err != nil {
		fc.Free()
		return nil, errs.E(errs.KindIO, "demux", fmt.Sprintf("open input %q", url), err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, errs.E(errs.KindUnsupportedFormat, "demux", "find stream info", err)
	}
	d.fc = fc

	for _, s := range fc.Streams() {
		switch s.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if d.video == nil {
				d.video = streamInfo(s)
			}
		case astiav.MediaTypeAudio:
			if d.audio == nil {
				d.audio = streamInfo(s)
			}
		}
	}
	if d.video == nil && d.audio == nil {
		d.closeInput()
		return nil, errs.E(errs.KindUnsupportedFormat, "demux", "no audio or video stream", nil)
	}

	d.log.Info("input opened",
		"url", url,
		"network", d.network,
		"has_video", d.video != nil,
		"has_audio", d.audio != nil,
		"duration", d.Duration().String(),
	)

	if d.network && cfg.Prefetch.Enable {
		high := int64(cfg.Prefetch.BufferSizeMB) << 20
		low := int64(cfg.Prefetch.MinRefillSizeMB) << 20
		if low <= 0 {
			low = high / 2
		}
		d.prefetcher = newPrefetcher(d.readPacketDirect, high, low, d.log)
	}
	return d, nil
}

func streamInfo(s *astiav.Stream) *StreamInfo {
	return &StreamInfo{
		Index:           s.Index(),
		TimeBase:        s.TimeBase(),
		AvgFrameRate:    s.AvgFrameRate(),
		CodecParameters: s.CodecParameters(),
	}
}

// VideoStream returns the active video stream, or nil.
func (d *Demuxer) VideoStream() *StreamInfo { return d.video }

// AudioStream returns the active audio stream, or nil.
func (d *Demuxer) AudioStream() *StreamInfo { return d.audio }

// HasVideo reports whether a video stream is active.
func (d *Demuxer) HasVideo() bool { return d.video != nil }

// HasAudio reports whether an audio stream is active.
func (d *Demuxer) HasAudio() bool { return d.audio != nil }

// IsNetwork reports whether the source is networked.
func (d *Demuxer) IsNetwork() bool { return d.network }

// Duration returns the container duration, or zero for live sources.
func (d *Demuxer) Duration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fc == nil {
		return 0
	}
	us := d.fc.Duration()
	if us <= 0 {
		return 0
	}
	return time.Duration(us) * time.Microsecond
}

// BufferedBytes returns the prefetch queue depth, or zero without prefetch.
func (d *Demuxer) BufferedBytes() int64 {
	if d.prefetcher == nil {
		return 0
	}
	return d.prefetcher.BufferedBytes()
}

// ReadPacket returns the next packet belonging to an active stream. EOF
// surfaces as (nil, false, nil). The returned packet is owned by the caller,
// which must Free it after ingestion.
func (d *Demuxer) ReadPacket() (*astiav.Packet, bool, error) {
	if d.prefetcher != nil {
		return d.prefetcher.Pop()
	}
	return d.readPacketDirect()
}

// readPacketDirect reads from the container, dropping packets from inactive
// streams.
func (d *Demuxer) readPacketDirect() (*astiav.Packet, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fc == nil {
		return nil, false, errs.E(errs.KindNotInitialized, "demux", "read on closed demuxer", nil)
	}

	for {
		pkt := astiav.AllocPacket()
		if err := d.fc.ReadFrame(pkt); err != nil {
			pkt.Free()
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, io.EOF) {
				return nil, false, nil
			}
			return nil, false, errs.E(errs.KindIO, "demux", "read packet", err)
		}
		if d.isActive(pkt.StreamIndex()) {
			return pkt, true, nil
		}
		pkt.Free()
	}
}

func (d *Demuxer) isActive(idx int) bool {
	if d.video != nil && idx == d.video.Index {
		return true
	}
	if d.audio != nil && idx == d.audio.Index {
		return true
	}
	return false
}

// Seek positions the container at target. The prefetch queue is flushed so
// the next ReadPacket serves post-seek data. Packet queues, decoder state,
// and frame queues are the caller's responsibility.
func (d *Demuxer) Seek(target time.Duration, backward bool) error {
	d.mu.Lock()
	if d.fc == nil {
		d.mu.Unlock()
		return errs.E(errs.KindNotInitialized, "demux", "seek on closed demuxer", nil)
	}

	// Seek on the video stream when present; audio-only media seeks on the
	// audio stream.
	info := d.video
	if info == nil {
		info = d.audio
	}
	ts := int64(target.Seconds() * float64(info.TimeBase.Den()) / float64(info.TimeBase.Num()))

	flags := astiav.NewSeekFlags()
	if backward {
		flags = astiav.NewSeekFlags(astiav.SeekFlagBackward)
	}
	err := d.fc.SeekFrame(info.Index, ts, flags)
	d.mu.Unlock()

	if err != nil {
		return errs.E(errs.KindIO, "demux", fmt.Sprintf("seek to %s", target), err)
	}
	if d.prefetcher != nil {
		d.prefetcher.Flush()
	}
	d.log.Debug("container seek", "target", target.String(), "backward", backward)
	return nil
}

// Close stops the prefetcher and releases the container.
func (d *Demuxer) Close() {
	if d.prefetcher != nil {
		d.prefetcher.Stop()
	}
	d.closeInput()
}

func (d *Demuxer) closeInput() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fc != nil {
		d.fc.CloseInput()
		d.fc.Free()
		d.fc = nil
	}
}
