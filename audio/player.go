package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/zsiec/zenplay/avsync"
	"github.com/zsiec/zenplay/config"
	"github.com/zsiec/zenplay/errs"
	"github.com/zsiec/zenplay/media"
	"github.com/zsiec/zenplay/queue"
	"github.com/zsiec/zenplay/stats"
)

// The device context is process-wide; oto allows exactly one.
var (
	otoOnce    sync.Once
	otoCtx     *oto.Context
	otoInitErr error
)

func initOto(spec OutputSpec) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   spec.SampleRate,
			ChannelCount: spec.Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		var ready chan struct{}
		otoCtx, ready, otoInitErr = oto.NewContext(op)
		if otoInitErr == nil {
			<-ready
		}
	})
	return otoCtx, otoInitErr
}

// nominalFrameMS approximates one resampled frame (1024 samples at 44.1 kHz).
const nominalFrameMS = 23

// queueCapacity sizes the frame queue so it always exceeds the device's
// first-callback demand by a 3-4x margin. The first pull after start
// typically requests the full device buffer at once.
func queueCapacity(bufferMS int) int {
	firstDemand := bufferMS/nominalFrameMS + 1
	capacity := firstDemand * 7 / 2
	if capacity < 64 {
		capacity = 64
	}
	return capacity
}

// Player owns the bounded queue of resampled frames and serves the output
// device through a pull callback that publishes the audio clock.
type Player struct {
	log   *slog.Logger
	sync  *avsync.Controller
	stats *stats.Counters
	spec  OutputSpec

	frames *queue.Queue[*media.PCMFrame]

	player   *oto.Player
	bufBytes int

	paused  atomic.Bool
	stopped atomic.Bool

	volMu  sync.Mutex
	volume float64
	muted  bool

	// pending is the partially consumed frame between callbacks. Guarded by
	// pendMu, which is only ever held for a few instructions.
	pendMu     sync.Mutex
	pending    *media.PCMFrame
	pendingOff int
}

// NewPlayer negotiates the output device for the fixed output spec.
func NewPlayer(cfg config.AudioOutputConfig, sc *avsync.Controller, st *stats.Counters, log *slog.Logger) (*Player, error) {
	if log == nil {
		log = slog.Default()
	}
	spec := OutputSpec{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if _, err := initOto(spec); err != nil {
		return nil, errs.E(errs.KindAudioDevice, "audio", "init output device", err)
	}

	capacity := queueCapacity(cfg.BufferMS)
	p := &Player{
		log:      log.With("component", "audio"),
		sync:     sc,
		stats:    st,
		spec:     spec,
		frames:   queue.New[*media.PCMFrame](capacity),
		bufBytes: cfg.BufferMS * spec.BytesPerSecond() / 1000,
		volume:   1.0,
	}
	p.log.Debug("audio output ready",
		"rate", spec.SampleRate, "channels", spec.Channels,
		"queue_capacity", capacity, "device_buffer_ms", cfg.BufferMS)
	return p, nil
}

// Spec returns the negotiated output spec.
func (p *Player) Spec() OutputSpec { return p.spec }

// PushFrame enqueues a resampled frame with back-pressure. A zero timeout
// blocks until space frees up or the player stops. With a positive timeout,
// a full queue evicts the oldest frame (the event is counted) so live
// sources keep moving.
func (p *Player) PushFrame(f *media.PCMFrame, timeout time.Duration) bool {
	if timeout == 0 {
		return p.frames.Push(f)
	}
	for {
		if p.frames.PushTimeout(f, timeout) {
			return true
		}
		if p.stopped.Load() {
			return false
		}
		if _, ok := p.frames.TryPop(); ok {
			p.stats.AudioFramesDrop.Add(1)
		}
	}
}

// Start creates the device player and begins pulling.
func (p *Player) Start() {
	if p.player != nil {
		return
	}
	p.player = otoCtx.NewPlayer(p)
	if p.bufBytes > 0 {
		p.player.SetBufferSize(p.bufBytes)
	}
	p.player.SetVolume(p.effectiveVolume())
	p.player.Play()
}

// Pause silences output without draining the queue.
func (p *Player) Pause() {
	p.paused.Store(true)
	if p.player != nil {
		p.player.Pause()
	}
}

// Resume restarts output.
func (p *Player) Resume() {
	p.paused.Store(false)
	if p.player != nil {
		p.player.Play()
	}
}

// Stop halts output permanently and releases the device player.
func (p *Player) Stop() {
	if p.stopped.Swap(true) {
		return
	}
	p.frames.Stop()
	if p.player != nil {
		_ = p.player.Close()
		p.player = nil
	}
}

// ClearFrames drops all queued frames, including the partial one.
func (p *Player) ClearFrames() {
	p.frames.Clear(nil)
	p.pendMu.Lock()
	p.pending = nil
	p.pendingOff = 0
	p.pendMu.Unlock()
}

// QueueDepth returns the number of queued frames.
func (p *Player) QueueDepth() int { return p.frames.Len() }

// SetVolume sets the volume in [0, 1]. Volume survives mute toggles.
func (p *Player) SetVolume(v float64) {
	p.volMu.Lock()
	p.volume = v
	p.volMu.Unlock()
	p.applyVolume()
}

// Volume returns the configured volume, regardless of mute state.
func (p *Player) Volume() float64 {
	p.volMu.Lock()
	defer p.volMu.Unlock()
	return p.volume
}

// SetMuted mutes or unmutes output without losing the configured volume.
func (p *Player) SetMuted(muted bool) {
	p.volMu.Lock()
	p.muted = muted
	p.volMu.Unlock()
	p.applyVolume()
}

// Muted reports whether output is muted.
func (p *Player) Muted() bool {
	p.volMu.Lock()
	defer p.volMu.Unlock()
	return p.muted
}

func (p *Player) effectiveVolume() float64 {
	p.volMu.Lock()
	defer p.volMu.Unlock()
	if p.muted {
		return 0
	}
	return p.volume
}

func (p *Player) applyVolume() {
	if p.player != nil {
		p.player.SetVolume(p.effectiveVolume())
	}
}

// Read is the output callback, invoked on the device's own goroutine. It
// must not block and must not allocate: frames are taken with TryPop, a
// shortfall is zero-filled and counted, and the PTS of the first consumed
// frame is published as the current playback position.
func (p *Player) Read(buf []byte) (int, error) {
	if p.stopped.Load() || p.paused.Load() {
		zeroFill(buf)
		return len(buf), nil
	}

	n := 0
	currentPTS := int64(media.NoPTS)

	p.pendMu.Lock()
	for n < len(buf) {
		if p.pending == nil {
			f, ok := p.frames.TryPop()
			if !ok {
				break
			}
			p.pending = f
			p.pendingOff = 0
		}
		if currentPTS == media.NoPTS && p.pending.PTSMs != media.NoPTS {
			currentPTS = p.pending.PTSMs
		}
		c := copy(buf[n:], p.pending.Data[p.pendingOff:])
		n += c
		p.pendingOff += c
		if p.pendingOff >= len(p.pending.Data) {
			p.pending = nil
			p.pendingOff = 0
		}
	}
	p.pendMu.Unlock()

	if n < len(buf) {
		zeroFill(buf[n:])
		if n == 0 {
			p.stats.AudioUnderruns.Add(1)
		}
	}
	if currentPTS != media.NoPTS {
		p.sync.UpdateAudioClock(currentPTS, time.Now())
	}
	return len(buf), nil
}

func zeroFill(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
