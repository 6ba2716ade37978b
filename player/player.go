// Package player creates and orchestrates the playback pipeline: demuxer,
// decoders, resampler, audio and video players, renderer, and the sync
// controller. Four workers move data through exactly one bounded queue per
// stage boundary; producers block on push and consumers on pop, so there is
// no timed polling anywhere on the media path.
package player

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/google/uuid"
	"github.com/veandco/go-sdl2/sdl"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/zenplay/audio"
	"github.com/zsiec/zenplay/avsync"
	"github.com/zsiec/zenplay/config"
	"github.com/zsiec/zenplay/decode"
	"github.com/zsiec/zenplay/demux"
	"github.com/zsiec/zenplay/errs"
	"github.com/zsiec/zenplay/media"
	"github.com/zsiec/zenplay/queue"
	"github.com/zsiec/zenplay/render"
	"github.com/zsiec/zenplay/state"
	"github.com/zsiec/zenplay/stats"
	"github.com/zsiec/zenplay/video"
)

// consecutiveDecodeLimit faults the player after this many decode failures
// in a row on the same stream.
const consecutiveDecodeLimit = 3

// eosPollInterval paces the end-of-stream drain check after the demuxer hits
// EOF. This is bookkeeping, not back-pressure; the media path never polls.
const eosPollInterval = 100 * time.Millisecond

// Player is the playback controller. At most one is active per window.
type Player struct {
	id    string
	log   *slog.Logger
	cfg   config.Config
	st    *state.Manager
	stats *stats.Counters

	dm       *demux.Demuxer
	sync     *avsync.Controller
	sel      *render.Selection
	videoDec *decode.Decoder
	audioDec *decode.Decoder
	res      *audio.Resampler
	audioOut *audio.Player
	videoOut *video.Player

	videoPktQ *queue.Queue[*astiav.Packet]
	audioPktQ *queue.Queue[*astiav.Packet]

	g      *errgroup.Group
	stopCh chan struct{}

	seekMu      sync.Mutex
	seekTarget  time.Duration
	seekPending bool
	seekCh      chan struct{}
	seekGen     atomic.Int64

	startedAt time.Time
	running   bool
	stopOnce  sync.Once
}

// New creates an idle player with the given configuration.
func New(cfg config.Config, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	return &Player{
		id:     id,
		log:    log.With("component", "player", "player", id[:8]),
		cfg:    cfg,
		st:     state.NewManager(log),
		stats:  &stats.Counters{},
		stopCh: make(chan struct{}),
		seekCh: make(chan struct{}, 1),
	}
}

// StateManager exposes the state machine for listener registration.
func (p *Player) StateManager() *state.Manager { return p.st }

// Open probes the URL, selects the render path, and builds the pipeline.
// The window is the presentation target for video streams.
func (p *Player) Open(url string, window *sdl.Window, width, height int) error {
	if p.st.State() != state.Idle {
		return errs.E(errs.KindInvalidState, "player", "open on non-idle player", nil)
	}
	if err := p.st.Transition(state.Opening); err != nil {
		return err
	}

	dm, err := demux.Open(url, p.cfg.Demux, p.log)
	if err != nil {
		_ = p.st.Transition(state.Error)
		return err
	}
	p.dm = dm

	mode, err := avsync.SelectMode(dm.HasAudio(), dm.HasVideo())
	if err != nil {
		dm.Close()
		_ = p.st.Transition(state.Error)
		return errs.E(errs.KindUnsupportedFormat, "player", "invalid media", err)
	}
	p.sync = avsync.NewController(mode, avsync.Tunables{
		MaxUpdateInterval: time.Duration(p.cfg.Sync.MaxUpdateIntervalMS) * time.Millisecond,
		PTSDeltaThreshold: time.Duration(p.cfg.Sync.PTSDeltaThresholdMS) * time.Millisecond,
		Alpha:             p.cfg.Sync.EWMAAlpha,
	}, p.log)
	p.log.Info("sync mode selected", "mode", mode.String())

	if dm.HasVideo() {
		if err := p.openVideoPath(window, width, height); err != nil {
			p.teardown()
			_ = p.st.Transition(state.Error)
			return err
		}
		p.videoPktQ = queue.New[*astiav.Packet](media.VideoPacketQueueSize)
	}
	if dm.HasAudio() {
		if err := p.openAudioPath(); err != nil {
			p.teardown()
			_ = p.st.Transition(state.Error)
			return err
		}
		p.audioPktQ = queue.New[*astiav.Packet](media.AudioPacketQueueSize)
	}

	return p.st.Transition(state.Ready)
}

// openVideoPath selects the render path, opens the video decoder (falling
// back to software when hardware open fails and fallback is allowed), and
// initializes the renderer on the shared device.
func (p *Player) openVideoPath(window *sdl.Window, width, height int) error {
	info := p.dm.VideoStream()
	codec := astiav.FindDecoder(info.CodecParameters.CodecID())
	if codec == nil {
		return errs.E(errs.KindUnsupportedFormat, "player", "no video decoder", nil)
	}

	sel, err := render.SelectPath(codec, p.cfg.Render, p.stats, p.log)
	if err != nil {
		return err
	}

	opts := decode.Options{HW: sel.HW, FrameQueueCap: media.VideoFrameQueueSize}
	dec, err := decode.Open(info.CodecParameters, info.TimeBase, "video-decode", opts, p.log)
	if err != nil && sel.IsHardware && p.cfg.Render.AllowFallback {
		// Hardware open failure is non-fatal with fallback: re-init the
		// render path in software.
		p.log.Warn("hardware decoder open failed, falling back to software", "error", err)
		sel.HW.Close()
		swCfg := p.cfg.Render
		swCfg.UseHardware = false
		sel, _ = render.SelectPath(codec, swCfg, p.stats, p.log)
		dec, err = decode.Open(info.CodecParameters, info.TimeBase, "video-decode", decode.Options{}, p.log)
	}
	if err != nil {
		return err
	}
	p.sel = sel
	p.videoDec = dec

	var shared *astiav.HardwareDeviceContext
	if sel.HW != nil {
		shared = sel.HW.SharedDevice()
	}
	if err := sel.Renderer.Init(window, width, height, shared); err != nil {
		return err
	}
	p.videoOut = video.NewPlayer(sel.Renderer, p.sync, p.st, p.stats, p.cfg.Sync.Video, p.cfg.Render.MaxFPS, p.log)
	return nil
}

func (p *Player) openAudioPath() error {
	info := p.dm.AudioStream()
	dec, err := decode.Open(info.CodecParameters, info.TimeBase, "audio-decode", decode.Options{}, p.log)
	if err != nil {
		return err
	}
	p.audioDec = dec
	p.res = audio.NewResampler(audio.OutputSpec{
		SampleRate: p.cfg.Audio.Output.SampleRate,
		Channels:   p.cfg.Audio.Output.Channels,
	}, p.log)
	out, err := audio.NewPlayer(p.cfg.Audio.Output, p.sync, p.stats, p.log)
	if err != nil {
		return err
	}
	p.audioOut = out
	return nil
}

// Start transitions to Playing and launches the workers.
func (p *Player) Start() error {
	if p.st.State() != state.Ready {
		return errs.E(errs.KindInvalidState, "player", "start requires Ready", nil)
	}
	if p.running {
		return errs.E(errs.KindAlreadyRunning, "player", "workers already running", nil)
	}
	if err := p.st.Transition(state.Playing); err != nil {
		return err
	}
	p.startedAt = time.Now()
	p.sync.Start(p.startedAt)

	p.g = &errgroup.Group{}
	p.g.Go(p.demuxLoop)
	if p.videoOut != nil {
		p.g.Go(p.videoDecodeLoop)
		p.videoOut.Start()
	}
	if p.audioOut != nil {
		p.g.Go(p.audioDecodeLoop)
		p.audioOut.Start()
	}
	p.g.Go(p.seekLoop)
	p.running = true
	p.log.Info("playback started")
	return nil
}

// Pause freezes playback. Producers stop publishing clock updates before
// the sync controller freezes.
func (p *Player) Pause() error {
	if p.st.State() != state.Playing {
		return nil
	}
	if p.audioOut != nil {
		p.audioOut.Pause()
	}
	if err := p.st.Transition(state.Paused); err != nil {
		return err
	}
	p.sync.Pause()
	return nil
}

// Resume unfreezes playback. Clocks are adjusted before producers resume.
func (p *Player) Resume() error {
	if p.st.State() != state.Paused {
		return nil
	}
	p.sync.Resume()
	if err := p.st.Transition(state.Playing); err != nil {
		return err
	}
	if p.audioOut != nil {
		p.audioOut.Resume()
	}
	return nil
}

// Seek requests an asynchronous seek. Requests are single-flight: a newer
// target supersedes an older pending one.
func (p *Player) Seek(target time.Duration) {
	p.seekMu.Lock()
	p.seekTarget = target
	p.seekPending = true
	p.seekMu.Unlock()
	select {
	case p.seekCh <- struct{}{}:
	default:
	}
}

// Stop halts all workers, drains every queue, and tears the pipeline down
// to Stopped.
func (p *Player) Stop() {
	p.stopOnce.Do(p.stop)
}

func (p *Player) stop() {
	cur := p.st.State()
	if cur != state.Error {
		_ = p.st.Transition(state.Stopping)
	}
	close(p.stopCh)

	if p.videoPktQ != nil {
		p.videoPktQ.Stop()
	}
	if p.audioPktQ != nil {
		p.audioPktQ.Stop()
	}
	if p.audioOut != nil {
		p.audioOut.Stop()
	}
	if p.videoOut != nil {
		p.videoOut.Stop()
	}
	if p.dm != nil {
		p.dm.Close()
	}
	if p.g != nil {
		if err := p.g.Wait(); err != nil {
			p.log.Warn("worker exited with error", "error", err)
		}
	}
	p.clearAllQueues()
	_ = p.st.Transition(state.Stopped)
	p.running = false
	p.log.Info("playback stopped")
}

// Close stops playback and releases every resource.
func (p *Player) Close() {
	p.Stop()
	p.teardown()
}

func (p *Player) teardown() {
	if p.videoDec != nil {
		p.videoDec.Close()
		p.videoDec = nil
	}
	if p.audioDec != nil {
		p.audioDec.Close()
		p.audioDec = nil
	}
	if p.res != nil {
		p.res.Close()
		p.res = nil
	}
	if p.sel != nil {
		p.sel.Renderer.Cleanup()
		if p.sel.HW != nil {
			p.sel.HW.Close()
		}
		p.sel = nil
	}
	if p.dm != nil {
		p.dm.Close()
		p.dm = nil
	}
}

// State returns the current playback state.
func (p *Player) State() state.State { return p.st.State() }

// Duration returns the container duration.
func (p *Player) Duration() time.Duration {
	if p.dm == nil {
		return 0
	}
	return p.dm.Duration()
}

// Position returns the master-clock playback position.
func (p *Player) Position() time.Duration {
	if p.sync == nil {
		return 0
	}
	return time.Duration(p.sync.GetMasterClock(time.Now())) * time.Millisecond
}

// SetVolume sets the audio volume in [0, 1].
func (p *Player) SetVolume(v float64) {
	if p.audioOut != nil {
		p.audioOut.SetVolume(v)
	}
}

// Volume returns the audio volume, or zero without audio.
func (p *Player) Volume() float64 {
	if p.audioOut == nil {
		return 0
	}
	return p.audioOut.Volume()
}

// SetMuted mutes or unmutes audio. No effect without audio.
func (p *Player) SetMuted(muted bool) {
	if p.audioOut != nil {
		p.audioOut.SetMuted(muted)
	}
}

// Muted reports whether audio is muted. Media without audio reports true.
func (p *Player) Muted() bool {
	if p.audioOut == nil {
		return true
	}
	return p.audioOut.Muted()
}

// Resize propagates a window resize to the renderer. Idempotent.
func (p *Player) Resize(width, height int) {
	if p.sel != nil {
		p.sel.Renderer.Resize(width, height)
	}
}

// Snapshot captures playback statistics.
func (p *Player) Snapshot() stats.Snapshot {
	videoDepth, audioDepth := 0, 0
	if p.videoOut != nil {
		videoDepth = p.videoOut.QueueDepth()
	}
	if p.audioOut != nil {
		audioDepth = p.audioOut.QueueDepth()
	}
	return p.stats.Snapshot(p.id, p.startedAt, time.Now(), videoDepth, audioDepth)
}

// freePacket is the queue cleanup callback; nil entries are EOF sentinels.
func freePacket(pkt *astiav.Packet) {
	if pkt != nil {
		pkt.Free()
	}
}

// clearAllQueues empties every pipeline queue, releasing packet and frame
// resources through the queues' cleanup callbacks.
func (p *Player) clearAllQueues() {
	if p.videoPktQ != nil {
		p.videoPktQ.Clear(freePacket)
	}
	if p.audioPktQ != nil {
		p.audioPktQ.Clear(freePacket)
	}
	if p.videoOut != nil {
		p.videoOut.ClearFrames()
	}
	if p.audioOut != nil {
		p.audioOut.ClearFrames()
	}
}
