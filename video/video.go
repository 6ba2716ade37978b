// Package video owns the ordered queue of decoded frames and the render
// loop that presents them against the master clock. The loop is the sole
// consumer of the frame queue; its lateness propagates back to the decode
// worker purely through the queue's watermark push.
package video

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/zenplay/avsync"
	"github.com/zsiec/zenplay/config"
	"github.com/zsiec/zenplay/media"
	"github.com/zsiec/zenplay/queue"
	"github.com/zsiec/zenplay/render"
	"github.com/zsiec/zenplay/state"
	"github.com/zsiec/zenplay/stats"
)

// action is the present-policy outcome for one frame at one instant.
type action int

const (
	actionWait action = iota
	actionPresent
	actionPresentLate
	actionDrop
)

// decide classifies a frame's delay against the policy thresholds. Positive
// delay means the frame is early. A frame in the narrow band between the
// repeat and drop thresholds is presented once, never repeated; the event is
// counted so the policy stays observable.
func decide(delayMS int64, t config.VideoSyncConfig) action {
	switch {
	case delayMS > int64(t.ThresholdLateMS):
		return actionWait
	case delayMS < -int64(t.ThresholdDropMS):
		return actionDrop
	case delayMS < -int64(t.ThresholdRepeatMS):
		return actionPresentLate
	default:
		return actionPresent
	}
}

// maxRenderSleep bounds a single wait so stop and seek stay responsive.
const maxRenderSleep = 100 * time.Millisecond

// consecutiveFailureLimit is how many render failures in a row fault the
// player.
const consecutiveFailureLimit = 3

// Player runs the video render loop.
type Player struct {
	log      *slog.Logger
	st       *state.Manager
	sync     *avsync.Controller
	renderer render.Renderer
	stats    *stats.Counters
	cfg      config.VideoSyncConfig
	maxFPS   int

	frames  *queue.Queue[*media.Frame]
	seekGen atomic.Int64
	wg      sync.WaitGroup
}

// NewPlayer wires the render loop to its collaborators. The renderer must
// already be initialized.
func NewPlayer(r render.Renderer, sc *avsync.Controller, sm *state.Manager, st *stats.Counters, cfg config.VideoSyncConfig, maxFPS int, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{
		log:      log.With("component", "video"),
		st:       sm,
		sync:     sc,
		renderer: r,
		stats:    st,
		cfg:      cfg,
		maxFPS:   maxFPS,
		frames:   queue.New[*media.Frame](media.VideoFrameQueueSize),
	}
}

// Start launches the render loop goroutine.
func (p *Player) Start() {
	p.wg.Add(1)
	go p.renderLoop()
}

// PushFrameBlocking hands a decoded frame to the render loop. It waits until
// queue occupancy is below the 75% watermark — the single point where render
// lateness back-pressures decoding. A zero timeout waits until stop. Returns
// false (and releases the frame) if the player stopped first.
func (p *Player) PushFrameBlocking(f *media.Frame, timeout time.Duration) bool {
	watermark := p.frames.Cap() * 3 / 4
	start := time.Now()
	ok := p.frames.PushBelow(f, watermark, timeout)
	p.stats.DecodePushBlocked.Add(time.Since(start).Nanoseconds())
	if !ok {
		f.Release()
	}
	return ok
}

// PreSeek prepares for a seek: it invalidates the in-flight frame, clears
// the queue, and drops the renderer's per-frame caches. The state machine
// must already be in Seeking so the render loop is parked.
func (p *Player) PreSeek() {
	p.seekGen.Add(1)
	p.ClearFrames()
	p.renderer.ClearCaches()
}

// ClearFrames drains the queue, releasing every frame.
func (p *Player) ClearFrames() {
	p.frames.Clear(func(f *media.Frame) { f.Release() })
}

// QueueDepth returns the number of queued frames.
func (p *Player) QueueDepth() int { return p.frames.Len() }

// Stop terminates the render loop and drains the queue.
func (p *Player) Stop() {
	p.frames.Stop()
	p.wg.Wait()
	p.ClearFrames()
}

func (p *Player) renderLoop() {
	defer p.wg.Done()

	var minInterval time.Duration
	if p.maxFPS > 0 {
		minInterval = time.Second / time.Duration(p.maxFPS)
	}
	failures := 0
	var lastPresent time.Time

	for {
		if p.st.ShouldStop() {
			return
		}
		if p.st.ShouldPause() {
			if !p.st.WaitForResume() {
				return
			}
		}

		gen := p.seekGen.Load()
		f, ok := p.frames.Pop()
		if !ok {
			return
		}

		if !p.pace(f, gen, &failures, minInterval, &lastPresent) {
			return
		}
	}
}

// pace delays, drops, or presents one frame. Returns false when the loop
// must exit.
func (p *Player) pace(f *media.Frame, gen int64, failures *int, minInterval time.Duration, lastPresent *time.Time) bool {
	defer f.Release()

	for {
		if p.st.ShouldStop() {
			return false
		}
		if p.st.ShouldPause() {
			if !p.st.WaitForResume() {
				return false
			}
			// A seek while parked invalidates this frame; its PTS belongs
			// to the old timeline and must not seed the new origin.
			if p.seekGen.Load() != gen {
				return true
			}
		}

		ptsMS := f.TS.PTSMilliseconds()
		if ptsMS == media.NoPTS {
			return p.present(f, ptsMS, false, failures, minInterval, lastPresent)
		}

		now := time.Now()
		delay := p.sync.CalculateVideoDelay(ptsMS, now)

		switch decide(delay, p.cfg) {
		case actionWait:
			sleep := time.Duration(delay-int64(p.cfg.ThresholdLateMS)) * time.Millisecond
			if sleep > maxRenderSleep {
				sleep = maxRenderSleep
			}
			time.Sleep(sleep)

		case actionDrop:
			p.stats.FramesDropped.Add(1)
			return true

		case actionPresentLate:
			p.stats.FramesLate.Add(1)
			return p.present(f, ptsMS, true, failures, minInterval, lastPresent)

		case actionPresent:
			return p.present(f, ptsMS, true, failures, minInterval, lastPresent)
		}
	}
}

func (p *Player) present(f *media.Frame, ptsMS int64, updateClock bool, failures *int, minInterval time.Duration, lastPresent *time.Time) bool {
	if minInterval > 0 && !lastPresent.IsZero() {
		if wait := minInterval - time.Since(*lastPresent); wait > 0 {
			time.Sleep(wait)
		}
	}

	if err := p.renderer.RenderFrame(f); err != nil {
		*failures++
		p.stats.RenderErrors.Add(1)
		p.log.Warn("render failed", "error", err, "consecutive", *failures)
		if *failures >= consecutiveFailureLimit {
			_ = p.st.Transition(state.Error)
			return false
		}
		return true
	}
	*failures = 0
	*lastPresent = time.Now()
	p.stats.FramesRendered.Add(1)
	if updateClock {
		p.sync.UpdateVideoClock(ptsMS, time.Now())
	}
	return true
}
