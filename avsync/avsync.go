// Package avsync owns playback time. It tracks one logical clock per stream
// (audio, video), smooths the noisy PTS-vs-wall-time measurements with an
// EWMA, and answers the single question the render loop keeps asking: how far
// is this frame from the master clock right now.
//
// All published PTS values are normalized: the first PTS seen after open (or
// after a seek) becomes the stream origin, so a clock always starts at the
// seek target. Pausing freezes the master clock; resuming shifts every stored
// reference time by the paused interval so the clock picks up exactly where
// it stopped.
package avsync

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Mode selects the master clock.
type Mode int

const (
	// ModeAudioMaster slaves video presentation to the audio clock.
	ModeAudioMaster Mode = iota
	// ModeVideoMaster exists for manual frame stepping. The automatic
	// selection table never picks it.
	ModeVideoMaster
	// ModeExternal uses the wall clock, excluding paused intervals.
	ModeExternal
)

func (m Mode) String() string {
	switch m {
	case ModeAudioMaster:
		return "audio-master"
	case ModeVideoMaster:
		return "video-master"
	case ModeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// ErrNoStreams is returned when media has neither audio nor video.
var ErrNoStreams = errors.New("avsync: media has no audio or video stream")

// SelectMode applies the master-mode table. Audio wins whenever present;
// video-only media runs on the wall clock.
func SelectMode(hasAudio, hasVideo bool) (Mode, error) {
	switch {
	case hasAudio:
		return ModeAudioMaster, nil
	case hasVideo:
		return ModeExternal, nil
	default:
		return 0, ErrNoStreams
	}
}

// Tunables for the controller. Zero values fall back to the defaults below.
type Tunables struct {
	// MaxUpdateInterval is the wall-time trigger: an update older than this
	// is always accepted.
	MaxUpdateInterval time.Duration
	// PTSDeltaThreshold is the media-time trigger, and also the staleness
	// bound below which older PTS values are ignored.
	PTSDeltaThreshold time.Duration
	// Alpha is the EWMA coefficient for drift smoothing, in [0.2, 0.5].
	Alpha float64
}

const (
	defaultMaxUpdateInterval = 50 * time.Millisecond
	defaultPTSDeltaThreshold = 40 * time.Millisecond
	defaultAlpha             = 0.3
)

func (t Tunables) withDefaults() Tunables {
	if t.MaxUpdateInterval <= 0 {
		t.MaxUpdateInterval = defaultMaxUpdateInterval
	}
	if t.PTSDeltaThreshold <= 0 {
		t.PTSDeltaThreshold = defaultPTSDeltaThreshold
	}
	if t.Alpha <= 0 {
		t.Alpha = defaultAlpha
	}
	return t
}

// clock is the state of one logical stream clock. PTS values stored here are
// already normalized to the current origin.
type clock struct {
	started    bool
	hasFirst   bool
	firstPTS   int64 // raw ms of the first sample since the last reset
	ptsMS      int64 // normalized ms of the last accepted update
	sysTime    time.Time
	lastUpdate time.Time
	driftMS    float64
}

func (c *clock) reset() {
	*c = clock{}
}

// normalize maps a raw stream PTS onto the origin-based timeline, capturing
// the stream origin on first use.
func (c *clock) normalize(rawMS, originMS int64) int64 {
	if !c.hasFirst {
		c.firstPTS = rawMS
		c.hasFirst = true
	}
	return originMS + (rawMS - c.firstPTS)
}

// Controller is the A/V sync controller. It is mutated from the audio output
// callback, the video render goroutine, and the playback controller, so every
// update path runs under a short critical section.
type Controller struct {
	log *slog.Logger
	tun Tunables

	mu         sync.Mutex
	mode       Mode
	audio      clock
	video      clock
	originMS   int64
	playStart  time.Time
	started    bool
	paused     bool
	pauseStart time.Time
}

// NewController creates a controller in the given master mode.
func NewController(mode Mode, tun Tunables, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		log:  log.With("component", "avsync"),
		tun:  tun.withDefaults(),
		mode: mode,
	}
}

// Mode returns the master mode chosen at open. It never changes mid-stream.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Start arms the external reference at now. Must be called once when playback
// begins.
func (c *Controller) Start(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playStart = now
	c.started = true
}

// UpdateAudioClock publishes the PTS of the audio sample currently leaving
// the device. Called from the output callback, so it must stay short.
func (c *Controller) UpdateAudioClock(ptsMS int64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateClock(&c.audio, ptsMS, now)
}

// UpdateVideoClock publishes the PTS of the frame just presented.
func (c *Controller) UpdateVideoClock(ptsMS int64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateClock(&c.video, ptsMS, now)
}

func (c *Controller) updateClock(cl *clock, rawMS int64, now time.Time) {
	// Producers are parked while paused or seeking; a straggling callback
	// must not move the frozen clock.
	if c.paused {
		return
	}
	norm := cl.normalize(rawMS, c.originMS)
	deltaMS := c.tun.PTSDeltaThreshold.Milliseconds()

	if cl.started {
		// Stale publication: a PTS behind the clock by more than the delta
		// threshold carries no information (reordered or replayed sample).
		if norm < cl.ptsMS-deltaMS {
			return
		}
		// Update triggers: accept when enough wall time elapsed or the PTS
		// moved far enough. Otherwise the stored pair stays untouched.
		if now.Sub(cl.lastUpdate) < c.tun.MaxUpdateInterval && abs64(norm-cl.ptsMS) < deltaMS {
			return
		}
		predicted := cl.ptsMS + now.Sub(cl.sysTime).Milliseconds()
		measured := norm
		cl.driftMS = c.tun.Alpha*float64(measured-predicted) + (1-c.tun.Alpha)*cl.driftMS
	}

	cl.ptsMS = norm
	cl.sysTime = now
	cl.lastUpdate = now
	cl.started = true
}

// GetMasterClock returns the predicted playback position in milliseconds at
// now. While paused the clock is frozen at its value when Pause was called.
func (c *Controller) GetMasterClock(now time.Time) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masterLocked(now)
}

func (c *Controller) masterLocked(now time.Time) int64 {
	if c.paused && now.After(c.pauseStart) {
		now = c.pauseStart
	}

	switch c.mode {
	case ModeAudioMaster:
		if c.audio.started {
			return predict(&c.audio, now)
		}
	case ModeVideoMaster:
		if c.video.started {
			return predict(&c.video, now)
		}
	}

	// External mode, or a master stream that has not published yet: run on
	// the wall clock from play start, excluding paused intervals.
	if !c.started {
		return c.originMS
	}
	return c.originMS + now.Sub(c.playStart).Milliseconds()
}

func predict(cl *clock, now time.Time) int64 {
	return cl.ptsMS + now.Sub(cl.sysTime).Milliseconds() + int64(cl.driftMS)
}

// CalculateVideoDelay normalizes the frame PTS against the video stream
// origin and returns its distance from the master clock. Positive means the
// frame is early (wait); negative means late.
func (c *Controller) CalculateVideoDelay(framePTSMs int64, now time.Time) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	norm := c.video.normalize(framePTSMs, c.originMS)
	return norm - c.masterLocked(now)
}

// Pause freezes the master clock.
func (c *Controller) Pause() { c.PauseAt(time.Now()) }

// PauseAt is Pause with an explicit timestamp.
func (c *Controller) PauseAt(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.pauseStart = now
}

// Resume unfreezes the clock. The paused interval is added to every stored
// reference time, so the next GetMasterClock reading equals the reading at
// the moment of Pause.
func (c *Controller) Resume() { c.ResumeAt(time.Now()) }

// ResumeAt is Resume with an explicit timestamp.
func (c *Controller) ResumeAt(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	pausedFor := now.Sub(c.pauseStart)
	if pausedFor < 0 {
		pausedFor = 0
	}
	shift(&c.audio, pausedFor)
	shift(&c.video, pausedFor)
	if c.started {
		c.playStart = c.playStart.Add(pausedFor)
	}
	c.paused = false
}

func shift(cl *clock, d time.Duration) {
	if !cl.started {
		return
	}
	cl.sysTime = cl.sysTime.Add(d)
	cl.lastUpdate = cl.lastUpdate.Add(d)
}

// ResetForSeek rebases both clocks on the seek target. The next published
// PTS on each stream defines the new stream origin, so the first frame after
// the seek lands at exactly targetMS.
func (c *Controller) ResetForSeek(targetMS int64) { c.ResetForSeekAt(targetMS, time.Now()) }

// ResetForSeekAt is ResetForSeek with an explicit timestamp.
func (c *Controller) ResetForSeekAt(targetMS int64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio.reset()
	c.video.reset()
	c.originMS = targetMS
	c.playStart = now
	if c.paused {
		c.pauseStart = now
	}
	c.log.Debug("clocks reset for seek", "target_ms", targetMS)
}

// AudioClock returns the last normalized audio PTS, or false before the
// first publication.
func (c *Controller) AudioClock() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio.ptsMS, c.audio.started
}

// VideoClock returns the last normalized video PTS, or false before the
// first publication.
func (c *Controller) VideoClock() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.video.ptsMS, c.video.started
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
