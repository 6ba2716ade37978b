package avsync

import (
	"testing"
	"time"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(ms int64) time.Time {
	return base.Add(time.Duration(ms) * time.Millisecond)
}

func newTestController(mode Mode) *Controller {
	c := NewController(mode, Tunables{}, nil)
	c.Start(at(0))
	return c
}

func TestSelectMode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		hasAudio, hasVideo bool
		want               Mode
		wantErr            bool
	}{
		{true, true, ModeAudioMaster, false},
		{true, false, ModeAudioMaster, false},
		{false, true, ModeExternal, false},
		{false, false, 0, true},
	}
	for _, tc := range cases {
		got, err := SelectMode(tc.hasAudio, tc.hasVideo)
		if tc.wantErr {
			if err == nil {
				t.Errorf("SelectMode(%v, %v): expected error", tc.hasAudio, tc.hasVideo)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("SelectMode(%v, %v) = (%v, %v), want %v", tc.hasAudio, tc.hasVideo, got, err, tc.want)
		}
	}
}

func TestAudioMasterPrediction(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeAudioMaster)

	c.UpdateAudioClock(1000, at(0)) // first PTS becomes origin: normalized 0
	if got := c.GetMasterClock(at(100)); got != 100 {
		t.Errorf("master at +100ms = %d, want 100", got)
	}

	c.UpdateAudioClock(1200, at(200))
	if got := c.GetMasterClock(at(250)); absDiff(got, 250) > 1 {
		t.Errorf("master at +250ms = %d, want ~250", got)
	}
}

// Property: immediately before pause() and immediately after the matching
// resume(), get_master_clock returns the same value.
func TestPauseResumeRoundTrip(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeAudioMaster)
	c.UpdateAudioClock(0, at(0))
	c.UpdateAudioClock(500, at(500))

	before := c.GetMasterClock(at(2000))
	c.PauseAt(at(2000))

	// Frozen while paused.
	if got := c.GetMasterClock(at(4000)); absDiff(got, before) > 1 {
		t.Errorf("paused clock moved: %d, want %d", got, before)
	}

	c.ResumeAt(at(5000))
	after := c.GetMasterClock(at(5000))
	if absDiff(after, before) > 1 {
		t.Errorf("resume changed the clock: before %d, after %d", before, after)
	}

	// The clock keeps advancing from the pre-pause value.
	if got := c.GetMasterClock(at(5100)); absDiff(got, before+100) > 1 {
		t.Errorf("post-resume advance = %d, want ~%d", got, before+100)
	}
}

// Pause/resume in external mode excludes the paused interval from the wall
// clock.
func TestPauseResumeExternal(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeExternal)

	before := c.GetMasterClock(at(2000))
	if before != 2000 {
		t.Fatalf("external master = %d, want 2000", before)
	}
	c.PauseAt(at(2000))
	c.ResumeAt(at(5000))
	if got := c.GetMasterClock(at(5100)); absDiff(got, 2100) > 1 {
		t.Errorf("external master after pause = %d, want ~2100", got)
	}
}

// Property: after reset_for_seek(T), the first master reading following the
// first clock update is T (the first published PTS normalizes to 0).
func TestResetForSeek(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeAudioMaster)
	c.UpdateAudioClock(0, at(0))
	c.UpdateAudioClock(5000, at(5000))

	c.ResetForSeekAt(1000, at(5000))
	// Raw PTS after the seek lands near the container keyframe, not at 0.
	c.UpdateAudioClock(987, at(5100))

	if got := c.GetMasterClock(at(5100)); absDiff(got, 1000) > 1 {
		t.Errorf("master after seek = %d, want ~1000", got)
	}
}

func TestSeekIdempotent(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeAudioMaster)
	c.UpdateAudioClock(0, at(0))

	c.ResetForSeekAt(3000, at(100))
	c.ResetForSeekAt(3000, at(101))
	c.UpdateAudioClock(2990, at(200))

	if got := c.GetMasterClock(at(200)); absDiff(got, 3000) > 1 {
		t.Errorf("double seek master = %d, want ~3000", got)
	}
}

// Property: an update below both triggers must not change the stored pair.
func TestUpdateTriggerSuppression(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeAudioMaster)
	c.UpdateAudioClock(0, at(0))

	// +10ms wall, +10ms pts: below the 50ms interval and 40ms delta.
	c.UpdateAudioClock(10, at(10))
	pts, _ := c.AudioClock()
	if pts != 0 {
		t.Errorf("suppressed update changed pts to %d", pts)
	}

	// Delta trigger fires alone.
	c.UpdateAudioClock(45, at(20))
	pts, _ = c.AudioClock()
	if pts != 45 {
		t.Errorf("delta trigger did not fire: pts = %d", pts)
	}

	// Interval trigger fires alone.
	c.UpdateAudioClock(55, at(80))
	pts, _ = c.AudioClock()
	if pts != 55 {
		t.Errorf("interval trigger did not fire: pts = %d", pts)
	}
}

func TestStalePTSIgnored(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeAudioMaster)
	c.UpdateAudioClock(0, at(0))
	c.UpdateAudioClock(1000, at(1000))

	// 900ms behind the clock: beyond the delta threshold, ignored.
	c.UpdateAudioClock(100, at(1100))
	pts, _ := c.AudioClock()
	if pts != 1000 {
		t.Errorf("stale update accepted: pts = %d", pts)
	}
}

func TestCalculateVideoDelay(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeAudioMaster)
	c.UpdateAudioClock(0, at(0))
	// First frame defines the video-stream origin.
	c.CalculateVideoDelay(0, at(0))

	// Audio master reads 500 at +500ms; a frame with pts 540 is 40ms early.
	if got := c.CalculateVideoDelay(540, at(500)); absDiff(got, 40) > 1 {
		t.Errorf("delay = %d, want ~40", got)
	}
	// A frame with pts 300 is 200ms late.
	if got := c.CalculateVideoDelay(300, at(500)); absDiff(got, -200) > 1 {
		t.Errorf("delay = %d, want ~-200", got)
	}
}

// The first frame after a seek must land at normalized PTS 0 relative to
// the target.
func TestVideoDelayAfterSeek(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeAudioMaster)
	c.UpdateAudioClock(0, at(0))
	c.CalculateVideoDelay(0, at(0))

	c.ResetForSeekAt(1000, at(100))
	c.UpdateAudioClock(970, at(100))

	// First post-seek frame: raw pts near the keyframe defines origin 1000.
	if got := c.CalculateVideoDelay(970, at(100)); absDiff(got, 0) > 1 {
		t.Errorf("first post-seek frame delay = %d, want ~0", got)
	}
}

func TestVideoMasterStructural(t *testing.T) {
	t.Parallel()
	c := newTestController(ModeVideoMaster)
	c.UpdateVideoClock(100, at(0))
	if got := c.GetMasterClock(at(50)); absDiff(got, 50) > 1 {
		t.Errorf("video-master clock = %d, want ~50", got)
	}
}

func TestDriftSmoothing(t *testing.T) {
	t.Parallel()
	c := NewController(ModeAudioMaster, Tunables{Alpha: 0.3}, nil)
	c.Start(at(0))
	c.UpdateAudioClock(0, at(0))

	// Media runs 50ms ahead of wall time per second; drift EWMA should pull
	// the prediction toward the measured rate without jumping to it.
	c.UpdateAudioClock(1050, at(1000))
	got := c.GetMasterClock(at(1000))
	if got <= 1050 || got > 1050+50 {
		t.Errorf("smoothed master = %d, want in (1050, 1100]", got)
	}
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
