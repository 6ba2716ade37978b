package config

import "testing"

func TestDefaults(t *testing.T) {
	t.Parallel()
	c := Default()
	if !c.Render.UseHardware || !c.Render.AllowFallback {
		t.Error("hardware path with fallback should default on")
	}
	if c.Audio.Output.SampleRate != 44100 || c.Audio.Output.Channels != 2 {
		t.Errorf("audio defaults = %d Hz / %d ch", c.Audio.Output.SampleRate, c.Audio.Output.Channels)
	}
	if c.Sync.Video.ThresholdLateMS != 5 || c.Sync.Video.ThresholdRepeatMS != 40 || c.Sync.Video.ThresholdDropMS != 120 {
		t.Errorf("video thresholds = %+v", c.Sync.Video)
	}
	if c.Demux.Prefetch.BufferSizeMB != 10 {
		t.Errorf("prefetch high watermark = %d MB", c.Demux.Prefetch.BufferSizeMB)
	}
}

func TestSetPaths(t *testing.T) {
	t.Parallel()
	c := Default()
	sets := map[string]string{
		"render.use_hardware_acceleration":   "false",
		"render.hardware.allow_vaapi":        "false",
		"render.hardware.allow_fallback":     "false",
		"render.vsync":                       "false",
		"render.max_fps":                     "60",
		"demux.prefetch.buffer_size_mb":      "20",
		"demux.prefetch.min_refill_size_mb":  "8",
		"audio.output.sample_rate":           "48000",
		"audio.output.channels":              "2",
		"audio.output.buffer_ms":             "500",
		"sync.max_update_interval_ms":        "100",
		"sync.pts_delta_threshold_ms":        "30",
		"sync.ewma_alpha":                    "0.5",
		"sync.video.threshold_late_ms":       "10",
		"sync.video.threshold_repeat_ms":     "50",
		"sync.video.threshold_drop_ms":       "150",
	}
	for path, value := range sets {
		if err := c.Set(path, value); err != nil {
			t.Fatalf("Set(%q, %q): %v", path, value, err)
		}
	}
	if c.Render.UseHardware || c.Render.AllowVAAPI || c.Render.AllowFallback || c.Render.VSync {
		t.Error("bool overrides not applied")
	}
	if c.Render.MaxFPS != 60 || c.Audio.Output.SampleRate != 48000 || c.Sync.EWMAAlpha != 0.5 {
		t.Error("numeric overrides not applied")
	}
	if c.Sync.Video.ThresholdDropMS != 150 || c.Demux.Prefetch.MinRefillSizeMB != 8 {
		t.Error("nested overrides not applied")
	}
}

func TestSetRejectsUnknownPath(t *testing.T) {
	t.Parallel()
	c := Default()
	if err := c.Set("render.no_such_option", "1"); err == nil {
		t.Error("unknown path should be rejected")
	}
}

func TestSetRejectsMalformedValue(t *testing.T) {
	t.Parallel()
	c := Default()
	if err := c.Set("render.max_fps", "fast"); err == nil {
		t.Error("malformed int should be rejected")
	}
	if err := c.Set("render.vsync", "maybe"); err == nil {
		t.Error("malformed bool should be rejected")
	}
}
