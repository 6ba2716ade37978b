// Package config holds the playback configuration. Loading from disk is the
// embedding application's job; this package defines the typed tree, its
// defaults, and the dotted-path override surface the option matrix uses.
package config

import (
	"fmt"
	"strconv"
)

// Config is the full playback configuration tree.
type Config struct {
	Render RenderConfig
	Demux  DemuxConfig
	Audio  AudioConfig
	Sync   SyncConfig
}

// RenderConfig controls the render-path selection and presentation.
type RenderConfig struct {
	UseHardware       bool
	AllowD3D11VA      bool
	AllowDXVA2        bool
	AllowVAAPI        bool
	AllowVideoToolbox bool
	AllowFallback     bool
	VSync             bool
	MaxFPS            int
}

// DemuxConfig controls demuxing and network prefetch.
type DemuxConfig struct {
	Prefetch PrefetchConfig
}

// PrefetchConfig bounds the network read-ahead buffer.
type PrefetchConfig struct {
	Enable bool
	// BufferSizeMB is the high watermark; the prefetch worker pauses once
	// this many megabytes are queued.
	BufferSizeMB int
	// MinRefillSizeMB is the low watermark before refill resumes. Zero means
	// half of BufferSizeMB.
	MinRefillSizeMB int
}

// AudioConfig controls the audio output path.
type AudioConfig struct {
	Output AudioOutputConfig
}

// AudioOutputConfig is the fixed output spec negotiated with the device.
type AudioOutputConfig struct {
	SampleRate int
	Channels   int
	BufferMS   int
}

// SyncConfig holds the sync-controller tunables.
type SyncConfig struct {
	MaxUpdateIntervalMS int
	PTSDeltaThresholdMS int
	EWMAAlpha           float64
	Video               VideoSyncConfig
}

// VideoSyncConfig holds the present-policy thresholds, all in milliseconds.
type VideoSyncConfig struct {
	ThresholdLateMS   int
	ThresholdRepeatMS int
	ThresholdDropMS   int
}

// Default returns the configuration used when the caller overrides nothing.
func Default() Config {
	return Config{
		Render: RenderConfig{
			UseHardware:       true,
			AllowD3D11VA:      true,
			AllowDXVA2:        true,
			AllowVAAPI:        true,
			AllowVideoToolbox: true,
			AllowFallback:     true,
			VSync:             true,
		},
		Demux: DemuxConfig{
			Prefetch: PrefetchConfig{
				Enable:       true,
				BufferSizeMB: 10,
			},
		},
		Audio: AudioConfig{
			Output: AudioOutputConfig{
				SampleRate: 44100,
				Channels:   2,
				BufferMS:   200,
			},
		},
		Sync: SyncConfig{
			MaxUpdateIntervalMS: 50,
			PTSDeltaThresholdMS: 40,
			EWMAAlpha:           0.3,
			Video: VideoSyncConfig{
				ThresholdLateMS:   5,
				ThresholdRepeatMS: 40,
				ThresholdDropMS:   120,
			},
		},
	}
}

// Set applies one dotted-path override. Unknown paths and malformed values
// are reported, never ignored.
func (c *Config) Set(path, value string) error {
	switch path {
	case "render.use_hardware_acceleration":
		return setBool(&c.Render.UseHardware, path, value)
	case "render.hardware.allow_d3d11va":
		return setBool(&c.Render.AllowD3D11VA, path, value)
	case "render.hardware.allow_dxva2":
		return setBool(&c.Render.AllowDXVA2, path, value)
	case "render.hardware.allow_vaapi":
		return setBool(&c.Render.AllowVAAPI, path, value)
	case "render.hardware.allow_videotoolbox":
		return setBool(&c.Render.AllowVideoToolbox, path, value)
	case "render.hardware.allow_fallback":
		return setBool(&c.Render.AllowFallback, path, value)
	case "render.vsync":
		return setBool(&c.Render.VSync, path, value)
	case "render.max_fps":
		return setInt(&c.Render.MaxFPS, path, value)
	case "demux.prefetch.enable":
		return setBool(&c.Demux.Prefetch.Enable, path, value)
	case "demux.prefetch.buffer_size_mb":
		return setInt(&c.Demux.Prefetch.BufferSizeMB, path, value)
	case "demux.prefetch.min_refill_size_mb":
		return setInt(&c.Demux.Prefetch.MinRefillSizeMB, path, value)
	case "audio.output.sample_rate":
		return setInt(&c.Audio.Output.SampleRate, path, value)
	case "audio.output.channels":
		return setInt(&c.Audio.Output.Channels, path, value)
	case "audio.output.buffer_ms":
		return setInt(&c.Audio.Output.BufferMS, path, value)
	case "sync.max_update_interval_ms":
		return setInt(&c.Sync.MaxUpdateIntervalMS, path, value)
	case "sync.pts_delta_threshold_ms":
		return setInt(&c.Sync.PTSDeltaThresholdMS, path, value)
	case "sync.ewma_alpha":
		return setFloat(&c.Sync.EWMAAlpha, path, value)
	case "sync.video.threshold_late_ms":
		return setInt(&c.Sync.Video.ThresholdLateMS, path, value)
	case "sync.video.threshold_repeat_ms":
		return setInt(&c.Sync.Video.ThresholdRepeatMS, path, value)
	case "sync.video.threshold_drop_ms":
		return setInt(&c.Sync.Video.ThresholdDropMS, path, value)
	default:
		return fmt.Errorf("config: unknown option %q", path)
	}
}

func setBool(dst *bool, path, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	*dst = v
	return nil
}

func setInt(dst *int, path, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, path, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	*dst = v
	return nil
}
