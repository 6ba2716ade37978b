package render

import (
	"log/slog"
	"runtime"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/zenplay/config"
	"github.com/zsiec/zenplay/decode"
	"github.com/zsiec/zenplay/errs"
	"github.com/zsiec/zenplay/stats"
)

// Selection is the outcome of the render-path decision: a renderer, the
// hardware context it shares a device with (nil on the software path), and
// the reason the path was chosen.
type Selection struct {
	Renderer    Renderer
	HW          *decode.HWContext
	BackendName string
	Reason      string
	IsHardware  bool
}

// SelectPath examines the codec, configuration, and platform capability and
// returns the render path. Hardware candidates are tried in platform
// priority order; each failure either falls through to the next candidate or
// aborts, depending on allow_fallback.
func SelectPath(codec *astiav.Codec, cfg config.RenderConfig, st *stats.Counters, log *slog.Logger) (*Selection, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "render-path")

	if !cfg.UseHardware {
		return softwareSelection(cfg, log, "hardware acceleration disabled by configuration"), nil
	}

	var lastReason string
	for _, name := range decode.CandidateNames(cfg, runtime.GOOS) {
		hw, err := decode.NewHWContext(codec, name, log)
		if err != nil {
			lastReason = err.Error()
			log.Debug("hardware candidate rejected", "type", name, "reason", lastReason)
			if !cfg.AllowFallback {
				return nil, errs.E(errs.KindHardwareInit, "render-path", lastReason, nil)
			}
			continue
		}
		sel := &Selection{
			Renderer:    NewAccelerated(cfg.VSync, st, log),
			HW:          hw,
			BackendName: name,
			Reason:      "hardware decoder available",
			IsHardware:  true,
		}
		log.Info("render path selected", "backend", name, "hardware", true)
		return sel, nil
	}

	if lastReason == "" {
		lastReason = "no hardware decoder type permitted on " + runtime.GOOS
	}
	if !cfg.AllowFallback {
		return nil, errs.E(errs.KindHardwareInit, "render-path", lastReason, nil)
	}
	return softwareSelection(cfg, log, "fallback: "+lastReason), nil
}

func softwareSelection(cfg config.RenderConfig, log *slog.Logger, reason string) *Selection {
	log.Info("render path selected", "backend", "software", "hardware", false, "reason", reason)
	return &Selection{
		Renderer:    NewSoftware(cfg.VSync, log),
		BackendName: "software",
		Reason:      reason,
		IsHardware:  false,
	}
}
