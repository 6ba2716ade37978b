// Package render presents decoded frames to a window. Two backends exist:
// a software path that converts frames to RGBA on the CPU and uploads them,
// and an accelerated path that uploads planar YUV and lets the GPU pipeline
// perform the color conversion. The render-path selector pairs a backend
// with an optional hardware decoder context at open time; the pairing never
// changes mid-stream.
package render

import (
	"log/slog"

	"github.com/asticode/go-astiav"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/zsiec/zenplay/media"
)

// Renderer is the presentation interface shared by all backends.
type Renderer interface {
	// Init binds the renderer to a window. sharedDevice is the hardware
	// decoder's GPU device when hardware decoding is active, nil otherwise.
	// Frames still reach RenderFrame in system memory either way.
	Init(window *sdl.Window, width, height int, sharedDevice *astiav.HardwareDeviceContext) error
	// RenderFrame presents one frame. The frame stays owned by the caller.
	RenderFrame(frame *media.Frame) error
	// Resize updates the output surface dimensions. Idempotent.
	Resize(width, height int)
	// ClearCaches drops per-frame GPU objects keyed on decoder resources.
	// Must be called before any post-seek frame reaches RenderFrame.
	ClearCaches()
	// Cleanup releases the renderer.
	Cleanup()
}

// letterbox computes the destination rectangle that fits srcW x srcH into
// winW x winH preserving aspect ratio.
func letterbox(srcW, srcH, winW, winH int32) sdl.Rect {
	if srcW <= 0 || srcH <= 0 || winW <= 0 || winH <= 0 {
		return sdl.Rect{W: winW, H: winH}
	}
	w := winW
	h := winW * srcH / srcW
	if h > winH {
		h = winH
		w = winH * srcW / srcH
	}
	return sdl.Rect{X: (winW - w) / 2, Y: (winH - h) / 2, W: w, H: h}
}

func newSDLRenderer(window *sdl.Window, vsync bool) (*sdl.Renderer, error) {
	flags := uint32(sdl.RENDERER_ACCELERATED)
	if vsync {
		flags |= sdl.RENDERER_PRESENTVSYNC
	}
	return sdl.CreateRenderer(window, -1, flags)
}

func logBackend(log *slog.Logger, name string, vsync bool) {
	log.Info("renderer initialized", "backend", name, "vsync", vsync)
}
