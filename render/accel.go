package render

import (
	"log/slog"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/zsiec/zenplay/errs"
	"github.com/zsiec/zenplay/media"
	"github.com/zsiec/zenplay/stats"
)

// textureKey identifies a reusable video texture. The hardware decoder
// cycles a small pool of surfaces with stable geometry, so steady-state
// lookups hit the same few keys.
type textureKey struct {
	format uint32
	w, h   int32
}

// acceleratedRenderer uploads planar YUV directly and lets the GPU pipeline
// do the color conversion (BT.709 for HD dimensions, handled by the driver
// shader). It keeps a cache of textures keyed on decoder surface geometry;
// the cache must be cleared on seek because the decoder reallocates its pool
// and a stale key could alias a different surface.
type acceleratedRenderer struct {
	log   *slog.Logger
	vsync bool
	stats *stats.Counters

	mu       sync.Mutex
	renderer *sdl.Renderer
	device   *astiav.HardwareDeviceContext
	cache    map[textureKey]*sdl.Texture
	winW     int32
	winH     int32
	staging  []byte
}

// NewAccelerated creates the GPU-conversion backend.
func NewAccelerated(vsync bool, st *stats.Counters, log *slog.Logger) Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &acceleratedRenderer{
		log:   log.With("component", "render", "backend", "accel"),
		vsync: vsync,
		stats: st,
		cache: make(map[textureKey]*sdl.Texture),
	}
}

func (r *acceleratedRenderer) Init(window *sdl.Window, width, height int, sharedDevice *astiav.HardwareDeviceContext) error {
	renderer, err := newSDLRenderer(window, r.vsync)
	if err != nil {
		return errs.E(errs.KindRender, "render", "create renderer", err)
	}
	r.mu.Lock()
	r.renderer = renderer
	r.device = sharedDevice
	r.winW, r.winH = int32(width), int32(height)
	r.mu.Unlock()
	logBackend(r.log, "accel", r.vsync)
	return nil
}

func (r *acceleratedRenderer) RenderFrame(frame *media.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderer == nil {
		return errs.E(errs.KindNotInitialized, "render", "render before init", nil)
	}

	src := frame.Pict
	w, h := int32(src.Width()), int32(src.Height())

	var sdlFormat uint32
	switch src.PixelFormat() {
	case astiav.PixelFormatYuv420P, astiav.PixelFormatYuvj420P:
		sdlFormat = uint32(sdl.PIXELFORMAT_IYUV)
	case astiav.PixelFormatNv12:
		sdlFormat = uint32(sdl.PIXELFORMAT_NV12)
	default:
		return errs.E(errs.KindRender, "render", "unsupported frame format "+src.PixelFormat().String(), nil)
	}

	texture, err := r.lookupTexture(textureKey{format: sdlFormat, w: w, h: h})
	if err != nil {
		return err
	}

	n, err := src.ImageBufferSize(1)
	if err != nil {
		return errs.E(errs.KindRender, "render", "image buffer size", err)
	}
	if cap(r.staging) < n {
		r.staging = make([]byte, n)
	}
	r.staging = r.staging[:n]
	if _, err := src.ImageCopyToBuffer(r.staging, 1); err != nil {
		return errs.E(errs.KindRender, "render", "copy planes", err)
	}

	ySize := int(w) * int(h)
	cw := (int(w) + 1) / 2
	ch := (int(h) + 1) / 2

	switch sdlFormat {
	case uint32(sdl.PIXELFORMAT_IYUV):
		y := r.staging[:ySize]
		u := r.staging[ySize : ySize+cw*ch]
		v := r.staging[ySize+cw*ch : ySize+2*cw*ch]
		if err := texture.UpdateYUV(nil, y, int(w), u, cw, v, cw); err != nil {
			return errs.E(errs.KindRender, "render", "update yuv texture", err)
		}
	case uint32(sdl.PIXELFORMAT_NV12):
		y := r.staging[:ySize]
		uv := r.staging[ySize : ySize+2*cw*ch]
		if err := texture.UpdateNV(nil, y, int(w), uv, 2*cw); err != nil {
			return errs.E(errs.KindRender, "render", "update nv texture", err)
		}
	}

	dst := letterbox(w, h, r.winW, r.winH)
	if err := r.renderer.Clear(); err != nil {
		return errs.E(errs.KindRender, "render", "clear", err)
	}
	if err := r.renderer.Copy(texture, nil, &dst); err != nil {
		return errs.E(errs.KindRender, "render", "copy", err)
	}
	r.renderer.Present()
	return nil
}

func (r *acceleratedRenderer) lookupTexture(key textureKey) (*sdl.Texture, error) {
	if t, ok := r.cache[key]; ok {
		r.stats.CacheHits.Add(1)
		return t, nil
	}
	r.stats.CacheMisses.Add(1)
	t, err := r.renderer.CreateTexture(key.format, sdl.TEXTUREACCESS_STREAMING, key.w, key.h)
	if err != nil {
		return nil, errs.E(errs.KindRender, "render", "create video texture", err)
	}
	r.cache[key] = t
	return t, nil
}

func (r *acceleratedRenderer) Resize(width, height int) {
	r.mu.Lock()
	r.winW, r.winH = int32(width), int32(height)
	r.mu.Unlock()
}

// ClearCaches drops every cached texture. Invoked by the video player's
// PreSeek before any post-seek frame can reach RenderFrame.
func (r *acceleratedRenderer) ClearCaches() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.cache {
		_ = t.Destroy()
		delete(r.cache, k)
	}
}

func (r *acceleratedRenderer) Cleanup() {
	r.ClearCaches()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderer != nil {
		_ = r.renderer.Destroy()
		r.renderer = nil
	}
}
