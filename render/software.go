package render

import (
	"log/slog"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/zsiec/zenplay/errs"
	"github.com/zsiec/zenplay/media"
)

// softwareRenderer converts every frame to packed RGBA with libswscale and
// uploads it into a streaming texture.
type softwareRenderer struct {
	log   *slog.Logger
	vsync bool

	mu       sync.Mutex
	renderer *sdl.Renderer
	texture  *sdl.Texture
	winW     int32
	winH     int32

	ssc        *astiav.SoftwareScaleContext
	dst        *astiav.Frame
	srcW, srcH int
	srcPix     astiav.PixelFormat
	staging    []byte
}

// NewSoftware creates the software backend.
func NewSoftware(vsync bool, log *slog.Logger) Renderer {
	if log == nil {
		log = slog.Default()
	}
	return &softwareRenderer{
		log:   log.With("component", "render", "backend", "software"),
		vsync: vsync,
	}
}

func (r *softwareRenderer) Init(window *sdl.Window, width, height int, _ *astiav.HardwareDeviceContext) error {
	renderer, err := newSDLRenderer(window, r.vsync)
	if err != nil {
		return errs.E(errs.KindRender, "render", "create renderer", err)
	}
	r.mu.Lock()
	r.renderer = renderer
	r.winW, r.winH = int32(width), int32(height)
	r.mu.Unlock()
	logBackend(r.log, "software", r.vsync)
	return nil
}

func (r *softwareRenderer) RenderFrame(frame *media.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderer == nil {
		return errs.E(errs.KindNotInitialized, "render", "render before init", nil)
	}
	src := frame.Pict

	if err := r.ensureScaler(src); err != nil {
		return err
	}
	if err := r.ssc.ScaleFrame(src, r.dst); err != nil {
		return errs.E(errs.KindRender, "render", "scale frame", err)
	}

	n, err := r.dst.ImageBufferSize(1)
	if err != nil {
		return errs.E(errs.KindRender, "render", "image buffer size", err)
	}
	if cap(r.staging) < n {
		r.staging = make([]byte, n)
	}
	r.staging = r.staging[:n]
	if _, err := r.dst.ImageCopyToBuffer(r.staging, 1); err != nil {
		return errs.E(errs.KindRender, "render", "copy image", err)
	}

	if err := r.texture.Update(nil, r.staging, r.srcW*4); err != nil {
		return errs.E(errs.KindRender, "render", "update texture", err)
	}
	return r.present()
}

func (r *softwareRenderer) present() error {
	dst := letterbox(int32(r.srcW), int32(r.srcH), r.winW, r.winH)
	if err := r.renderer.Clear(); err != nil {
		return errs.E(errs.KindRender, "render", "clear", err)
	}
	if err := r.renderer.Copy(r.texture, nil, &dst); err != nil {
		return errs.E(errs.KindRender, "render", "copy", err)
	}
	r.renderer.Present()
	return nil
}

// ensureScaler rebuilds the swscale context and texture when the source
// geometry changes.
func (r *softwareRenderer) ensureScaler(src *astiav.Frame) error {
	sw, sh := src.Width(), src.Height()
	sp := src.PixelFormat()
	if r.ssc != nil && sw == r.srcW && sh == r.srcH && sp == r.srcPix {
		return nil
	}
	r.freeScaler()

	ssc, err := astiav.CreateSoftwareScaleContext(sw, sh, sp, sw, sh, astiav.PixelFormatRgba, astiav.NewSoftwareScaleContextFlags())
	if err != nil {
		return errs.E(errs.KindRender, "render", "create scale context", err)
	}
	dst := astiav.AllocFrame()
	dst.SetWidth(sw)
	dst.SetHeight(sh)
	dst.SetPixelFormat(astiav.PixelFormatRgba)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return errs.E(errs.KindOutOfMemory, "render", "alloc scale frame", err)
	}

	texture, err := r.renderer.CreateTexture(uint32(sdl.PIXELFORMAT_RGBA32), sdl.TEXTUREACCESS_STREAMING, int32(sw), int32(sh))
	if err != nil {
		dst.Free()
		ssc.Free()
		return errs.E(errs.KindRender, "render", "create texture", err)
	}

	r.ssc = ssc
	r.dst = dst
	r.texture = texture
	r.srcW, r.srcH, r.srcPix = sw, sh, sp
	r.log.Debug("scaler ready", "w", sw, "h", sh, "src_format", sp.String())
	return nil
}

func (r *softwareRenderer) freeScaler() {
	if r.texture != nil {
		_ = r.texture.Destroy()
		r.texture = nil
	}
	if r.dst != nil {
		r.dst.Free()
		r.dst = nil
	}
	if r.ssc != nil {
		r.ssc.Free()
		r.ssc = nil
	}
}

func (r *softwareRenderer) Resize(width, height int) {
	r.mu.Lock()
	r.winW, r.winH = int32(width), int32(height)
	r.mu.Unlock()
}

// ClearCaches is a no-op for the software backend: its texture is keyed on
// geometry, not on decoder resources.
func (r *softwareRenderer) ClearCaches() {}

func (r *softwareRenderer) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.freeScaler()
	if r.renderer != nil {
		_ = r.renderer.Destroy()
		r.renderer = nil
	}
}
