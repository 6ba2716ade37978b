package decode

import (
	"log/slog"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/zenplay/config"
	"github.com/zsiec/zenplay/errs"
)

// defaultReorderDepth is the B-frame reorder depth Apply uses for every
// stream; the stream's own B-frame depth is not read. It is also the
// fallback for a non-positive depth passed to ExtraFramePoolSize.
// H.264/HEVC rarely exceed four reference-reorder frames.
const defaultReorderDepth = 4

// CandidateNames returns the hardware decoder types to try on the given
// platform, in priority order, honoring the per-backend permissions.
func CandidateNames(cfg config.RenderConfig, goos string) []string {
	var names []string
	switch goos {
	case "windows":
		if cfg.AllowD3D11VA {
			names = append(names, "d3d11va")
		}
		if cfg.AllowDXVA2 {
			names = append(names, "dxva2")
		}
	case "darwin":
		if cfg.AllowVideoToolbox {
			names = append(names, "videotoolbox")
		}
	default:
		if cfg.AllowVAAPI {
			names = append(names, "vaapi")
		}
	}
	return names
}

// ExtraFramePoolSize computes the hardware frame-pool headroom beyond the
// codec's own references: reorder depth + decode threads + a queue-aware
// margin. The margin scales with the downstream frame queue so a deep queue
// cannot starve the pool, while pipelines without a queue stay small. A
// fixed pool has been observed to fail on streams that need more, and a zero
// (dynamically allocated) pool adds seconds of startup latency.
func ExtraFramePoolSize(reorderDepth, threadCount, frameQueueCap int) int {
	if reorderDepth <= 0 {
		reorderDepth = defaultReorderDepth
	}
	if threadCount <= 0 {
		threadCount = 1
	}
	headroom := frameQueueCap * 2 / 5
	if headroom < 6 {
		headroom = 6
	}
	return reorderDepth + threadCount + headroom
}

// HWContext owns a hardware device context used by the decoder; SharedDevice
// hands the same device to the accelerated renderer.
type HWContext struct {
	log    *slog.Logger
	name   string
	hdt    astiav.HardwareDeviceType
	device *astiav.HardwareDeviceContext
	pixFmt astiav.PixelFormat
}

// NewHWContext builds a hardware device context of the named type for the
// codec. Failure is non-fatal at the pipeline level; the render-path
// selector falls back to the next candidate or to software.
func NewHWContext(codec *astiav.Codec, name string, log *slog.Logger) (*HWContext, error) {
	if log == nil {
		log = slog.Default()
	}
	hdt := astiav.FindHardwareDeviceTypeByName(name)
	if hdt == astiav.HardwareDeviceTypeNone {
		return nil, errs.E(errs.KindHardwareInit, "hwdecode", "unknown device type "+name, nil)
	}

	pixFmt := astiav.PixelFormatNone
	for _, hc := range codec.HardwareConfigs() {
		if hc.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) && hc.HardwareDeviceType() == hdt {
			pixFmt = hc.PixelFormat()
			break
		}
	}
	if pixFmt == astiav.PixelFormatNone {
		return nil, errs.E(errs.KindHardwareInit, "hwdecode", codec.Name()+" has no "+name+" config", nil)
	}

	device, err := astiav.CreateHardwareDeviceContext(hdt, "", nil, 0)
	if err != nil {
		return nil, errs.E(errs.KindHardwareInit, "hwdecode", "create device context "+name, err)
	}

	return &HWContext{
		log:    log.With("component", "hwdecode", "type", name),
		name:   name,
		hdt:    hdt,
		device: device,
		pixFmt: pixFmt,
	}, nil
}

// Apply wires the device into a codec context: device handle, negotiated
// pixel format, and the frame-pool headroom for the downstream queue.
func (h *HWContext) Apply(cc *astiav.CodecContext, threadCount, frameQueueCap int) {
	cc.SetHardwareDeviceContext(h.device)
	cc.SetExtraHardwareFrames(ExtraFramePoolSize(defaultReorderDepth, threadCount, frameQueueCap))
	pixFmt := h.pixFmt
	cc.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
		for _, pf := range pfs {
			if pf == pixFmt {
				return pf
			}
		}
		return astiav.PixelFormatNone
	})
}

// Name returns the backend name ("d3d11va", "vaapi", ...).
func (h *HWContext) Name() string { return h.name }

// PixelFormat returns the hardware pixel format frames arrive in.
func (h *HWContext) PixelFormat() astiav.PixelFormat { return h.pixFmt }

// SharedDevice returns the GPU device the renderer must bind to.
func (h *HWContext) SharedDevice() *astiav.HardwareDeviceContext { return h.device }

// Close releases the device context.
func (h *HWContext) Close() {
	if h.device != nil {
		h.device.Free()
		h.device = nil
	}
}
