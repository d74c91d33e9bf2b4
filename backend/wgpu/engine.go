// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the multiwin engine on gogpu/wgpu's HAL. It
// renders every frame into an offscreen target and reads pixels back
// for screenshots, which makes it the diagnostic backend: it runs on
// any machine with a Vulkan driver, but it cannot create swap chains,
// so only the primary view is usable.
//
// Users opt in via blank import:
//
//	import _ "github.com/gogpu/multiwin/backend/wgpu"
package wgpu

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	lin "github.com/xlab/linmath"

	"github.com/gogpu/multiwin"
	"github.com/gogpu/multiwin/internal/pixmap"
)

// BackendName is the name this engine registers under.
const BackendName = "wgpu"

func init() {
	multiwin.RegisterBackend(BackendName, func() multiwin.Engine { return New() })
}

// Uniform block: model, view, proj matrices. Slots are spaced to the
// 256-byte dynamic uniform alignment every backend guarantees.
const (
	uniformSize = 3 * 64
	uniformSlot = 256
)

// copyPitchAlignment is the BytesPerRow alignment CopyTextureToBuffer
// requires on WebGPU and DX12.
const copyPitchAlignment = 256

// viewState carries the per-view configuration set between frames.
type viewState struct {
	clearFlags multiwin.ClearFlags
	clearRGBA  uint32
	clearDepth float32
	viewMtx    lin.Mat4x4
	projMtx    lin.Mat4x4
	rect       [4]uint16
	touched    bool
}

// submission is one queued draw.
type submission struct {
	view multiwin.ViewID
	draw multiwin.Draw
}

type debugLine struct {
	x, y int
	attr uint8
	text string
}

// Engine renders into an offscreen BGRA8 target. It implements
// multiwin.Engine; all methods must be called from the frame goroutine.
type Engine struct {
	cb multiwin.Callbacks

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string

	width, height uint32

	colorTex  hal.Texture
	colorView hal.TextureView
	depthTex  hal.Texture
	depthView hal.TextureView

	uniformLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout

	programs []*program
	vbufs    []*vertexBuffer
	ibufs    []*indexBuffer

	// meshes holds deindexed per-(vertex,index) buffer pairs; the HAL
	// render pass has no index buffer binding, so the winding is
	// expanded once on first use.
	meshes map[meshKey]*mesh

	// pool is the per-draw uniform buffer + bind group pool, reused
	// across frames and grown on demand.
	pool []*uniformSlotRes

	views     [multiwin.MaxWindows]viewState
	draws     []submission
	shots     []string
	debugText []debugLine

	frame uint32
}

// New creates an uninitialized engine.
func New() *Engine {
	return &Engine{meshes: map[meshKey]*mesh{}}
}

// Init opens the HAL device and creates the offscreen render target.
func (e *Engine) Init(p multiwin.Platform, cb multiwin.Callbacks) error {
	if cb == nil {
		return fmt.Errorf("wgpu: callbacks must not be nil")
	}
	e.cb = cb
	e.width, e.height = p.Width, p.Height
	if e.width == 0 || e.height == 0 {
		return fmt.Errorf("wgpu: zero-sized backbuffer %dx%d", e.width, e.height)
	}

	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}
	e.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("wgpu: no GPU adapters found")
	}
	selected := pickAdapter(adapters, p.Vendor)
	if selected == nil {
		return fmt.Errorf("wgpu: no adapter matches vendor %q", p.Vendor)
	}
	e.adapter = selected.Info.Name

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("wgpu: open device: %w", err)
	}
	e.device = openDev.Device
	e.queue = openDev.Queue

	if err := e.createTargets(); err != nil {
		e.Shutdown()
		return err
	}
	if err := e.createLayouts(); err != nil {
		e.Shutdown()
		return err
	}

	multiwin.Logger().Info("wgpu engine initialized",
		"adapter", e.adapter, "size", fmt.Sprintf("%dx%d", e.width, e.height))
	cb.Trace("wgpu init", "adapter", e.adapter)
	return nil
}

// pickAdapter prefers a real GPU, optionally restricted to a vendor
// name substring.
func pickAdapter(adapters []hal.ExposedAdapter, vendor string) *hal.ExposedAdapter {
	vendor = strings.ToLower(vendor)
	var fallback *hal.ExposedAdapter
	for i := range adapters {
		if vendor != "" && !strings.Contains(strings.ToLower(adapters[i].Info.Name), vendor) {
			continue
		}
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
		if fallback == nil {
			fallback = &adapters[i]
		}
	}
	return fallback
}

func (e *Engine) createTargets() error {
	size := hal.Extent3D{Width: e.width, Height: e.height, DepthOrArrayLayers: 1}

	colorTex, err := e.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "multiwin_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create color target: %w", err)
	}
	e.colorTex = colorTex

	colorView, err := e.device.CreateTextureView(colorTex, &hal.TextureViewDescriptor{
		Label: "multiwin_color_view",
	})
	if err != nil {
		return fmt.Errorf("wgpu: create color view: %w", err)
	}
	e.colorView = colorView

	depthTex, err := e.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "multiwin_depth",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create depth target: %w", err)
	}
	e.depthTex = depthTex

	depthView, err := e.device.CreateTextureView(depthTex, &hal.TextureViewDescriptor{
		Label: "multiwin_depth_view",
	})
	if err != nil {
		return fmt.Errorf("wgpu: create depth view: %w", err)
	}
	e.depthView = depthView
	return nil
}

func (e *Engine) destroyTargets() {
	if e.depthView != nil {
		e.device.DestroyTextureView(e.depthView)
		e.depthView = nil
	}
	if e.depthTex != nil {
		e.device.DestroyTexture(e.depthTex)
		e.depthTex = nil
	}
	if e.colorView != nil {
		e.device.DestroyTextureView(e.colorView)
		e.colorView = nil
	}
	if e.colorTex != nil {
		e.device.DestroyTexture(e.colorTex)
		e.colorTex = nil
	}
}

// resizeDims reports the backbuffer size the primary view rect asks
// for. A zero-sized rect means the rect was never set and keeps the
// current size.
func resizeDims(rect [4]uint16, width, height uint32) (uint32, uint32, bool) {
	w, h := uint32(rect[2]), uint32(rect[3])
	if w == 0 || h == 0 || (w == width && h == height) {
		return width, height, false
	}
	return w, h, true
}

// resizeTargets recreates the offscreen color and depth targets at a
// new size. Frame waits for the device after every submit, so the old
// targets are idle here.
func (e *Engine) resizeTargets(width, height uint32) error {
	e.destroyTargets()
	e.width, e.height = width, height
	multiwin.Logger().Info("wgpu backbuffer resized",
		"size", fmt.Sprintf("%dx%d", width, height))
	return e.createTargets()
}

func (e *Engine) createLayouts() error {
	uniformLayout, err := e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "multiwin_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group layout: %w", err)
	}
	e.uniformLayout = uniformLayout

	pipeLayout, err := e.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "multiwin_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{uniformLayout},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}
	e.pipeLayout = pipeLayout
	return nil
}

// Shutdown releases every GPU resource.
func (e *Engine) Shutdown() {
	if e.device == nil {
		return
	}
	for _, s := range e.pool {
		s.destroy(e.device)
	}
	e.pool = nil
	for _, m := range e.meshes {
		e.device.DestroyBuffer(m.buf)
	}
	e.meshes = map[meshKey]*mesh{}
	for _, p := range e.programs {
		p.destroy(e.device)
	}
	e.programs = nil
	for _, vb := range e.vbufs {
		if vb != nil && vb.buf != nil {
			e.device.DestroyBuffer(vb.buf)
		}
	}
	e.vbufs = nil
	e.ibufs = nil
	if e.pipeLayout != nil {
		e.device.DestroyPipelineLayout(e.pipeLayout)
	}
	if e.uniformLayout != nil {
		e.device.DestroyBindGroupLayout(e.uniformLayout)
	}
	e.destroyTargets()
	e.device = nil
	e.queue = nil
	multiwin.Logger().Info("wgpu engine shut down")
}

// Caps reports that this backend cannot create window swap chains.
func (e *Engine) Caps() multiwin.Caps {
	return multiwin.Caps{
		Renderer:         BackendName,
		SwapChain:        false,
		HomogeneousDepth: false,
	}
}

// HalDevice exposes the underlying HAL device for callers that layer
// additional rendering on the same device. Valid after Init.
func (e *Engine) HalDevice() any { return e.device }

// HalQueue exposes the underlying HAL queue. Valid after Init.
func (e *Engine) HalQueue() any { return e.queue }

// CreateFrameBuffer always fails: the offscreen backend has no swap
// chain support. Callers observe the invalid handle at reconciliation.
func (e *Engine) CreateFrameBuffer(native any, width, height uint16) multiwin.FrameBufferHandle {
	multiwin.Logger().Warn("wgpu: window framebuffers unsupported", "size", fmt.Sprintf("%dx%d", width, height))
	return multiwin.InvalidFrameBuffer
}

// DestroyFrameBuffer is a no-op; no framebuffer can exist.
func (e *Engine) DestroyFrameBuffer(multiwin.FrameBufferHandle) {}

// SetViewClear configures clear state for a view.
func (e *Engine) SetViewClear(view multiwin.ViewID, flags multiwin.ClearFlags, rgba uint32, depth float32) {
	v := &e.views[view]
	v.clearFlags = flags
	v.clearRGBA = rgba
	v.clearDepth = depth
}

// SetViewRect records the viewport. The offscreen target is always
// rendered full-size; the rect is tracked for diagnostics.
func (e *Engine) SetViewRect(view multiwin.ViewID, x, y, width, height uint16) {
	e.views[view].rect = [4]uint16{x, y, width, height}
}

// SetViewTransform stores the view and projection matrices.
func (e *Engine) SetViewTransform(view multiwin.ViewID, viewMtx, projMtx *lin.Mat4x4) {
	v := &e.views[view]
	if viewMtx != nil {
		v.viewMtx = *viewMtx
	}
	if projMtx != nil {
		v.projMtx = *projMtx
	}
}

// SetViewFrameBuffer is accepted for interface parity; without swap
// chains only invalid handles ever arrive.
func (e *Engine) SetViewFrameBuffer(view multiwin.ViewID, fb multiwin.FrameBufferHandle) {
	if fb.IsValid() {
		multiwin.Logger().Warn("wgpu: ignoring framebuffer binding", "view", uint8(view), "fb", fb.Index())
	}
}

// Touch marks a view live for this frame so its clear happens even
// without draws.
func (e *Engine) Touch(view multiwin.ViewID) {
	e.views[view].touched = true
}

// Submit queues one draw. Draws against views other than 0 are dropped;
// they can only exist through caller bugs, since Caps announces no swap
// chain support.
func (e *Engine) Submit(view multiwin.ViewID, draw multiwin.Draw) {
	if view != 0 {
		return
	}
	if !draw.Vertices.IsValid() || !draw.Indices.IsValid() || !draw.Program.IsValid() {
		return
	}
	e.draws = append(e.draws, submission{view: view, draw: draw})
}

// DebugTextClear resets the overlay lines.
func (e *Engine) DebugTextClear() {
	e.debugText = e.debugText[:0]
}

// DebugTextPrintf records an overlay line. The overlay is stamped onto
// captured screenshots; there is no on-screen surface to draw it to.
func (e *Engine) DebugTextPrintf(x, y uint16, attr uint8, format string, args ...any) {
	e.debugText = append(e.debugText, debugLine{
		x:    int(x),
		y:    int(y),
		attr: attr,
		text: fmt.Sprintf(format, args...),
	})
}

// RequestScreenShot queues a capture of the offscreen target. Captures
// of window framebuffers cannot happen here; only the primary target
// (invalid fb handle) is honored.
func (e *Engine) RequestScreenShot(fb multiwin.FrameBufferHandle, path string) {
	if fb.IsValid() {
		multiwin.Logger().Warn("wgpu: cannot capture window framebuffer", "fb", fb.Index())
		return
	}
	e.shots = append(e.shots, path)
}

// Frame encodes and submits the frame, services queued screenshots, and
// waits for completion. The wait makes Frame the synchronization
// barrier resource teardown relies on.
func (e *Engine) Frame() uint32 {
	e.frame++
	draws := e.draws
	shots := e.shots
	e.draws = e.draws[:0]
	e.shots = e.shots[:0]
	v0 := &e.views[0]
	v0.touched = false

	if err := e.renderFrame(v0, draws, shots); err != nil {
		e.cb.Fatal(multiwin.FatalDeviceLost, fmt.Sprintf("frame %d: %v", e.frame, err))
	}
	return e.frame
}

func (e *Engine) renderFrame(v0 *viewState, draws []submission, shots []string) error {
	if w, h, changed := resizeDims(v0.rect, e.width, e.height); changed {
		if err := e.resizeTargets(w, h); err != nil {
			return err
		}
	}
	if err := e.prepareUniforms(v0, draws); err != nil {
		return err
	}

	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "multiwin_frame",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("multiwin_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	loadOp := gputypes.LoadOpLoad
	if v0.clearFlags&multiwin.ClearColor != 0 {
		loadOp = gputypes.LoadOpClear
	}
	depthLoadOp := gputypes.LoadOpLoad
	if v0.clearFlags&multiwin.ClearDepth != 0 {
		depthLoadOp = gputypes.LoadOpClear
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "multiwin_view0",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       e.colorView,
			LoadOp:     loadOp,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: decodeClearColor(v0.clearRGBA),
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              e.depthView,
			DepthLoadOp:       depthLoadOp,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   v0.clearDepth,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		},
	})

	for i, sub := range draws {
		prog := e.program(sub.draw.Program)
		m := e.mesh(sub.draw.Vertices, sub.draw.Indices)
		if prog == nil || prog.pipeline == nil || m == nil {
			continue
		}
		rp.SetPipeline(prog.pipeline)
		rp.SetBindGroup(0, e.pool[i].bindGroup, nil)
		rp.SetVertexBuffer(0, m.buf, 0)
		rp.Draw(m.vertexCount, 1, 0, 0)
	}
	rp.End()

	var staging hal.Buffer
	var pitch uint32
	if len(shots) > 0 {
		staging, pitch, err = e.encodeReadback(encoder)
		if err != nil {
			encoder.DiscardEncoding()
			return err
		}
		defer e.device.DestroyBuffer(staging)
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer e.device.FreeCommandBuffer(cmdBuf)

	if _, err := e.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := e.device.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}

	if len(shots) > 0 {
		if err := e.deliverShots(staging, pitch, shots); err != nil {
			return err
		}
	}
	return nil
}

// encodeReadback transitions the color target and copies it into a
// fresh staging buffer with the required 256-byte row alignment.
func (e *Engine) encodeReadback(encoder hal.CommandEncoder) (hal.Buffer, uint32, error) {
	pitch := (e.width*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)

	staging, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "multiwin_capture",
		Size:  uint64(pitch) * uint64(e.height),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("create staging buffer: %w", err)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: e.colorTex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(e.colorTex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: e.height},
		TextureBase:  hal.ImageCopyTexture{Texture: e.colorTex, MipLevel: 0},
		Size:         hal.Extent3D{Width: e.width, Height: e.height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: e.colorTex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	return staging, pitch, nil
}

// deliverShots maps the staging buffer, stamps the debug overlay and
// hands the pixels to the callbacks, once per queued path.
func (e *Engine) deliverShots(staging hal.Buffer, pitch uint32, shots []string) error {
	size := uint64(pitch) * uint64(e.height)
	mapping, err := e.device.MapBuffer(staging, 0, size)
	if err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	readback := make([]byte, size)
	copy(readback, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := e.device.UnmapBuffer(staging); err != nil {
		return fmt.Errorf("unmap staging buffer: %w", err)
	}

	data := readback
	outPitch := pitch
	if len(e.debugText) > 0 {
		pm := pixmap.FromBGRA(readback, int(e.width), int(e.height), int(pitch), false)
		for _, l := range e.debugText {
			pm.DrawString(l.x, l.y, attrColor(l.attr), l.text)
		}
		data = pm.ToBGRA()
		outPitch = e.width * 4
	}

	for _, path := range shots {
		e.cb.ScreenShot(path, e.width, e.height, outPitch, data, false)
	}
	return nil
}

// decodeClearColor unpacks a packed 0xRRGGBBAA clear color.
func decodeClearColor(rgba uint32) gputypes.Color {
	return gputypes.Color{
		R: float64(rgba>>24&0xff) / 255,
		G: float64(rgba>>16&0xff) / 255,
		B: float64(rgba>>8&0xff) / 255,
		A: float64(rgba&0xff) / 255,
	}
}
