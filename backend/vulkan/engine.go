// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vulkan implements the multiwin engine directly on the Vulkan
// API. It presents through per-window swap chains, so it is the backend
// that supports additional window-backed framebuffers.
//
// Users opt in via blank import:
//
//	import _ "github.com/gogpu/multiwin/backend/vulkan"
//
// The windowing layer must have installed a Vulkan loader entry point
// (driver/glfw does this) before Init runs.
package vulkan

import (
	"fmt"
	"strings"
	"unsafe"

	vk "github.com/goki/vulkan"
	lin "github.com/xlab/linmath"

	"github.com/gogpu/multiwin"
	"github.com/gogpu/multiwin/internal/pixmap"
)

// BackendName is the name this engine registers under.
const BackendName = "vulkan"

func init() {
	multiwin.RegisterBackend(BackendName, func() multiwin.Engine { return New() })
}

// Uniform block: model, view, proj matrices. Draws index into a
// per-window slab with 256-byte dynamic offsets, the alignment every
// implementation is required to honor.
const (
	uniformSize = 3 * 64
	uniformSlot = 256
	slabSlots   = 128
)

const depthFormat = vk.FormatD32Sfloat

// SurfaceWindow is the capability the backend needs from a native
// window: minting a VkSurfaceKHR against an instance. *glfw.Window
// satisfies it.
type SurfaceWindow interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// viewState carries the per-view configuration set between frames.
type viewState struct {
	clearFlags multiwin.ClearFlags
	clearRGBA  uint32
	clearDepth float32
	viewMtx    lin.Mat4x4
	projMtx    lin.Mat4x4
	rect       [4]uint16
	fb         multiwin.FrameBufferHandle
	touched    bool
}

// submission is one queued draw.
type submission struct {
	view multiwin.ViewID
	draw multiwin.Draw
}

type shotRequest struct {
	slot int
	path string
}

type debugLine struct {
	x, y int
	attr uint8
	text string
}

// Engine renders through one swap chain per window slot. It implements
// multiwin.Engine; all methods must be called from the frame goroutine,
// which must also be the thread that owns the windows.
type Engine struct {
	cb multiwin.Callbacks

	instance    vk.Instance
	physical    vk.PhysicalDevice
	device      vk.Device
	queue       vk.Queue
	queueFamily uint32
	adapter     string

	cmdPool    vk.CommandPool
	descPool   vk.DescriptorPool
	descLayout vk.DescriptorSetLayout
	pipeLayout vk.PipelineLayout

	// clearPass begins a frame on a target; loadPass layers further
	// views onto pixels the same frame already produced. They are
	// render-pass compatible, so framebuffers and pipelines built
	// against clearPass serve both.
	clearPass vk.RenderPass
	loadPass  vk.RenderPass

	// targets maps window slots to their swap chain bundles. Slot 0 is
	// the primary window, created at Init.
	targets [multiwin.MaxWindows]*windowTarget

	programs []*program
	vbufs    []*vertexBuffer
	ibufs    []*indexBuffer

	views     [multiwin.MaxWindows]viewState
	draws     []submission
	shots     []shotRequest
	debugText []debugLine

	frame uint32
}

// New creates an uninitialized engine.
func New() *Engine {
	return &Engine{}
}

// Init creates the instance, device and the primary window's swap
// chain. p.Native must implement SurfaceWindow.
func (e *Engine) Init(p multiwin.Platform, cb multiwin.Callbacks) error {
	if cb == nil {
		return fmt.Errorf("vulkan: callbacks must not be nil")
	}
	e.cb = cb

	win, ok := p.Native.(SurfaceWindow)
	if !ok {
		return fmt.Errorf("vulkan: native window %T cannot create surfaces", p.Native)
	}

	if err := e.createInstance(p.RequiredExtensions); err != nil {
		return fmt.Errorf("vulkan: %w", err)
	}

	surfPtr, err := win.CreateWindowSurface(e.instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan: primary surface: %w", err)
	}
	surface := vk.SurfaceFromPointer(surfPtr)

	if err := e.pickDevice(surface, p.Vendor); err != nil {
		return fmt.Errorf("vulkan: %w", err)
	}
	if err := e.createDevice(); err != nil {
		return fmt.Errorf("vulkan: %w", err)
	}
	if err := e.createShared(); err != nil {
		return fmt.Errorf("vulkan: %w", err)
	}

	primary, err := e.newTarget(p.Native, surface, p.Width, p.Height)
	if err != nil {
		return fmt.Errorf("vulkan: primary swap chain: %w", err)
	}
	e.targets[0] = primary

	multiwin.Logger().Info("vulkan backend initialized",
		"adapter", e.adapter,
		"width", p.Width, "height", p.Height)
	return nil
}

func (e *Engine) createInstance(extensions []string) error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString("multiwin"),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("multiwin"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}, nil, &instance)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	e.instance = instance
	vk.InitInstance(instance)
	return nil
}

// pickDevice selects a physical device that can render and present to
// the given surface, honoring the vendor preference.
func (e *Engine) pickDevice(surface vk.Surface, vendor string) error {
	var count uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(e.instance, &count, nil)); err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("no vulkan devices")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vk.Error(vk.EnumeratePhysicalDevices(e.instance, &count, devices)); err != nil {
		return fmt.Errorf("enumerate devices: %w", err)
	}

	type candidate struct {
		dev      vk.PhysicalDevice
		name     string
		family   uint32
		discrete bool
	}
	var candidates []candidate
	for _, dev := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()
		name := vk.ToString(props.DeviceName[:])

		family, ok := presentableQueueFamily(dev, surface)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{
			dev:      dev,
			name:     name,
			family:   family,
			discrete: props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
		})
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no device can present to the primary surface")
	}

	pick := -1
	want := strings.ToLower(vendor)
	for i, c := range candidates {
		if want != "" && !strings.Contains(strings.ToLower(c.name), want) {
			continue
		}
		if pick < 0 || (c.discrete && !candidates[pick].discrete) {
			pick = i
		}
	}
	if pick < 0 {
		multiwin.Logger().Warn("vulkan: no adapter matches vendor, using first",
			"vendor", vendor)
		pick = 0
	}

	e.physical = candidates[pick].dev
	e.queueFamily = candidates[pick].family
	e.adapter = candidates[pick].name
	return nil
}

// presentableQueueFamily finds a queue family with both graphics and
// present support; split graphics/present queues are not worth the
// machinery for this workload.
func presentableQueueFamily(dev vk.PhysicalDevice, surface vk.Surface) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, nil)
	if count == 0 {
		return 0, false
	}
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &count, families)

	for i := range families {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(dev, uint32(i), surface, &supported)
		if supported == vk.True {
			return uint32(i), true
		}
	}
	return 0, false
}

func (e *Engine) createDevice() error {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: e.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	extensions := []string{"VK_KHR_swapchain"}
	var device vk.Device
	ret := vk.CreateDevice(e.physical, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}, nil, &device)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	e.device = device

	var queue vk.Queue
	vk.GetDeviceQueue(e.device, e.queueFamily, 0, &queue)
	e.queue = queue
	return nil
}

// createShared builds the state every window target uses: command pool,
// descriptor machinery, pipeline layout and the two render passes.
func (e *Engine) createShared() error {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(e.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: e.queueFamily,
	}, nil, &pool)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("command pool: %w", err)
	}
	e.cmdPool = pool

	var descPool vk.DescriptorPool
	ret = vk.CreateDescriptorPool(e.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       multiwin.MaxWindows,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: multiwin.MaxWindows,
		}},
	}, nil, &descPool)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("descriptor pool: %w", err)
	}
	e.descPool = descPool

	var layout vk.DescriptorSetLayout
	ret = vk.CreateDescriptorSetLayout(e.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		}},
	}, nil, &layout)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("descriptor set layout: %w", err)
	}
	e.descLayout = layout

	var pipeLayout vk.PipelineLayout
	ret = vk.CreatePipelineLayout(e.device, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{layout},
	}, nil, &pipeLayout)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("pipeline layout: %w", err)
	}
	e.pipeLayout = pipeLayout

	clearPass, err := e.createRenderPass(true)
	if err != nil {
		return fmt.Errorf("clear render pass: %w", err)
	}
	e.clearPass = clearPass

	loadPass, err := e.createRenderPass(false)
	if err != nil {
		return fmt.Errorf("load render pass: %w", err)
	}
	e.loadPass = loadPass
	return nil
}

func (e *Engine) createRenderPass(clear bool) (vk.RenderPass, error) {
	colorLoad := vk.AttachmentLoadOpClear
	colorInitial := vk.ImageLayoutUndefined
	depthLoad := vk.AttachmentLoadOpClear
	depthInitial := vk.ImageLayoutUndefined
	if !clear {
		colorLoad = vk.AttachmentLoadOpLoad
		colorInitial = vk.ImageLayoutPresentSrc
		depthLoad = vk.AttachmentLoadOpLoad
		depthInitial = vk.ImageLayoutDepthStencilAttachmentOptimal
	}

	attachments := []vk.AttachmentDescription{{
		Format:         vk.FormatB8g8r8a8Unorm,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         colorLoad,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  colorInitial,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}, {
		Format:         depthFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         depthLoad,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  depthInitial,
		FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
	}}

	subpass := []vk.SubpassDescription{{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	var pass vk.RenderPass
	ret := vk.CreateRenderPass(e.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      subpass,
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &pass)
	if err := vk.Error(ret); err != nil {
		return vk.NullRenderPass, err
	}
	return pass, nil
}

// Shutdown waits for the device to idle and releases everything.
func (e *Engine) Shutdown() {
	if e.device == nil {
		return
	}
	vk.DeviceWaitIdle(e.device)

	for slot, t := range e.targets {
		if t != nil {
			e.destroyTarget(t)
			e.targets[slot] = nil
		}
	}
	for _, p := range e.programs {
		p.destroy(e.device)
	}
	e.programs = nil
	for _, vb := range e.vbufs {
		if vb != nil {
			vb.buf.destroy(e.device)
		}
	}
	e.vbufs = nil
	for _, ib := range e.ibufs {
		if ib != nil {
			ib.buf.destroy(e.device)
		}
	}
	e.ibufs = nil

	vk.DestroyRenderPass(e.device, e.loadPass, nil)
	vk.DestroyRenderPass(e.device, e.clearPass, nil)
	vk.DestroyPipelineLayout(e.device, e.pipeLayout, nil)
	vk.DestroyDescriptorSetLayout(e.device, e.descLayout, nil)
	vk.DestroyDescriptorPool(e.device, e.descPool, nil)
	vk.DestroyCommandPool(e.device, e.cmdPool, nil)
	vk.DestroyDevice(e.device, nil)
	vk.DestroyInstance(e.instance, nil)
	e.device = nil
	e.instance = nil
}

// Caps reports swap-chain support; this backend exists for it.
func (e *Engine) Caps() multiwin.Caps {
	return multiwin.Caps{
		Renderer:         BackendName,
		SwapChain:        true,
		HomogeneousDepth: false,
	}
}

// CreateFrameBuffer builds a swap chain for an additional window. The
// returned handle's index is the window slot.
func (e *Engine) CreateFrameBuffer(native any, width, height uint16) multiwin.FrameBufferHandle {
	win, ok := native.(SurfaceWindow)
	if !ok {
		multiwin.Logger().Warn("vulkan: window cannot create surfaces", "type", fmt.Sprintf("%T", native))
		return multiwin.InvalidFrameBuffer
	}

	slot := -1
	for i := 1; i < multiwin.MaxWindows; i++ {
		if e.targets[i] == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		multiwin.Logger().Warn("vulkan: no free framebuffer slots")
		return multiwin.InvalidFrameBuffer
	}

	surfPtr, err := win.CreateWindowSurface(e.instance, nil)
	if err != nil {
		multiwin.Logger().Warn("vulkan: window surface", "err", err)
		return multiwin.InvalidFrameBuffer
	}

	t, err := e.newTarget(native, vk.SurfaceFromPointer(surfPtr), uint32(width), uint32(height))
	if err != nil {
		multiwin.Logger().Warn("vulkan: swap chain", "slot", slot, "err", err)
		return multiwin.InvalidFrameBuffer
	}
	e.targets[slot] = t
	return multiwin.FrameBufferFromIndex(uint16(slot))
}

// DestroyFrameBuffer tears down a secondary window's swap chain. The
// caller must have run at least one Frame since the handle was last
// submitted, which the frame barrier guarantees.
func (e *Engine) DestroyFrameBuffer(fb multiwin.FrameBufferHandle) {
	if !fb.IsValid() || int(fb.Index()) >= multiwin.MaxWindows {
		return
	}
	t := e.targets[fb.Index()]
	if t == nil {
		return
	}
	vk.DeviceWaitIdle(e.device)
	e.destroyTarget(t)
	e.targets[fb.Index()] = nil
}

func (e *Engine) SetViewClear(view multiwin.ViewID, flags multiwin.ClearFlags, rgba uint32, depth float32) {
	v := &e.views[view]
	v.clearFlags = flags
	v.clearRGBA = rgba
	v.clearDepth = depth
}

func (e *Engine) SetViewRect(view multiwin.ViewID, x, y, width, height uint16) {
	e.views[view].rect = [4]uint16{x, y, width, height}
}

func (e *Engine) SetViewTransform(view multiwin.ViewID, viewMtx, projMtx *lin.Mat4x4) {
	v := &e.views[view]
	if viewMtx != nil {
		v.viewMtx = *viewMtx
	}
	if projMtx != nil {
		v.projMtx = *projMtx
	}
}

func (e *Engine) SetViewFrameBuffer(view multiwin.ViewID, fb multiwin.FrameBufferHandle) {
	e.views[view].fb = fb
}

// Touch marks the view for rendering this frame even without draws.
func (e *Engine) Touch(view multiwin.ViewID) {
	e.views[view].touched = true
}

// Submit queues one draw for this frame.
func (e *Engine) Submit(view multiwin.ViewID, draw multiwin.Draw) {
	e.draws = append(e.draws, submission{view: view, draw: draw})
}

func (e *Engine) DebugTextClear() {
	e.debugText = e.debugText[:0]
}

func (e *Engine) DebugTextPrintf(x, y uint16, attr uint8, format string, args ...any) {
	e.debugText = append(e.debugText, debugLine{
		x:    int(x),
		y:    int(y),
		attr: attr,
		text: fmt.Sprintf(format, args...),
	})
}

// RequestScreenShot queues a capture of the target window's backbuffer
// for delivery after this frame's rendering completes.
func (e *Engine) RequestScreenShot(fb multiwin.FrameBufferHandle, path string) {
	slot := 0
	if fb.IsValid() {
		slot = int(fb.Index())
	}
	if slot >= multiwin.MaxWindows || e.targets[slot] == nil {
		multiwin.Logger().Warn("vulkan: screenshot of unknown framebuffer", "slot", slot)
		return
	}
	e.shots = append(e.shots, shotRequest{slot: slot, path: path})
}

// Frame renders every view that was touched or submitted to, one
// acquire/submit/present cycle per live window, then delivers queued
// screenshots. Each window's fence is waited before the next begins,
// which makes Frame the teardown barrier.
func (e *Engine) Frame() uint32 {
	e.frame++
	draws := e.draws
	shots := e.shots
	e.draws = e.draws[:0]
	e.shots = e.shots[:0]

	// Per-target work lists, built in view order so layered views on
	// one window render in submission order.
	work := map[int][]render{}
	for vi := range e.views {
		v := &e.views[vi]
		var vd []submission
		for _, sub := range draws {
			if int(sub.view) == vi {
				vd = append(vd, sub)
			}
		}
		if !v.touched && len(vd) == 0 {
			continue
		}
		v.touched = false
		slot := 0
		if v.fb.IsValid() {
			slot = int(v.fb.Index())
		}
		if slot >= multiwin.MaxWindows || e.targets[slot] == nil {
			continue
		}
		work[slot] = append(work[slot], render{view: v, draws: vd})
	}

	shotsBySlot := map[int][]string{}
	for _, s := range shots {
		shotsBySlot[s.slot] = append(shotsBySlot[s.slot], s.path)
	}

	for slot := 0; slot < multiwin.MaxWindows; slot++ {
		views, ok := work[slot]
		if !ok {
			continue
		}
		t := e.targets[slot]
		if err := e.renderTarget(t, views, shotsBySlot[slot]); err != nil {
			e.cb.Fatal(multiwin.FatalDeviceLost,
				fmt.Sprintf("frame %d slot %d: %v", e.frame, slot, err))
		}
	}
	return e.frame
}

// render is one view's work on a target for this frame.
type render struct {
	view  *viewState
	draws []submission
}

func (e *Engine) renderTarget(t *windowTarget, views []render, shots []string) error {
	imageIndex, ok, err := e.acquire(t)
	if err != nil {
		return err
	}
	if !ok {
		// Swap chain went stale and could not be recreated this frame;
		// skip the window, the next frame retries.
		return nil
	}

	slab := unsafe.Slice((*byte)(t.uniform.ptr), t.uniform.size)
	drawIdx := 0
	for _, r := range views {
		for _, sub := range r.draws {
			if drawIdx >= slabSlots {
				break
			}
			base := drawIdx * uniformSlot
			writeMat4(slab[base:], &sub.draw.Transform)
			writeMat4(slab[base+64:], &r.view.viewMtx)
			writeMat4(slab[base+128:], &r.view.projMtx)
			drawIdx++
		}
	}

	if err := e.record(t, imageIndex, views, len(shots) > 0); err != nil {
		return err
	}
	if err := e.submitAndWait(t); err != nil {
		return err
	}

	if len(shots) > 0 {
		e.deliverShots(t, shots)
	}

	return e.present(t, imageIndex)
}

func (e *Engine) acquire(t *windowTarget) (uint32, bool, error) {
	var imageIndex uint32
	res := vk.AcquireNextImage(e.device, t.swapchain, vk.MaxUint64, t.acquireSem, vk.NullFence, &imageIndex)
	if res == vk.ErrorOutOfDate || res == vk.Suboptimal {
		if err := e.recreateSwapchain(t); err != nil {
			multiwin.Logger().Warn("vulkan: swap chain recreate", "err", err)
			return 0, false, nil
		}
		res = vk.AcquireNextImage(e.device, t.swapchain, vk.MaxUint64, t.acquireSem, vk.NullFence, &imageIndex)
	}
	if err := vk.Error(res); err != nil {
		return 0, false, fmt.Errorf("acquire image: %w", err)
	}
	return imageIndex, true, nil
}

func (e *Engine) record(t *windowTarget, imageIndex uint32, views []render, capture bool) error {
	cmd := t.cmd
	vk.ResetCommandBuffer(cmd, 0)
	ret := vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("begin command buffer: %w", err)
	}

	drawIdx := 0
	for _, r := range views {
		pass := e.loadPass
		if r.view.clearFlags&multiwin.ClearColor != 0 {
			pass = e.clearPass
		}

		clearValues := make([]vk.ClearValue, 2)
		cr := decodeClearColor(r.view.clearRGBA)
		clearValues[0].SetColor(cr[:])
		clearValues[1].SetDepthStencil(r.view.clearDepth, 0)

		vk.CmdBeginRenderPass(cmd, &vk.RenderPassBeginInfo{
			SType:       vk.StructureTypeRenderPassBeginInfo,
			RenderPass:  pass,
			Framebuffer: t.fbs[imageIndex],
			RenderArea: vk.Rect2D{
				Offset: vk.Offset2D{},
				Extent: t.extent,
			},
			ClearValueCount: 2,
			PClearValues:    clearValues,
		}, vk.SubpassContentsInline)

		e.setViewport(cmd, t, r.view.rect)

		for _, sub := range r.draws {
			if drawIdx >= slabSlots {
				break
			}
			prog := e.program(sub.draw.Program)
			vb := e.vbuf(sub.draw.Vertices)
			if prog == nil || vb == nil {
				drawIdx++
				continue
			}
			if err := e.ensurePipeline(prog, vb); err != nil {
				multiwin.Logger().Warn("vulkan: pipeline", "program", prog.name, "err", err)
				drawIdx++
				continue
			}

			vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, prog.pipeline)
			vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, e.pipeLayout,
				0, 1, []vk.DescriptorSet{t.descSet},
				1, []uint32{uint32(drawIdx * uniformSlot)})
			vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{vb.buf.buf}, []vk.DeviceSize{0})

			if ib := e.ibuf(sub.draw.Indices); ib != nil {
				vk.CmdBindIndexBuffer(cmd, ib.buf.buf, 0, vk.IndexTypeUint16)
				vk.CmdDrawIndexed(cmd, ib.count, 1, 0, 0, 0)
			} else {
				vk.CmdDraw(cmd, vb.count, 1, 0, 0)
			}
			drawIdx++
		}

		vk.CmdEndRenderPass(cmd)
	}

	if capture {
		e.recordReadback(cmd, t, imageIndex)
	}

	if err := vk.Error(vk.EndCommandBuffer(cmd)); err != nil {
		return fmt.Errorf("end command buffer: %w", err)
	}
	return nil
}

// setViewport applies the view rect with a negative-height viewport so
// clip space matches the WGSL convention the shaders are written in.
func (e *Engine) setViewport(cmd vk.CommandBuffer, t *windowTarget, rect [4]uint16) {
	x, y := float32(rect[0]), float32(rect[1])
	w, h := float32(rect[2]), float32(rect[3])
	if rect[2] == 0 || rect[3] == 0 {
		x, y = 0, 0
		w, h = float32(t.extent.Width), float32(t.extent.Height)
	}
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{{
		X:        x,
		Y:        y + h,
		Width:    w,
		Height:   -h,
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(x), Y: int32(y)},
		Extent: vk.Extent2D{Width: uint32(w), Height: uint32(h)},
	}})
}

// recordReadback copies the freshly rendered image into the target's
// host-visible readback buffer, bracketed by layout transitions back to
// the presentable layout.
func (e *Engine) recordReadback(cmd vk.CommandBuffer, t *windowTarget, imageIndex uint32) {
	img := t.images[imageIndex]
	transitionImage(cmd, img,
		vk.ImageLayoutPresentSrc, vk.ImageLayoutTransferSrcOptimal,
		vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessTransferReadBit),
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit))

	vk.CmdCopyImageToBuffer(cmd, img, vk.ImageLayoutTransferSrcOptimal, t.readback.buf, 1,
		[]vk.BufferImageCopy{{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageOffset: vk.Offset3D{},
			ImageExtent: vk.Extent3D{
				Width:  t.extent.Width,
				Height: t.extent.Height,
				Depth:  1,
			},
		}})

	transitionImage(cmd, img,
		vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutPresentSrc,
		vk.AccessFlags(vk.AccessTransferReadBit), 0,
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit))
}

func transitionImage(cmd vk.CommandBuffer, img vk.Image, oldLayout, newLayout vk.ImageLayout,
	srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlags) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1,
		[]vk.ImageMemoryBarrier{barrier})
}

func (e *Engine) submitAndWait(t *windowTarget) error {
	submitInfo := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{t.acquireSem},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{t.cmd},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{t.renderSem},
	}}

	if err := vk.Error(vk.QueueSubmit(e.queue, 1, submitInfo, t.fence)); err != nil {
		return fmt.Errorf("queue submit: %w", err)
	}
	vk.WaitForFences(e.device, 1, []vk.Fence{t.fence}, vk.True, vk.MaxUint64)
	vk.ResetFences(e.device, 1, []vk.Fence{t.fence})
	return nil
}

func (e *Engine) present(t *windowTarget, imageIndex uint32) error {
	res := vk.QueuePresent(e.queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{t.renderSem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{t.swapchain},
		PImageIndices:      []uint32{imageIndex},
	})
	if res == vk.ErrorOutOfDate || res == vk.Suboptimal {
		if err := e.recreateSwapchain(t); err != nil {
			multiwin.Logger().Warn("vulkan: swap chain recreate", "err", err)
		}
		return nil
	}
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

// deliverShots reads the readback buffer, stamps the debug overlay and
// hands the BGRA pixels to the callbacks, once per queued path.
func (e *Engine) deliverShots(t *windowTarget, paths []string) {
	w, h := t.extent.Width, t.extent.Height
	pitch := w * 4
	raw := unsafe.Slice((*byte)(t.readback.ptr), uint64(pitch)*uint64(h))

	data := make([]byte, len(raw))
	copy(data, raw)
	if len(e.debugText) > 0 {
		pm := pixmap.FromBGRA(data, int(w), int(h), int(pitch), false)
		for _, l := range e.debugText {
			pm.DrawString(l.x, l.y, attrColor(l.attr), l.text)
		}
		data = pm.ToBGRA()
	}

	for _, path := range paths {
		e.cb.ScreenShot(path, w, h, pitch, data, false)
	}
}

// decodeClearColor unpacks a packed 0xRRGGBBAA clear color.
func decodeClearColor(rgba uint32) [4]float32 {
	return [4]float32{
		float32(rgba>>24&0xff) / 255,
		float32(rgba>>16&0xff) / 255,
		float32(rgba>>8&0xff) / 255,
		float32(rgba&0xff) / 255,
	}
}
