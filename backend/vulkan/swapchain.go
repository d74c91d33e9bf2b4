// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// windowTarget bundles everything one window needs to be rendered and
// presented: surface, swap chain, depth buffer, framebuffers, sync
// objects, a command buffer, the per-draw uniform slab and a
// host-visible readback buffer for screenshots.
type windowTarget struct {
	native  any
	surface vk.Surface

	swapchain vk.Swapchain
	format    vk.Format
	extent    vk.Extent2D
	images    []vk.Image
	views     []vk.ImageView
	fbs       []vk.Framebuffer

	depthImage vk.Image
	depthMem   vk.DeviceMemory
	depthView  vk.ImageView

	acquireSem vk.Semaphore
	renderSem  vk.Semaphore
	fence      vk.Fence
	cmd        vk.CommandBuffer

	uniform  hostBuffer
	descSet  vk.DescriptorSet
	readback hostBuffer
}

// newTarget creates the full bundle for a window whose surface already
// exists. On error the partially built target is torn down.
func (e *Engine) newTarget(native any, surface vk.Surface, width, height uint32) (*windowTarget, error) {
	t := &windowTarget{
		native:  native,
		surface: surface,
		extent:  vk.Extent2D{Width: width, Height: height},
	}

	if err := e.createSwapchainFor(t); err != nil {
		e.destroyTarget(t)
		return nil, err
	}

	var err error
	t.uniform, err = e.createHostBuffer(slabSlots*uniformSlot,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))
	if err != nil {
		e.destroyTarget(t)
		return nil, fmt.Errorf("uniform slab: %w", err)
	}

	t.descSet, err = e.allocDescriptorSet(&t.uniform)
	if err != nil {
		e.destroyTarget(t)
		return nil, fmt.Errorf("descriptor set: %w", err)
	}

	if err := e.createSyncObjects(t); err != nil {
		e.destroyTarget(t)
		return nil, err
	}

	cmdBufs := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(e.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        e.cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmdBufs)
	if err := vk.Error(ret); err != nil {
		e.destroyTarget(t)
		return nil, fmt.Errorf("command buffer: %w", err)
	}
	t.cmd = cmdBufs[0]

	return t, nil
}

// createSwapchainFor builds the swap chain and everything sized by its
// extent: image views, depth buffer, framebuffers and the readback
// buffer.
func (e *Engine) createSwapchainFor(t *windowTarget) error {
	var caps vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(e.physical, t.surface, &caps)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("surface capabilities: %w", err)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	extent := t.extent
	// 0xFFFFFFFF means the surface takes the swap chain's size;
	// otherwise the surface dictates it.
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		extent = vk.Extent2D{
			Width:  caps.CurrentExtent.Width,
			Height: caps.CurrentExtent.Height,
		}
	}
	t.extent = extent

	format, colorSpace, err := e.pickSurfaceFormat(t.surface)
	if err != nil {
		return err
	}
	t.format = format

	presentMode := e.pickPresentMode(t.surface)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	oldSwapchain := t.swapchain

	var swapchain vk.Swapchain
	ret = vk.CreateSwapchain(e.device, &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          t.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format,
		ImageColorSpace:  colorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(
			vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     oldSwapchain,
	}, nil, &swapchain)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("create swap chain: %w", err)
	}
	if oldSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(e.device, oldSwapchain, nil)
	}
	t.swapchain = swapchain

	var count uint32
	if err := vk.Error(vk.GetSwapchainImages(e.device, swapchain, &count, nil)); err != nil {
		return fmt.Errorf("swap chain images: %w", err)
	}
	t.images = make([]vk.Image, count)
	if err := vk.Error(vk.GetSwapchainImages(e.device, swapchain, &count, t.images)); err != nil {
		return fmt.Errorf("swap chain images: %w", err)
	}

	t.views = make([]vk.ImageView, count)
	for i, img := range t.images {
		view, err := e.createImageView(img, format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return fmt.Errorf("image view %d: %w", i, err)
		}
		t.views[i] = view
	}

	if err := e.createDepthBuffer(t); err != nil {
		return err
	}

	t.fbs = make([]vk.Framebuffer, count)
	for i, view := range t.views {
		attachments := []vk.ImageView{view, t.depthView}
		ret := vk.CreateFramebuffer(e.device, &vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      e.clearPass,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           extent.Width,
			Height:          extent.Height,
			Layers:          1,
		}, nil, &t.fbs[i])
		if err := vk.Error(ret); err != nil {
			return fmt.Errorf("framebuffer %d: %w", i, err)
		}
	}

	t.readback, err = e.createHostBuffer(uint64(extent.Width)*uint64(extent.Height)*4,
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit))
	if err != nil {
		return fmt.Errorf("readback buffer: %w", err)
	}
	return nil
}

// pickSurfaceFormat prefers B8G8R8A8 unorm, the format screenshots and
// the clear color math assume.
func (e *Engine) pickSurfaceFormat(surface vk.Surface) (vk.Format, vk.ColorSpace, error) {
	var count uint32
	ret := vk.GetPhysicalDeviceSurfaceFormats(e.physical, surface, &count, nil)
	if err := vk.Error(ret); err != nil {
		return 0, 0, fmt.Errorf("surface formats: %w", err)
	}
	formats := make([]vk.SurfaceFormat, count)
	ret = vk.GetPhysicalDeviceSurfaceFormats(e.physical, surface, &count, formats)
	if err := vk.Error(ret); err != nil {
		return 0, 0, fmt.Errorf("surface formats: %w", err)
	}

	for i := range formats {
		formats[i].Deref()
		if formats[i].Format == vk.FormatB8g8r8a8Unorm {
			return formats[i].Format, formats[i].ColorSpace, nil
		}
	}
	if count > 0 {
		if formats[0].Format == vk.FormatUndefined {
			return vk.FormatB8g8r8a8Unorm, formats[0].ColorSpace, nil
		}
		return 0, 0, fmt.Errorf("surface does not offer B8G8R8A8")
	}
	return 0, 0, fmt.Errorf("surface offers no formats")
}

// pickPresentMode prefers mailbox for low latency, falling back to
// FIFO which is always available.
func (e *Engine) pickPresentMode(surface vk.Surface) vk.PresentMode {
	var count uint32
	if vk.GetPhysicalDeviceSurfacePresentModes(e.physical, surface, &count, nil) != vk.Success {
		return vk.PresentModeFifo
	}
	modes := make([]vk.PresentMode, count)
	if vk.GetPhysicalDeviceSurfacePresentModes(e.physical, surface, &count, modes) != vk.Success {
		return vk.PresentModeFifo
	}
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
	}
	return vk.PresentModeFifo
}

func (e *Engine) createDepthBuffer(t *windowTarget) error {
	var img vk.Image
	ret := vk.CreateImage(e.device, &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    depthFormat,
		Extent: vk.Extent3D{
			Width:  t.extent.Width,
			Height: t.extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("depth image: %w", err)
	}
	t.depthImage = img

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(e.device, img, &memReqs)
	memReqs.Deref()

	mem, err := e.allocate(memReqs,
		vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return fmt.Errorf("depth memory: %w", err)
	}
	t.depthMem = mem
	if err := vk.Error(vk.BindImageMemory(e.device, img, mem, 0)); err != nil {
		return fmt.Errorf("bind depth memory: %w", err)
	}

	view, err := e.createImageView(img, depthFormat, vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	if err != nil {
		return fmt.Errorf("depth view: %w", err)
	}
	t.depthView = view
	return nil
}

func (e *Engine) createImageView(img vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	var view vk.ImageView
	ret := vk.CreateImageView(e.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)
	if err := vk.Error(ret); err != nil {
		return vk.NullImageView, err
	}
	return view, nil
}

func (e *Engine) createSyncObjects(t *windowTarget) error {
	semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if err := vk.Error(vk.CreateSemaphore(e.device, &semInfo, nil, &t.acquireSem)); err != nil {
		return fmt.Errorf("acquire semaphore: %w", err)
	}
	if err := vk.Error(vk.CreateSemaphore(e.device, &semInfo, nil, &t.renderSem)); err != nil {
		return fmt.Errorf("render semaphore: %w", err)
	}
	ret := vk.CreateFence(e.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &t.fence)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("fence: %w", err)
	}
	return nil
}

func (e *Engine) allocDescriptorSet(slab *hostBuffer) (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	ret := vk.AllocateDescriptorSets(e.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     e.descPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{e.descLayout},
	}, &set)
	if err := vk.Error(ret); err != nil {
		return vk.NullDescriptorSet, err
	}

	vk.UpdateDescriptorSets(e.device, 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: slab.buf,
			Offset: 0,
			Range:  uniformSize,
		}},
	}}, 0, nil)
	return set, nil
}

// recreateSwapchain rebuilds the extent-sized half of a target after
// the surface reports it stale. The surface, sync objects, uniform
// slab and command buffer survive.
func (e *Engine) recreateSwapchain(t *windowTarget) error {
	vk.DeviceWaitIdle(e.device)
	e.destroyExtentResources(t)
	return e.createSwapchainFor(t)
}

// destroyExtentResources drops everything sized by the swap chain
// extent, leaving the swap chain itself for OldSwapchain reuse.
func (e *Engine) destroyExtentResources(t *windowTarget) {
	for _, fb := range t.fbs {
		vk.DestroyFramebuffer(e.device, fb, nil)
	}
	t.fbs = nil
	if t.depthView != vk.NullImageView {
		vk.DestroyImageView(e.device, t.depthView, nil)
		t.depthView = vk.NullImageView
	}
	if t.depthImage != vk.NullImage {
		vk.DestroyImage(e.device, t.depthImage, nil)
		t.depthImage = vk.NullImage
	}
	if t.depthMem != vk.NullDeviceMemory {
		vk.FreeMemory(e.device, t.depthMem, nil)
		t.depthMem = vk.NullDeviceMemory
	}
	for _, view := range t.views {
		vk.DestroyImageView(e.device, view, nil)
	}
	t.views = nil
	t.images = nil
	t.readback.destroy(e.device)
}

func (e *Engine) destroyTarget(t *windowTarget) {
	e.destroyExtentResources(t)
	if t.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(e.device, t.swapchain, nil)
		t.swapchain = vk.NullSwapchain
	}
	if t.cmd != nil {
		vk.FreeCommandBuffers(e.device, e.cmdPool, 1, []vk.CommandBuffer{t.cmd})
		t.cmd = nil
	}
	if t.descSet != vk.NullDescriptorSet {
		vk.FreeDescriptorSets(e.device, e.descPool, 1, &t.descSet)
		t.descSet = vk.NullDescriptorSet
	}
	t.uniform.destroy(e.device)
	if t.fence != vk.NullFence {
		vk.DestroyFence(e.device, t.fence, nil)
		t.fence = vk.NullFence
	}
	if t.renderSem != vk.NullSemaphore {
		vk.DestroySemaphore(e.device, t.renderSem, nil)
		t.renderSem = vk.NullSemaphore
	}
	if t.acquireSem != vk.NullSemaphore {
		vk.DestroySemaphore(e.device, t.acquireSem, nil)
		t.acquireSem = vk.NullSemaphore
	}
	if t.surface != vk.NullSurface {
		vk.DestroySurface(e.instance, t.surface, nil)
		t.surface = vk.NullSurface
	}
}

// hostBuffer is a host-visible, host-coherent buffer kept persistently
// mapped.
type hostBuffer struct {
	buf  vk.Buffer
	mem  vk.DeviceMemory
	ptr  unsafe.Pointer
	size uint64
}

func (e *Engine) createHostBuffer(size uint64, usage vk.BufferUsageFlags) (hostBuffer, error) {
	var buf vk.Buffer
	ret := vk.CreateBuffer(e.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf)
	if err := vk.Error(ret); err != nil {
		return hostBuffer{}, fmt.Errorf("create buffer: %w", err)
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(e.device, buf, &memReqs)
	memReqs.Deref()

	mem, err := e.allocate(memReqs, vk.MemoryPropertyFlagBits(
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(e.device, buf, nil)
		return hostBuffer{}, err
	}
	if err := vk.Error(vk.BindBufferMemory(e.device, buf, mem, 0)); err != nil {
		vk.FreeMemory(e.device, mem, nil)
		vk.DestroyBuffer(e.device, buf, nil)
		return hostBuffer{}, fmt.Errorf("bind buffer memory: %w", err)
	}

	var ptr unsafe.Pointer
	if err := vk.Error(vk.MapMemory(e.device, mem, 0, vk.DeviceSize(size), 0, &ptr)); err != nil {
		vk.FreeMemory(e.device, mem, nil)
		vk.DestroyBuffer(e.device, buf, nil)
		return hostBuffer{}, fmt.Errorf("map memory: %w", err)
	}

	return hostBuffer{buf: buf, mem: mem, ptr: ptr, size: size}, nil
}

// write copies data into the mapped buffer at offset.
func (b *hostBuffer) write(offset uint64, data []byte) {
	dst := unsafe.Slice((*byte)(b.ptr), b.size)
	copy(dst[offset:], data)
}

func (b *hostBuffer) destroy(device vk.Device) {
	if b.mem != vk.NullDeviceMemory {
		vk.UnmapMemory(device, b.mem)
		vk.FreeMemory(device, b.mem, nil)
		b.mem = vk.NullDeviceMemory
	}
	if b.buf != vk.NullBuffer {
		vk.DestroyBuffer(device, b.buf, nil)
		b.buf = vk.NullBuffer
	}
	b.ptr = nil
	b.size = 0
}

// allocate finds a memory type satisfying reqs and props and allocates
// from it.
func (e *Engine) allocate(reqs vk.MemoryRequirements, props vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(e.physical, &memProps)
	memProps.Deref()

	typeIndex := int32(-1)
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		mt := memProps.MemoryTypes[i]
		mt.Deref()
		if reqs.MemoryTypeBits&(1<<i) != 0 &&
			vk.MemoryPropertyFlagBits(mt.PropertyFlags)&props == props {
			typeIndex = int32(i)
			break
		}
	}
	if typeIndex < 0 {
		return vk.NullDeviceMemory, fmt.Errorf("no matching memory type")
	}

	var mem vk.DeviceMemory
	ret := vk.AllocateMemory(e.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(typeIndex),
	}, nil, &mem)
	if err := vk.Error(ret); err != nil {
		return vk.NullDeviceMemory, fmt.Errorf("allocate memory: %w", err)
	}
	return mem, nil
}
