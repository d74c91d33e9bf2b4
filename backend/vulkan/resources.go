// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"image/color"
	"math"

	vk "github.com/goki/vulkan"
	lin "github.com/xlab/linmath"

	"github.com/gogpu/naga"

	"github.com/gogpu/multiwin"
)

// program is one compiled shader module plus its graphics pipeline. The
// pipeline is created lazily at first submit, when the vertex layout is
// known; vs_main and fs_main come from the same module.
type program struct {
	name   string
	module vk.ShaderModule

	// pipeline is built lazily against the first vertex layout the
	// program is drawn with; the demo uses one layout per program.
	pipeline vk.Pipeline
}

func (p *program) destroy(device vk.Device) {
	if p == nil {
		return
	}
	if p.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(device, p.pipeline, nil)
		p.pipeline = vk.NullPipeline
	}
	if p.module != vk.NullShaderModule {
		vk.DestroyShaderModule(device, p.module, nil)
		p.module = vk.NullShaderModule
	}
}

// vertexBuffer is a host-visible vertex buffer; the workload is small
// enough that staging to device-local memory buys nothing.
type vertexBuffer struct {
	buf    hostBuffer
	layout multiwin.VertexLayout
	count  uint32
}

type indexBuffer struct {
	buf   hostBuffer
	count uint32
}

// CreateVertexBuffer uploads vertex data. An invalid handle reports
// failure.
func (e *Engine) CreateVertexBuffer(data []byte, layout multiwin.VertexLayout) multiwin.VertexBufferHandle {
	buf, err := e.createHostBuffer(uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		multiwin.Logger().Warn("vulkan: vertex buffer", "err", err)
		return multiwin.InvalidVertexBuffer
	}
	buf.write(0, data)

	e.vbufs = append(e.vbufs, &vertexBuffer{
		buf:    buf,
		layout: layout,
		count:  uint32(len(data)) / uint32(layout.Stride),
	})
	return multiwin.VertexBufferFromIndex(uint16(len(e.vbufs)))
}

func (e *Engine) DestroyVertexBuffer(h multiwin.VertexBufferHandle) {
	vb := e.vbuf(h)
	if vb == nil {
		return
	}
	vk.DeviceWaitIdle(e.device)
	vb.buf.destroy(e.device)
	e.vbufs[h.Index()-1] = nil
}

// CreateIndexBuffer uploads 16-bit index data.
func (e *Engine) CreateIndexBuffer(data []byte) multiwin.IndexBufferHandle {
	buf, err := e.createHostBuffer(uint64(len(data)),
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
	if err != nil {
		multiwin.Logger().Warn("vulkan: index buffer", "err", err)
		return multiwin.InvalidIndexBuffer
	}
	buf.write(0, data)

	e.ibufs = append(e.ibufs, &indexBuffer{
		buf:   buf,
		count: uint32(len(data) / 2),
	})
	return multiwin.IndexBufferFromIndex(uint16(len(e.ibufs)))
}

func (e *Engine) DestroyIndexBuffer(h multiwin.IndexBufferHandle) {
	ib := e.ibuf(h)
	if ib == nil {
		return
	}
	vk.DeviceWaitIdle(e.device)
	ib.buf.destroy(e.device)
	e.ibufs[h.Index()-1] = nil
}

func (e *Engine) vbuf(h multiwin.VertexBufferHandle) *vertexBuffer {
	i := int(h.Index()) - 1
	if !h.IsValid() || i < 0 || i >= len(e.vbufs) {
		return nil
	}
	return e.vbufs[i]
}

func (e *Engine) ibuf(h multiwin.IndexBufferHandle) *indexBuffer {
	i := int(h.Index()) - 1
	if !h.IsValid() || i < 0 || i >= len(e.ibufs) {
		return nil
	}
	return e.ibufs[i]
}

// CreateProgram compiles WGSL to SPIR-V through the shader cache and
// wraps it in a shader module. Both entry points live in one module.
func (e *Engine) CreateProgram(name, wgsl string) multiwin.ProgramHandle {
	id := shaderCacheID(BackendName, name, wgsl)

	spirv, ok := e.cb.CacheRead(id)
	if ok {
		e.cb.Trace("shader cache hit", "name", name, "id", fmt.Sprintf("%016x", id))
	} else {
		var err error
		spirv, err = naga.Compile(wgsl)
		if err != nil {
			multiwin.Logger().Warn("vulkan: shader compilation failed", "name", name, "err", err)
			return multiwin.InvalidProgram
		}
		e.cb.CacheWrite(id, spirv)
	}

	var module vk.ShaderModule
	ret := vk.CreateShaderModule(e.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(spirv)),
		PCode:    spirvWords(spirv),
	}, nil, &module)
	if err := vk.Error(ret); err != nil {
		multiwin.Logger().Warn("vulkan: shader module creation failed", "name", name, "err", err)
		return multiwin.InvalidProgram
	}

	e.programs = append(e.programs, &program{name: name, module: module})
	return multiwin.ProgramFromIndex(uint16(len(e.programs)))
}

func (e *Engine) DestroyProgram(h multiwin.ProgramHandle) {
	p := e.program(h)
	if p == nil {
		return
	}
	vk.DeviceWaitIdle(e.device)
	p.destroy(e.device)
	e.programs[h.Index()-1] = nil
}

func (e *Engine) program(h multiwin.ProgramHandle) *program {
	i := int(h.Index()) - 1
	if !h.IsValid() || i < 0 || i >= len(e.programs) {
		return nil
	}
	return e.programs[i]
}

// ensurePipeline builds the program's graphics pipeline against a
// vertex layout the first time the pair is drawn. Viewport and scissor
// are dynamic so one pipeline serves every window size.
func (e *Engine) ensurePipeline(p *program, vb *vertexBuffer) error {
	if p.pipeline != vk.NullPipeline {
		return nil
	}

	bindings, attributes := vertexInput(vb.layout)

	vertexInputState := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterState := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}

	multisampleState := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vk.True,
		DepthWriteEnable: vk.True,
		DepthCompareOp:   vk.CompareOpLess,
		MaxDepthBounds:   1.0,
	}

	blendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{{
			ColorWriteMask: vk.ColorComponentFlags(
				vk.ColorComponentRBit | vk.ColorComponentGBit |
					vk.ColorComponentBBit | vk.ColorComponentABit),
		}},
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: 2,
		PDynamicStates: []vk.DynamicState{
			vk.DynamicStateViewport,
			vk.DynamicStateScissor,
		},
	}

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: p.module,
		PName:  safeString("vs_main"),
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: p.module,
		PName:  safeString("fs_main"),
	}}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(e.device, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{{
			SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
			StageCount:          uint32(len(stages)),
			PStages:             stages,
			PVertexInputState:   &vertexInputState,
			PInputAssemblyState: &inputAssembly,
			PViewportState:      &viewportState,
			PRasterizationState: &rasterState,
			PMultisampleState:   &multisampleState,
			PDepthStencilState:  &depthStencil,
			PColorBlendState:    &blendState,
			PDynamicState:       &dynamicState,
			Layout:              e.pipeLayout,
			RenderPass:          e.clearPass,
			Subpass:             0,
		}}, nil, pipelines)
	if err := vk.Error(ret); err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	p.pipeline = pipelines[0]
	return nil
}

// vertexInput converts the engine vertex layout to Vulkan binding and
// attribute descriptions. Locations follow element order, matching the
// WGSL @location indices.
func vertexInput(l multiwin.VertexLayout) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	bindings := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    uint32(l.Stride),
		InputRate: vk.VertexInputRateVertex,
	}}

	attributes := make([]vk.VertexInputAttributeDescription, 0, len(l.Elements))
	offset := uint32(0)
	for i, el := range l.Elements {
		var format vk.Format
		var size uint32
		switch {
		case el.Float && el.Num == 2:
			format = vk.FormatR32g32Sfloat
			size = 8
		case el.Float && el.Num == 3:
			format = vk.FormatR32g32b32Sfloat
			size = 12
		case el.Float && el.Num == 4:
			format = vk.FormatR32g32b32a32Sfloat
			size = 16
		case !el.Float && el.Num == 4 && el.Normalized:
			format = vk.FormatR8g8b8a8Unorm
			size = 4
		default:
			format = vk.FormatR8g8b8a8Uint
			size = 4
		}
		attributes = append(attributes, vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   format,
			Offset:   offset,
		})
		offset += size
	}
	return bindings, attributes
}

func shaderCacheID(renderer, name, source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(renderer))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(source))
	return h.Sum64()
}

// spirvWords reinterprets SPIR-V bytes as little-endian 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

// writeMat4 serializes a column-major matrix as 16 little-endian
// float32 values, the std140 layout the shader block expects.
func writeMat4(dst []byte, m *lin.Mat4x4) {
	i := 0
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			binary.LittleEndian.PutUint32(dst[i:], math.Float32bits(m[c][r]))
			i += 4
		}
	}
}

func safeString(s string) string {
	return s + "\x00"
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// debugPalette maps the low attribute nibble onto the classic 16-color
// console palette used for overlay text.
var debugPalette = [16]color.RGBA{
	{0x00, 0x00, 0x00, 0xff}, {0x00, 0x00, 0xaa, 0xff},
	{0x00, 0xaa, 0x00, 0xff}, {0x00, 0xaa, 0xaa, 0xff},
	{0xaa, 0x00, 0x00, 0xff}, {0xaa, 0x00, 0xaa, 0xff},
	{0xaa, 0x55, 0x00, 0xff}, {0xaa, 0xaa, 0xaa, 0xff},
	{0x55, 0x55, 0x55, 0xff}, {0x55, 0x55, 0xff, 0xff},
	{0x55, 0xff, 0x55, 0xff}, {0x55, 0xff, 0xff, 0xff},
	{0xff, 0x55, 0x55, 0xff}, {0xff, 0x55, 0xff, 0xff},
	{0xff, 0xff, 0x55, 0xff}, {0xff, 0xff, 0xff, 0xff},
}

func attrColor(attr uint8) color.RGBA {
	return debugPalette[attr&0x0f]
}
