// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"image/color"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
	lin "github.com/xlab/linmath"

	"github.com/gogpu/multiwin"
)

// program is one compiled shader plus its render pipeline. The pipeline
// is created lazily at first submit, when the vertex layout is known.
type program struct {
	name   string
	module hal.ShaderModule

	pipeline hal.RenderPipeline
	// layoutOf remembers which vertex buffer the pipeline was built
	// against; the demo uses one layout per program.
	layoutOf uint16
}

func (p *program) destroy(device hal.Device) {
	if p == nil {
		return
	}
	if p.pipeline != nil {
		device.DestroyRenderPipeline(p.pipeline)
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
	}
}

// vertexBuffer keeps both the GPU buffer and the CPU copy; the copy
// feeds mesh deindexing.
type vertexBuffer struct {
	buf    hal.Buffer
	layout multiwin.VertexLayout
	data   []byte
}

type indexBuffer struct {
	indices []uint16
}

type meshKey struct {
	vb, ib uint16
}

// mesh is a deindexed vertex stream: the HAL render pass has no index
// buffer binding, so the winding is expanded into plain vertices once.
type mesh struct {
	buf         hal.Buffer
	vertexCount uint32
}

// uniformSlotRes is one pooled per-draw uniform buffer with its bind
// group.
type uniformSlotRes struct {
	buf       hal.Buffer
	bindGroup hal.BindGroup
}

func (s *uniformSlotRes) destroy(device hal.Device) {
	if s.bindGroup != nil {
		device.DestroyBindGroup(s.bindGroup)
	}
	if s.buf != nil {
		device.DestroyBuffer(s.buf)
	}
}

// CreateVertexBuffer uploads vertex data and keeps a CPU copy for
// deindexing.
func (e *Engine) CreateVertexBuffer(data []byte, layout multiwin.VertexLayout) multiwin.VertexBufferHandle {
	buf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "multiwin_vertices",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		multiwin.Logger().Warn("wgpu: vertex buffer creation failed", "err", err)
		return multiwin.InvalidVertexBuffer
	}
	e.queue.WriteBuffer(buf, 0, data)

	cp := make([]byte, len(data))
	copy(cp, data)
	e.vbufs = append(e.vbufs, &vertexBuffer{buf: buf, layout: layout, data: cp})
	return multiwin.VertexBufferFromIndex(uint16(len(e.vbufs)))
}

// DestroyVertexBuffer releases the buffer and any meshes built on it.
func (e *Engine) DestroyVertexBuffer(h multiwin.VertexBufferHandle) {
	vb := e.vbuf(h)
	if vb == nil {
		return
	}
	e.dropMeshes(func(k meshKey) bool { return k.vb == h.Index() })
	e.device.DestroyBuffer(vb.buf)
	e.vbufs[h.Index()-1] = nil
}

// CreateIndexBuffer stores a uint16 winding. No GPU buffer is created;
// the winding only drives deindexing.
func (e *Engine) CreateIndexBuffer(data []byte) multiwin.IndexBufferHandle {
	indices := make([]uint16, len(data)/2)
	for i := range indices {
		indices[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	e.ibufs = append(e.ibufs, &indexBuffer{indices: indices})
	return multiwin.IndexBufferFromIndex(uint16(len(e.ibufs)))
}

// DestroyIndexBuffer drops the winding and any meshes built on it.
func (e *Engine) DestroyIndexBuffer(h multiwin.IndexBufferHandle) {
	if e.ibuf(h) == nil {
		return
	}
	e.dropMeshes(func(k meshKey) bool { return k.ib == h.Index() })
	e.ibufs[h.Index()-1] = nil
}

func (e *Engine) vbuf(h multiwin.VertexBufferHandle) *vertexBuffer {
	i := int(h.Index())
	if !h.IsValid() || i < 1 || i > len(e.vbufs) {
		return nil
	}
	return e.vbufs[i-1]
}

func (e *Engine) ibuf(h multiwin.IndexBufferHandle) *indexBuffer {
	i := int(h.Index())
	if !h.IsValid() || i < 1 || i > len(e.ibufs) {
		return nil
	}
	return e.ibufs[i-1]
}

func (e *Engine) dropMeshes(match func(meshKey) bool) {
	for k, m := range e.meshes {
		if match(k) {
			e.device.DestroyBuffer(m.buf)
			delete(e.meshes, k)
		}
	}
}

// mesh returns (building on first use) the deindexed vertex stream for
// a vertex/index buffer pair.
func (e *Engine) mesh(vh multiwin.VertexBufferHandle, ih multiwin.IndexBufferHandle) *mesh {
	key := meshKey{vb: vh.Index(), ib: ih.Index()}
	if m, ok := e.meshes[key]; ok {
		return m
	}
	vb := e.vbuf(vh)
	ib := e.ibuf(ih)
	if vb == nil || ib == nil {
		return nil
	}

	stride := int(vb.layout.Stride)
	expanded := make([]byte, 0, len(ib.indices)*stride)
	for _, idx := range ib.indices {
		off := int(idx) * stride
		if off+stride > len(vb.data) {
			multiwin.Logger().Warn("wgpu: index out of range", "index", idx)
			return nil
		}
		expanded = append(expanded, vb.data[off:off+stride]...)
	}

	buf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "multiwin_mesh",
		Size:  uint64(len(expanded)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		multiwin.Logger().Warn("wgpu: mesh buffer creation failed", "err", err)
		return nil
	}
	e.queue.WriteBuffer(buf, 0, expanded)

	m := &mesh{buf: buf, vertexCount: uint32(len(ib.indices))}
	e.meshes[key] = m
	return m
}

// CreateProgram compiles WGSL to SPIR-V through the shader cache and
// creates the shader module. The render pipeline follows at first
// submit.
func (e *Engine) CreateProgram(name, wgsl string) multiwin.ProgramHandle {
	id := shaderCacheID(BackendName, name, wgsl)

	spirv, ok := e.cb.CacheRead(id)
	if ok {
		e.cb.Trace("shader cache hit", "name", name, "id", fmt.Sprintf("%016x", id))
	} else {
		var err error
		spirv, err = naga.Compile(wgsl)
		if err != nil {
			multiwin.Logger().Warn("wgpu: shader compilation failed", "name", name, "err", err)
			return multiwin.InvalidProgram
		}
		e.cb.CacheWrite(id, spirv)
	}

	module, err := e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: name,
		Source: hal.ShaderSource{
			SPIRV: spirvWords(spirv),
		},
	})
	if err != nil {
		multiwin.Logger().Warn("wgpu: shader module creation failed", "name", name, "err", err)
		return multiwin.InvalidProgram
	}

	e.programs = append(e.programs, &program{name: name, module: module})
	return multiwin.ProgramFromIndex(uint16(len(e.programs)))
}

// DestroyProgram releases the module and pipeline.
func (e *Engine) DestroyProgram(h multiwin.ProgramHandle) {
	p := e.program(h)
	if p == nil {
		return
	}
	p.destroy(e.device)
	e.programs[h.Index()-1] = nil
}

func (e *Engine) program(h multiwin.ProgramHandle) *program {
	i := int(h.Index())
	if !h.IsValid() || i < 1 || i > len(e.programs) {
		return nil
	}
	return e.programs[i-1]
}

// shaderCacheID derives the 64-bit cache key from the renderer, program
// name and source text.
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

// ensurePipeline builds the program's render pipeline against a vertex
// layout the first time the pair is drawn.
func (e *Engine) ensurePipeline(p *program, vh multiwin.VertexBufferHandle) error {
	if p.pipeline != nil && p.layoutOf == vh.Index() {
		return nil
	}
	vb := e.vbuf(vh)
	if vb == nil {
		return fmt.Errorf("unknown vertex buffer %d", vh.Index())
	}
	if p.pipeline != nil {
		e.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}

	pipeline, err := e.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  p.name + "_pipeline",
		Layout: e.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.module,
			EntryPoint: "vs_main",
			Buffers:    vertexBufferLayouts(vb.layout),
		},
		Fragment: &hal.FragmentState{
			Module:     p.module,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    gputypes.TextureFormatBGRA8Unorm,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilReadMask:  0,
			StencilWriteMask: 0,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
	})
	if err != nil {
		return fmt.Errorf("create %s pipeline: %w", p.name, err)
	}
	p.pipeline = pipeline
	p.layoutOf = vh.Index()
	return nil
}

// vertexBufferLayouts converts the engine-facing vertex layout into the
// wgpu form, assigning shader locations in element order.
func vertexBufferLayouts(l multiwin.VertexLayout) []gputypes.VertexBufferLayout {
	attrs := make([]gputypes.VertexAttribute, 0, len(l.Elements))
	offset := uint64(0)
	for loc, el := range l.Elements {
		var format gputypes.VertexFormat
		var size uint64
		switch {
		case el.Float && el.Num == 3:
			format = gputypes.VertexFormatFloat32x3
			size = 12
		case el.Float && el.Num == 2:
			format = gputypes.VertexFormatFloat32x2
			size = 8
		case !el.Float && el.Num == 4:
			format = gputypes.VertexFormatUnorm8x4
			size = 4
		default:
			format = gputypes.VertexFormatFloat32x4
			size = 16
		}
		attrs = append(attrs, gputypes.VertexAttribute{
			Format:         format,
			Offset:         offset,
			ShaderLocation: uint32(loc),
		})
		offset += size
	}
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: uint64(l.Stride),
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  attrs,
		},
	}
}

// prepareUniforms sizes the pool to the draw count, writes each draw's
// model/view/proj block and makes sure every pipeline exists.
func (e *Engine) prepareUniforms(v0 *viewState, draws []submission) error {
	for len(e.pool) < len(draws) {
		slot, err := e.newUniformSlot(len(e.pool))
		if err != nil {
			return err
		}
		e.pool = append(e.pool, slot)
	}

	block := make([]byte, uniformSize)
	for i, sub := range draws {
		prog := e.program(sub.draw.Program)
		if prog == nil {
			continue
		}
		if err := e.ensurePipeline(prog, sub.draw.Vertices); err != nil {
			return err
		}
		// Warm the deindexed mesh before encoding starts; buffer
		// uploads must not happen while the encoder is recording.
		e.mesh(sub.draw.Vertices, sub.draw.Indices)
		writeMat4(block[0:], &sub.draw.Transform)
		writeMat4(block[64:], &v0.viewMtx)
		writeMat4(block[128:], &v0.projMtx)
		e.queue.WriteBuffer(e.pool[i].buf, 0, block)
	}
	return nil
}

func (e *Engine) newUniformSlot(n int) (*uniformSlotRes, error) {
	buf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("multiwin_uniform_%d", n),
		Size:  uniformSlot,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create uniform buffer: %w", err)
	}
	bindGroup, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  fmt.Sprintf("multiwin_bind_%d", n),
		Layout: e.uniformLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(), Offset: 0, Size: uniformSize,
			}},
		},
	})
	if err != nil {
		e.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	return &uniformSlotRes{buf: buf, bindGroup: bindGroup}, nil
}

// writeMat4 serializes a column-major matrix as 16 little-endian
// float32 values.
func writeMat4(dst []byte, m *lin.Mat4x4) {
	i := 0
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			binary.LittleEndian.PutUint32(dst[i:], math.Float32bits(m[c][r]))
			i += 4
		}
	}
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
