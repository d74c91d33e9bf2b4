package multiwin

import "fmt"

// invalidIdx marks a handle that does not reference a live engine object.
const invalidIdx = 0xFFFF

// FrameBufferHandle references a window-backed or offscreen render target
// owned by the engine. Handles are plain values with explicit create and
// destroy calls; nothing is finalized implicitly. Destruction order matters:
// a framebuffer must be destroyed before the native window backing it.
type FrameBufferHandle struct{ idx uint16 }

// InvalidFrameBuffer is the zero framebuffer reference. Passing it to
// Engine.RequestScreenShot captures the primary backbuffer.
var InvalidFrameBuffer = FrameBufferHandle{idx: invalidIdx}

// FrameBufferFromIndex builds a handle for a backend-assigned slot.
func FrameBufferFromIndex(idx uint16) FrameBufferHandle { return FrameBufferHandle{idx: idx} }

// IsValid reports whether the handle references a live framebuffer.
func (h FrameBufferHandle) IsValid() bool { return h.idx != invalidIdx }

// Index returns the raw handle index, for diagnostics only.
func (h FrameBufferHandle) Index() uint16 { return h.idx }

func (h FrameBufferHandle) String() string {
	if !h.IsValid() {
		return "fb(invalid)"
	}
	return fmt.Sprintf("fb(%d)", h.idx)
}

// VertexBufferHandle references a static vertex buffer owned by the engine.
type VertexBufferHandle struct{ idx uint16 }

// InvalidVertexBuffer is the invalid vertex buffer reference, returned
// by engines when creation fails.
var InvalidVertexBuffer = VertexBufferHandle{idx: invalidIdx}

// VertexBufferFromIndex builds a handle for a backend-assigned slot.
func VertexBufferFromIndex(idx uint16) VertexBufferHandle { return VertexBufferHandle{idx: idx} }

// IsValid reports whether the handle references a live vertex buffer.
func (h VertexBufferHandle) IsValid() bool { return h.idx != invalidIdx }

// Index returns the raw handle index.
func (h VertexBufferHandle) Index() uint16 { return h.idx }

// IndexBufferHandle references a static index buffer owned by the engine.
type IndexBufferHandle struct{ idx uint16 }

// InvalidIndexBuffer is the invalid index buffer reference, returned
// by engines when creation fails.
var InvalidIndexBuffer = IndexBufferHandle{idx: invalidIdx}

// IndexBufferFromIndex builds a handle for a backend-assigned slot.
func IndexBufferFromIndex(idx uint16) IndexBufferHandle { return IndexBufferHandle{idx: idx} }

// IsValid reports whether the handle references a live index buffer.
func (h IndexBufferHandle) IsValid() bool { return h.idx != invalidIdx }

// Index returns the raw handle index.
func (h IndexBufferHandle) Index() uint16 { return h.idx }

// ProgramHandle references a compiled shader program owned by the engine.
type ProgramHandle struct{ idx uint16 }

// InvalidProgram is the invalid program reference, returned by engines
// when shader compilation or module creation fails.
var InvalidProgram = ProgramHandle{idx: invalidIdx}

// ProgramFromIndex builds a handle for a backend-assigned slot.
func ProgramFromIndex(idx uint16) ProgramHandle { return ProgramHandle{idx: idx} }

// IsValid reports whether the handle references a live program.
func (h ProgramHandle) IsValid() bool { return h.idx != invalidIdx }

// Index returns the raw handle index.
func (h ProgramHandle) Index() uint16 { return h.idx }

// WindowHandle identifies a window slot handed out by the Windower.
// The handle index doubles as the rendering view for that window.
type WindowHandle struct{ idx uint16 }

// InvalidWindow is the zero window reference.
var InvalidWindow = WindowHandle{idx: invalidIdx}

// WindowFromIndex builds a handle for a known slot index. Windower
// implementations use it when assigning slots.
func WindowFromIndex(idx uint16) WindowHandle { return WindowHandle{idx: idx} }

// IsValid reports whether the handle references a live window slot.
func (h WindowHandle) IsValid() bool { return h.idx != invalidIdx }

// Index returns the window slot index, which is also the view the window's
// draws are submitted to.
func (h WindowHandle) Index() uint16 { return h.idx }

// ViewID numbers a rendering target slot. Each view carries its own clear
// state, viewport, transforms and optional framebuffer binding.
type ViewID uint8
