package multiwin

import (
	lin "github.com/xlab/linmath"
)

// ClearFlags selects which view attachments are cleared when a view is drawn.
type ClearFlags uint16

const (
	// ClearNone leaves all attachments untouched.
	ClearNone ClearFlags = 0x0

	// ClearColor clears the color attachment.
	ClearColor ClearFlags = 0x1

	// ClearDepth clears the depth attachment.
	ClearDepth ClearFlags = 0x2
)

// Caps describes engine capabilities, queried once after Init.
type Caps struct {
	// Renderer is a human-readable backend name ("vulkan", "wgpu").
	Renderer string

	// SwapChain reports whether the backend can create additional
	// window-backed framebuffers. Without it only the primary window
	// and view 0 are usable.
	SwapChain bool

	// HomogeneousDepth is true when clip-space depth spans [-1, 1]
	// rather than [0, 1]. Projection setup honors it.
	HomogeneousDepth bool
}

// Platform carries the initial engine configuration: the primary window,
// its dimensions and the preferred GPU vendor, all resolved from the
// command line by the caller.
type Platform struct {
	// Native is the opaque primary window (for example *glfw.Window).
	// Backends type-assert the capability they need from it.
	Native any

	// RequiredExtensions lists instance extensions the windowing layer
	// needs, when the backend's API uses them.
	RequiredExtensions []string

	// Width and Height are the primary backbuffer dimensions.
	Width, Height uint32

	// Vendor optionally restricts adapter selection ("nvidia", "amd",
	// "intel"). Empty means any adapter.
	Vendor string
}

// VertexAttrib names a vertex attribute slot.
type VertexAttrib uint8

const (
	// AttribPosition is the vertex position attribute.
	AttribPosition VertexAttrib = iota

	// AttribColor0 is the primary vertex color attribute.
	AttribColor0
)

// VertexLayoutElement describes one attribute within a vertex.
type VertexLayoutElement struct {
	Attrib VertexAttrib

	// Num is the component count (3 for xyz, 4 for rgba).
	Num uint8

	// Float selects float32 components; otherwise unsigned bytes.
	Float bool

	// Normalized applies to integer components only.
	Normalized bool
}

// VertexLayout describes the memory layout of one vertex.
type VertexLayout struct {
	Stride   uint16
	Elements []VertexLayoutElement
}

// Draw is one submitted primitive batch: a model transform plus the
// buffers and program to draw with. Submission copies the value, so a
// caller may reuse one Draw across views.
type Draw struct {
	Transform lin.Mat4x4
	Vertices  VertexBufferHandle
	Indices   IndexBufferHandle
	Program   ProgramHandle
}

// Engine abstracts the rendering collaborator. All calls must come from
// the goroutine that owns the App; Frame is the synchronization barrier
// that orders resource destruction against in-flight use, so no draw or
// destroy call races a prior frame's use of the same handle.
//
// Handle-returning calls do not report errors. A failed creation yields
// an invalid handle which the caller observes at the next reconciliation
// pass, matching the engine's reference discipline.
type Engine interface {
	// Init brings the backend up for the given platform. The callback
	// set receives fatal errors, shader-cache traffic and screenshot
	// data; it must not be nil.
	Init(p Platform, cb Callbacks) error

	// Shutdown releases every engine resource. The engine is unusable
	// afterwards.
	Shutdown()

	// Caps reports backend capabilities. Valid after Init.
	Caps() Caps

	CreateVertexBuffer(data []byte, layout VertexLayout) VertexBufferHandle
	DestroyVertexBuffer(VertexBufferHandle)
	CreateIndexBuffer(data []byte) IndexBufferHandle
	DestroyIndexBuffer(IndexBufferHandle)

	// CreateProgram compiles a WGSL module with vs_main/fs_main entry
	// points, consulting the shader cache through the callbacks.
	CreateProgram(name, wgsl string) ProgramHandle
	DestroyProgram(ProgramHandle)

	// CreateFrameBuffer creates a window-backed framebuffer for the
	// given opaque native window. Returns an invalid handle when the
	// backend lacks swap-chain support or creation fails.
	CreateFrameBuffer(native any, width, height uint16) FrameBufferHandle
	DestroyFrameBuffer(FrameBufferHandle)

	// SetViewClear configures clear flags, color (0xRRGGBBAA) and depth
	// for a view.
	SetViewClear(view ViewID, flags ClearFlags, rgba uint32, depth float32)

	// SetViewRect sets the view's viewport in pixels.
	SetViewRect(view ViewID, x, y, width, height uint16)

	// SetViewTransform sets the view and projection matrices.
	SetViewTransform(view ViewID, viewMtx, projMtx *lin.Mat4x4)

	// SetViewFrameBuffer binds a framebuffer to a view. An invalid
	// handle binds the primary backbuffer.
	SetViewFrameBuffer(view ViewID, fb FrameBufferHandle)

	// Touch submits an empty draw so a view is cleared even when no
	// other submission targets it.
	Touch(view ViewID)

	// Submit queues one draw into a view for the current frame.
	Submit(view ViewID, draw Draw)

	// DebugTextClear resets the debug text overlay for this frame.
	DebugTextClear()

	// DebugTextPrintf writes a line into the debug overlay at character
	// cell (x, y) with a console-palette color attribute.
	DebugTextPrintf(x, y uint16, attr uint8, format string, args ...any)

	// RequestScreenShot asks for an asynchronous capture of fb (or the
	// primary backbuffer when fb is invalid). Pixels are delivered to
	// Callbacks.ScreenShot during a later Frame.
	RequestScreenShot(fb FrameBufferHandle, path string)

	// Frame renders and presents the submitted frame, then returns the
	// new frame counter. It is the barrier all teardown relies on.
	Frame() uint32
}
