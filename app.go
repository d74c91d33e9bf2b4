package multiwin

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"
)

// CaptureInterval is the frame period between screenshot requests.
const CaptureInterval = 300

// bindingsName is the name the window bindings are installed under.
const bindingsName = "windows"

//go:embed shaders/cubes.wgsl
var cubeShaderSource string

// App drives the multi-window demo: it owns the window registry, polls
// the windower each tick, reconciles framebuffers against reported
// window states, submits the cube grid and advances the engine frame.
//
// A single goroutine owns the App. The engine's Frame call is the only
// synchronization barrier; no locks are needed.
type App struct {
	engine   Engine
	windower Windower
	cb       Callbacks

	reg   *Registry
	binds bindings
	caps  Caps

	vbh     VertexBufferHandle
	ibh     IndexBufferHandle
	program ProgramHandle

	captureDir string
	frame      uint32
	start      time.Time
}

// NewApp assembles an App from options. WithEngine and WithWindower are
// mandatory; callbacks default to DiskCallbacks rooted at the capture
// directory.
func NewApp(opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		return nil, fmt.Errorf("multiwin: an engine is required")
	}
	if o.windower == nil {
		return nil, fmt.Errorf("multiwin: a windower is required")
	}
	cb := o.callbacks
	if cb == nil {
		dc, err := NewDiskCallbacks(o.captureDir)
		if err != nil {
			return nil, err
		}
		cb = dc
	}
	return &App{
		engine:     o.engine,
		windower:   o.windower,
		cb:         cb,
		reg:        NewRegistry(),
		captureDir: o.captureDir,
	}, nil
}

// Init brings the engine up, installs the window bindings when the
// backend supports swap chains, and creates the shared cube resources.
func (a *App) Init(p Platform) error {
	if err := a.engine.Init(p, a.cb); err != nil {
		return fmt.Errorf("multiwin: engine init: %w", err)
	}
	a.caps = a.engine.Caps()

	if a.caps.SwapChain {
		a.binds.Add(bindingsName, []Binding{
			{Key: KeyC, Fn: a.CreateWindow},
			{Key: KeyD, Fn: a.DestroyWindow},
		})
		a.windower.SetKeyCallback(a.binds.Dispatch)
	}

	a.engine.SetViewClear(0, ClearColor|ClearDepth, 0x303030ff, 1.0)

	a.vbh = a.engine.CreateVertexBuffer(cubeVertexData(), cubeLayout())
	a.ibh = a.engine.CreateIndexBuffer(cubeIndexData())
	a.program = a.engine.CreateProgram("cubes", cubeShaderSource)

	// Seed the primary slot dimensions so the first frame has a
	// sensible aspect ratio before any window event arrives.
	a.reg.Reconcile(WindowState{
		Handle: WindowFromIndex(0),
		Native: p.Native,
		Width:  p.Width,
		Height: p.Height,
	}, a.engine)

	a.start = time.Now()
	Logger().Info("app initialized", "renderer", a.caps.Renderer, "swapchain", a.caps.SwapChain)
	return nil
}

// FrameCount returns the number of ticks run so far.
func (a *App) FrameCount() uint32 { return a.frame }

// Registry exposes the window registry for diagnostics.
func (a *App) Registry() *Registry { return a.reg }

// Update runs one tick: event pump, reconciliation, debug overlay, view
// setup, screenshot scheduling, cube submission and the frame advance.
// It returns false when the windower reported exit.
func (a *App) Update() bool {
	a.frame++

	st := WindowState{Handle: InvalidWindow}
	if !a.windower.ProcessEvents(&st) {
		return false
	}
	a.reg.Reconcile(st, a.engine)

	e := a.engine
	t := float32(time.Since(a.start).Seconds())

	e.DebugTextClear()
	if !a.binds.Empty() {
		e.DebugTextPrintf(0, 1, 0x2f, "Press 'c' to create or 'd' to destroy window.")
	} else {
		attr := uint8(0x04)
		if uint32(t*3.0)&1 == 1 {
			attr = 0x4f
		}
		e.DebugTextPrintf(0, 0, attr, " Multiple windows is not supported by `%s` renderer. ", a.caps.Renderer)
	}

	primary := a.reg.Window(0)
	view := lookAtView()
	proj := projection(float32(primary.Width)/float32(primary.Height), a.caps.HomogeneousDepth)

	e.SetViewTransform(0, &view, &proj)
	e.SetViewRect(0, 0, 0, uint16(primary.Width), uint16(primary.Height))
	// Dummy submission so view 0 is cleared even if the round-robin
	// below sends it nothing.
	e.Touch(0)

	capture := a.frame%CaptureInterval == 0
	if capture {
		e.RequestScreenShot(InvalidFrameBuffer, a.capturePath(0))
	}

	if a.caps.SwapChain {
		for ii := ViewID(1); ii < MaxWindows; ii++ {
			e.SetViewTransform(ii, &view, &proj)
			fb := a.reg.FrameBuffer(int(ii))
			e.SetViewFrameBuffer(ii, fb)
			if !fb.IsValid() {
				e.SetViewRect(ii, 0, 0, uint16(primary.Width), uint16(primary.Height))
				e.SetViewClear(ii, ClearNone, 0, 0)
				continue
			}
			win := a.reg.Window(int(ii))
			e.SetViewRect(ii, 0, 0, uint16(win.Width), uint16(win.Height))
			e.SetViewClear(ii, ClearColor|ClearDepth, 0x303030ff, 1.0)
			if capture {
				e.RequestScreenShot(fb, a.capturePath(int(ii)))
			}
		}
	}

	count := 0
	for yy := 0; yy < gridDim; yy++ {
		for xx := 0; xx < gridDim; xx++ {
			target := ViewID(0)
			if a.caps.SwapChain {
				target = ViewID(count % MaxWindows)
			}
			e.Submit(target, Draw{
				Transform: cubeTransform(xx, yy, t),
				Vertices:  a.vbh,
				Indices:   a.ibh,
				Program:   a.program,
			})
			count++
		}
	}

	e.Frame()
	return true
}

// capturePath builds the screenshot file path for the current capture
// cycle and slot. The engine callback appends the image extension.
func (a *App) capturePath(slot int) string {
	return filepath.Join(a.captureDir, fmt.Sprintf("frame_%d_%d", a.frame/CaptureInterval, slot))
}

// CreateWindow opens a secondary window at a pseudo-random position with
// a fixed 640x480 client area. Failure is silent: no slot is consumed
// and the next attempt may succeed.
func (a *App) CreateWindow() {
	h, err := a.windower.CreateWindow(rand.IntN(1280), rand.IntN(720), 640, 480)
	if err != nil {
		Logger().Debug("window creation failed", "err", err)
		return
	}
	a.windower.SetWindowTitle(h, fmt.Sprintf("Window - handle %d", h.Index()))
	a.reg.Bind(h)
}

// DestroyWindow closes the first live secondary window. The window's
// framebuffer is destroyed first and two engine frames are forced
// before the native window goes away: destroying a window while its
// swap chain is still referenced by an in-flight frame is undefined
// behavior on every platform.
func (a *App) DestroyWindow() {
	slot := a.reg.FirstActive()
	if slot < 0 {
		return
	}
	if fb := a.reg.FrameBuffer(slot); fb.IsValid() {
		a.engine.DestroyFrameBuffer(fb)
		a.reg.DropFrameBuffer(slot)
		// Flush destruction of the swap chain before destroying the window.
		a.engine.Frame()
		a.engine.Frame()
	}
	a.windower.DestroyWindow(a.reg.Window(slot).Handle)
	a.reg.Release(slot)
}

// Shutdown tears everything down in dependency order: framebuffers,
// bindings, shared buffers and program, then the engine itself.
func (a *App) Shutdown() {
	for i := 0; i < MaxWindows; i++ {
		if fb := a.reg.FrameBuffer(i); fb.IsValid() {
			a.engine.DestroyFrameBuffer(fb)
			a.reg.DropFrameBuffer(i)
		}
	}
	a.binds.Remove(bindingsName)
	a.windower.SetKeyCallback(nil)

	a.engine.DestroyIndexBuffer(a.ibh)
	a.engine.DestroyVertexBuffer(a.vbh)
	a.engine.DestroyProgram(a.program)
	a.engine.Shutdown()
}
