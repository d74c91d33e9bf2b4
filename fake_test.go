package multiwin

import (
	"fmt"

	lin "github.com/xlab/linmath"
)

// eventLog records engine and windower calls in order, so tests can
// assert sequencing across the two collaborators.
type eventLog struct {
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) count(ev string) int {
	n := 0
	for _, e := range l.events {
		if e == ev {
			n++
		}
	}
	return n
}

func (l *eventLog) index(ev string) int {
	for i, e := range l.events {
		if e == ev {
			return i
		}
	}
	return -1
}

func (l *eventLog) reset() { l.events = nil }

// fakeEngine implements Engine against the event log. Handle indices
// count up from 1 per resource kind.
type fakeEngine struct {
	log  *eventLog
	caps Caps

	nextFB      uint16
	nextBuf     uint16
	failFB      bool
	screenshots []string
}

func newFakeEngine(log *eventLog) *fakeEngine {
	return &fakeEngine{
		log:  log,
		caps: Caps{Renderer: "fake", SwapChain: true},
	}
}

func (e *fakeEngine) Init(p Platform, cb Callbacks) error {
	e.log.add("init(%dx%d)", p.Width, p.Height)
	return nil
}

func (e *fakeEngine) Shutdown()  { e.log.add("shutdown") }
func (e *fakeEngine) Caps() Caps { return e.caps }

func (e *fakeEngine) CreateVertexBuffer(data []byte, layout VertexLayout) VertexBufferHandle {
	e.nextBuf++
	e.log.add("createVB(%d)", len(data))
	return VertexBufferFromIndex(e.nextBuf)
}

func (e *fakeEngine) DestroyVertexBuffer(h VertexBufferHandle) {
	e.log.add("destroyVB(%d)", h.Index())
}

func (e *fakeEngine) CreateIndexBuffer(data []byte) IndexBufferHandle {
	e.nextBuf++
	e.log.add("createIB(%d)", len(data))
	return IndexBufferFromIndex(e.nextBuf)
}

func (e *fakeEngine) DestroyIndexBuffer(h IndexBufferHandle) {
	e.log.add("destroyIB(%d)", h.Index())
}

func (e *fakeEngine) CreateProgram(name, wgsl string) ProgramHandle {
	e.log.add("createProgram(%s)", name)
	return ProgramFromIndex(1)
}

func (e *fakeEngine) DestroyProgram(h ProgramHandle) {
	e.log.add("destroyProgram(%d)", h.Index())
}

func (e *fakeEngine) CreateFrameBuffer(native any, width, height uint16) FrameBufferHandle {
	if e.failFB {
		e.log.add("createFB(fail)")
		return InvalidFrameBuffer
	}
	e.nextFB++
	e.log.add("createFB(%d,%dx%d)", e.nextFB, width, height)
	return FrameBufferFromIndex(e.nextFB)
}

func (e *fakeEngine) DestroyFrameBuffer(h FrameBufferHandle) {
	e.log.add("destroyFB(%d)", h.Index())
}

func (e *fakeEngine) SetViewClear(view ViewID, flags ClearFlags, rgba uint32, depth float32) {}
func (e *fakeEngine) SetViewRect(view ViewID, x, y, width, height uint16)                    {}
func (e *fakeEngine) SetViewTransform(view ViewID, viewMtx, projMtx *lin.Mat4x4)             {}

func (e *fakeEngine) SetViewFrameBuffer(view ViewID, fb FrameBufferHandle) {
	e.log.add("setViewFB(%d,%s)", view, fb)
}

func (e *fakeEngine) Touch(view ViewID) { e.log.add("touch(%d)", view) }

func (e *fakeEngine) Submit(view ViewID, draw Draw) { e.log.add("submit(%d)", view) }

func (e *fakeEngine) DebugTextClear()                                             {}
func (e *fakeEngine) DebugTextPrintf(x, y uint16, attr uint8, f string, a ...any) {}

func (e *fakeEngine) RequestScreenShot(fb FrameBufferHandle, path string) {
	e.log.add("screenshot(%s)", fb)
	e.screenshots = append(e.screenshots, path)
}

func (e *fakeEngine) Frame() uint32 {
	e.log.add("frame")
	return uint32(e.log.count("frame"))
}

// fakeWindower implements Windower against the event log. States queued
// with queue are drained one per ProcessEvents call.
type fakeWindower struct {
	log     *eventLog
	keyCb   func(Key)
	used    [MaxWindows]bool
	pending []WindowState
	exit    bool
	failAll bool
}

func newFakeWindower(log *eventLog) *fakeWindower {
	w := &fakeWindower{log: log}
	w.used[0] = true
	return w
}

func (w *fakeWindower) CreateWindow(x, y, width, height int) (WindowHandle, error) {
	if w.failAll {
		return InvalidWindow, fmt.Errorf("window refused")
	}
	for i := 1; i < MaxWindows; i++ {
		if !w.used[i] {
			w.used[i] = true
			w.log.add("createWindow(%d,%dx%d)", i, width, height)
			return WindowFromIndex(uint16(i)), nil
		}
	}
	return InvalidWindow, fmt.Errorf("window table full")
}

func (w *fakeWindower) DestroyWindow(h WindowHandle) {
	w.used[h.Index()] = false
	w.log.add("destroyWindow(%d)", h.Index())
}

func (w *fakeWindower) SetWindowTitle(h WindowHandle, title string) {
	w.log.add("title(%d,%s)", h.Index(), title)
}

func (w *fakeWindower) SetKeyCallback(fn func(Key)) { w.keyCb = fn }

func (w *fakeWindower) queue(st WindowState) { w.pending = append(w.pending, st) }

func (w *fakeWindower) press(k Key) {
	if w.keyCb != nil {
		w.keyCb(k)
	}
}

func (w *fakeWindower) ProcessEvents(st *WindowState) bool {
	if w.exit {
		return false
	}
	if len(w.pending) > 0 {
		*st = w.pending[0]
		w.pending = w.pending[1:]
	}
	return true
}

// discardCallbacks satisfies Callbacks without touching the filesystem.
type discardCallbacks struct {
	cache map[uint64][]byte
	shots []string
}

func newDiscardCallbacks() *discardCallbacks {
	return &discardCallbacks{cache: map[uint64][]byte{}}
}

func (c *discardCallbacks) Fatal(code FatalCode, msg string) {
	panic(fmt.Sprintf("fatal %d: %s", code, msg))
}

func (c *discardCallbacks) Trace(msg string, args ...any) {}

func (c *discardCallbacks) CacheRead(id uint64) ([]byte, bool) {
	b, ok := c.cache[id]
	return b, ok
}

func (c *discardCallbacks) CacheWrite(id uint64, data []byte) { c.cache[id] = data }

func (c *discardCallbacks) ScreenShot(path string, width, height, pitch uint32, data []byte, yflip bool) {
	c.shots = append(c.shots, path)
}
