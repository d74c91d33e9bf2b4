package multiwin

// WindowState is the last reported state of one window slot: its handle,
// the opaque native window object, and the client area in pixels. Native
// becomes nil once the platform window is gone; the registry treats that
// as the signal to invalidate the slot.
type WindowState struct {
	Handle WindowHandle
	Native any
	Width  uint32
	Height uint32
}

// Key identifies a keyboard key in bindings. Only the keys the demo
// binds are named; drivers map their own key codes onto these.
type Key uint8

const (
	// KeyNone is the zero Key.
	KeyNone Key = iota

	// KeyC creates a window.
	KeyC

	// KeyD destroys a window.
	KeyD

	// KeyEsc requests exit.
	KeyEsc
)

// Windower abstracts the windowing and input collaborator. Slot 0 is the
// primary window and always exists; slots 1 through MaxWindows-1 are
// created and destroyed on demand. Window creation is synchronous and
// best-effort: it either succeeds immediately or leaves state unchanged.
//
// All methods must be called from the main thread; platform windowing
// APIs require it.
type Windower interface {
	// CreateWindow opens a window at (x, y) with the given client size
	// and returns its slot handle. It fails when the window table is
	// exhausted or the platform refuses the window.
	CreateWindow(x, y, width, height int) (WindowHandle, error)

	// DestroyWindow closes the given window. Destroying the primary
	// window is not allowed.
	DestroyWindow(WindowHandle)

	// SetWindowTitle sets the window's display title.
	SetWindowTitle(h WindowHandle, title string)

	// SetKeyCallback installs the key-press handler. Passing nil
	// removes it.
	SetKeyCallback(fn func(Key))

	// ProcessEvents pumps pending platform events. When a window's
	// native handle or size changed since the last call, the most
	// recent such state is written to st. It returns false when the
	// application should exit.
	ProcessEvents(st *WindowState) bool
}
