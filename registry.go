package multiwin

// MaxWindows is the fixed window and framebuffer table capacity. Slot 0
// is reserved for the primary window; slots 1 through MaxWindows-1 are
// populated by CreateWindow and cleared by DestroyWindow.
const MaxWindows = 8

// SlotState is the derived lifecycle state of one window slot.
type SlotState int

const (
	// SlotEmpty means no window occupies the slot.
	SlotEmpty SlotState = iota

	// SlotActive means the slot has a window and a framebuffer sized to
	// its current dimensions.
	SlotActive

	// SlotPendingResize means the slot has a window whose framebuffer
	// was destroyed (size or native handle changed) and not yet
	// recreated by reconciliation.
	SlotPendingResize
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "Empty"
	case SlotActive:
		return "Active"
	case SlotPendingResize:
		return "PendingResize"
	default:
		return "Unknown"
	}
}

// Registry is the fixed-capacity table pairing each window slot with its
// framebuffer. It is owned exclusively by the App; every mutation happens
// on the single goroutine driving the frame loop, so no locking is used.
type Registry struct {
	windows [MaxWindows]WindowState
	fb      [MaxWindows]FrameBufferHandle
}

// NewRegistry returns a registry with every slot empty.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.windows {
		r.windows[i].Handle = InvalidWindow
		r.fb[i] = InvalidFrameBuffer
	}
	return r
}

// Window returns the stored state for a slot.
func (r *Registry) Window(slot int) WindowState { return r.windows[slot] }

// FrameBuffer returns the framebuffer bound to a slot.
func (r *Registry) FrameBuffer(slot int) FrameBufferHandle { return r.fb[slot] }

// State derives the lifecycle state of a slot.
func (r *Registry) State(slot int) SlotState {
	switch {
	case !r.windows[slot].Handle.IsValid():
		return SlotEmpty
	case r.fb[slot].IsValid():
		return SlotActive
	default:
		return SlotPendingResize
	}
}

// ActiveCount reports how many slots currently hold a window.
func (r *Registry) ActiveCount() int {
	n := 0
	for i := range r.windows {
		if r.windows[i].Handle.IsValid() {
			n++
		}
	}
	return n
}

// Bind records a freshly created window in its slot.
func (r *Registry) Bind(h WindowHandle) {
	if !h.IsValid() || int(h.Index()) >= MaxWindows {
		return
	}
	r.windows[h.Index()].Handle = h
}

// FirstActive returns the lowest slot holding a window, or -1.
func (r *Registry) FirstActive() int {
	for i := 1; i < MaxWindows; i++ {
		if r.windows[i].Handle.IsValid() {
			return i
		}
	}
	return -1
}

// Release empties a slot after its window has been destroyed.
func (r *Registry) Release(slot int) {
	r.windows[slot] = WindowState{Handle: InvalidWindow}
	r.fb[slot] = InvalidFrameBuffer
}

// DropFrameBuffer invalidates a slot's framebuffer after the engine
// destroyed it.
func (r *Registry) DropFrameBuffer(slot int) {
	r.fb[slot] = InvalidFrameBuffer
}

// Reconcile folds the latest reported window state into the table. For
// the primary slot only the dimensions are tracked. For secondary slots,
// a changed native handle or size destroys the existing framebuffer and,
// when the window is still live, recreates it at the new size before the
// next submission referencing it. A window whose native handle went nil
// is marked invalid instead.
//
// Running Reconcile twice with no intervening change is a no-op: the
// stored state already matches the reported one, so no framebuffer is
// created or destroyed.
func (r *Registry) Reconcile(st WindowState, e Engine) {
	if !st.Handle.IsValid() {
		return
	}
	slot := int(st.Handle.Index())
	if slot >= MaxWindows {
		return
	}
	if slot == 0 {
		r.windows[0].Width = st.Width
		r.windows[0].Height = st.Height
		return
	}

	win := &r.windows[slot]
	if win.Native == st.Native && win.Width == st.Width && win.Height == st.Height {
		return
	}

	// Size or native window handle changed: the framebuffer must be
	// recreated before anything is submitted against it.
	if r.fb[slot].IsValid() {
		e.DestroyFrameBuffer(r.fb[slot])
		r.fb[slot] = InvalidFrameBuffer
	}

	win.Native = st.Native
	win.Width = st.Width
	win.Height = st.Height

	if st.Native != nil {
		r.fb[slot] = e.CreateFrameBuffer(st.Native, uint16(st.Width), uint16(st.Height))
	} else {
		win.Handle = InvalidWindow
	}
}
