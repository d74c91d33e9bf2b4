package multiwin

import "testing"

func TestRegistryInitialState(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxWindows; i++ {
		if st := r.State(i); st != SlotEmpty {
			t.Errorf("slot %d: expected Empty, got %s", i, st)
		}
	}
	if n := r.ActiveCount(); n != 0 {
		t.Errorf("expected 0 active, got %d", n)
	}
	if s := r.FirstActive(); s != -1 {
		t.Errorf("expected no active slot, got %d", s)
	}
}

func TestRegistryReconcileCreatesFrameBuffer(t *testing.T) {
	log := &eventLog{}
	e := newFakeEngine(log)
	r := NewRegistry()

	native := new(int)
	r.Bind(WindowFromIndex(3))
	if st := r.State(3); st != SlotPendingResize {
		t.Fatalf("expected PendingResize before first report, got %s", st)
	}

	r.Reconcile(WindowState{Handle: WindowFromIndex(3), Native: native, Width: 640, Height: 480}, e)

	if st := r.State(3); st != SlotActive {
		t.Errorf("expected Active, got %s", st)
	}
	if !r.FrameBuffer(3).IsValid() {
		t.Error("expected a framebuffer bound to slot 3")
	}
	if got := log.count("createFB(1,640x480)"); got != 1 {
		t.Errorf("expected one framebuffer creation, got events %v", log.events)
	}
}

func TestRegistryReconcileIdempotent(t *testing.T) {
	log := &eventLog{}
	e := newFakeEngine(log)
	r := NewRegistry()

	native := new(int)
	st := WindowState{Handle: WindowFromIndex(1), Native: native, Width: 640, Height: 480}
	r.Bind(st.Handle)
	r.Reconcile(st, e)
	before := len(log.events)

	// Same state again: nothing may be created or destroyed.
	r.Reconcile(st, e)
	r.Reconcile(st, e)

	if len(log.events) != before {
		t.Errorf("expected no engine calls on unchanged state, got %v", log.events[before:])
	}
	if got := r.State(1); got != SlotActive {
		t.Errorf("expected Active, got %s", got)
	}
}

func TestRegistryReconcileResize(t *testing.T) {
	log := &eventLog{}
	e := newFakeEngine(log)
	r := NewRegistry()

	native := new(int)
	r.Bind(WindowFromIndex(2))
	r.Reconcile(WindowState{Handle: WindowFromIndex(2), Native: native, Width: 640, Height: 480}, e)
	old := r.FrameBuffer(2)

	r.Reconcile(WindowState{Handle: WindowFromIndex(2), Native: native, Width: 800, Height: 600}, e)

	if r.FrameBuffer(2) == old {
		t.Error("expected a new framebuffer after resize")
	}
	if got := log.count("destroyFB(1)"); got != 1 {
		t.Errorf("expected old framebuffer destroyed once, got events %v", log.events)
	}
	if got := log.count("createFB(2,800x600)"); got != 1 {
		t.Errorf("expected recreation at new size, got events %v", log.events)
	}
	if w := r.Window(2); w.Width != 800 || w.Height != 600 {
		t.Errorf("expected stored size 800x600, got %dx%d", w.Width, w.Height)
	}
}

func TestRegistryReconcileNativeLost(t *testing.T) {
	log := &eventLog{}
	e := newFakeEngine(log)
	r := NewRegistry()

	native := new(int)
	r.Bind(WindowFromIndex(1))
	r.Reconcile(WindowState{Handle: WindowFromIndex(1), Native: native, Width: 640, Height: 480}, e)

	// The platform window went away: framebuffer destroyed, slot emptied.
	r.Reconcile(WindowState{Handle: WindowFromIndex(1), Native: nil, Width: 0, Height: 0}, e)

	if got := log.count("destroyFB(1)"); got != 1 {
		t.Errorf("expected framebuffer destroyed, got events %v", log.events)
	}
	if st := r.State(1); st != SlotEmpty {
		t.Errorf("expected Empty after native handle lost, got %s", st)
	}
}

func TestRegistryReconcileFailedCreation(t *testing.T) {
	log := &eventLog{}
	e := newFakeEngine(log)
	e.failFB = true
	r := NewRegistry()

	native := new(int)
	r.Bind(WindowFromIndex(1))
	st := WindowState{Handle: WindowFromIndex(1), Native: native, Width: 640, Height: 480}
	r.Reconcile(st, e)

	if got := r.State(1); got != SlotPendingResize {
		t.Errorf("expected PendingResize after failed creation, got %s", got)
	}

	// A later report with a changed size retries the creation.
	e.failFB = false
	st.Width = 512
	r.Reconcile(st, e)
	if got := r.State(1); got != SlotActive {
		t.Errorf("expected Active after retry, got %s", got)
	}
}

func TestRegistryPrimaryTracksSizeOnly(t *testing.T) {
	log := &eventLog{}
	e := newFakeEngine(log)
	r := NewRegistry()

	native := new(int)
	r.Reconcile(WindowState{Handle: WindowFromIndex(0), Native: native, Width: 1280, Height: 720}, e)

	if len(log.events) != 0 {
		t.Errorf("expected no engine calls for the primary slot, got %v", log.events)
	}
	if w := r.Window(0); w.Width != 1280 || w.Height != 720 {
		t.Errorf("expected primary size tracked, got %dx%d", w.Width, w.Height)
	}
	if r.FrameBuffer(0).IsValid() {
		t.Error("primary slot never owns a framebuffer")
	}
}

func TestRegistryReconcileIgnoresInvalidHandle(t *testing.T) {
	log := &eventLog{}
	e := newFakeEngine(log)
	r := NewRegistry()

	r.Reconcile(WindowState{Handle: InvalidWindow}, e)
	if len(log.events) != 0 {
		t.Errorf("expected no engine calls, got %v", log.events)
	}
}

func TestRegistryFirstActiveAndRelease(t *testing.T) {
	r := NewRegistry()
	r.Bind(WindowFromIndex(3))
	r.Bind(WindowFromIndex(5))

	if got := r.FirstActive(); got != 3 {
		t.Errorf("expected first active 3, got %d", got)
	}
	r.Release(3)
	if got := r.FirstActive(); got != 5 {
		t.Errorf("expected first active 5, got %d", got)
	}
	if got := r.ActiveCount(); got != 1 {
		t.Errorf("expected 1 active, got %d", got)
	}
}

func TestSlotStateString(t *testing.T) {
	tests := []struct {
		s    SlotState
		want string
	}{
		{SlotEmpty, "Empty"},
		{SlotActive, "Active"},
		{SlotPendingResize, "PendingResize"},
		{SlotState(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
