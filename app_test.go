package multiwin

import (
	"fmt"
	"strings"
	"testing"
)

func newTestApp(t *testing.T, caps Caps) (*App, *fakeEngine, *fakeWindower, *eventLog) {
	t.Helper()
	log := &eventLog{}
	e := newFakeEngine(log)
	e.caps = caps
	w := newFakeWindower(log)
	app, err := NewApp(
		WithEngine(e),
		WithWindower(w),
		WithCallbacks(newDiscardCallbacks()),
		WithCaptureDir("temp"),
	)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := app.Init(Platform{Native: new(int), Width: 1280, Height: 720}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return app, e, w, log
}

func TestNewAppRequiresCollaborators(t *testing.T) {
	if _, err := NewApp(WithWindower(newFakeWindower(&eventLog{}))); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := NewApp(WithEngine(newFakeEngine(&eventLog{}))); err == nil {
		t.Error("expected error without windower")
	}
}

func TestAppCreateWindowActivatesSlot(t *testing.T) {
	app, _, w, log := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	w.press(KeyC)
	if got := app.Registry().State(1); got != SlotPendingResize {
		t.Fatalf("expected PendingResize right after creation, got %s", got)
	}
	if got := log.count("createWindow(1,640x480)"); got != 1 {
		t.Fatalf("expected one 640x480 window, got events %v", log.events)
	}
	if got := log.count("title(1,Window - handle 1)"); got != 1 {
		t.Errorf("expected slot index in title, got events %v", log.events)
	}

	// The windower reports the native handle; the next tick binds a
	// framebuffer.
	w.queue(WindowState{Handle: WindowFromIndex(1), Native: new(int), Width: 640, Height: 480})
	if !app.Update() {
		t.Fatal("Update returned false")
	}
	if got := app.Registry().State(1); got != SlotActive {
		t.Errorf("expected Active after reconciliation, got %s", got)
	}
}

func TestAppCreateWindowTableFull(t *testing.T) {
	app, _, w, _ := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	for i := 0; i < 10; i++ {
		w.press(KeyC)
	}
	// Seven secondary slots at most; the extra presses are ignored.
	if got := app.Registry().ActiveCount(); got != MaxWindows-1 {
		t.Errorf("expected %d active secondary slots, got %d", MaxWindows-1, got)
	}
}

func TestAppCreateWindowFailureLeavesStateUnchanged(t *testing.T) {
	app, _, w, log := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	w.failAll = true
	w.press(KeyC)
	if got := app.Registry().ActiveCount(); got != 0 {
		t.Errorf("expected no slot consumed on failure, got %d", got)
	}
	if got := log.count("createWindow(1,640x480)"); got != 0 {
		t.Errorf("expected no window event, got %v", log.events)
	}
}

func TestAppDestroyWindowOrdering(t *testing.T) {
	app, _, w, log := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	w.press(KeyC)
	w.queue(WindowState{Handle: WindowFromIndex(1), Native: new(int), Width: 640, Height: 480})
	app.Update()

	log.reset()
	w.press(KeyD)

	// The framebuffer goes first, then exactly two frames, then the
	// native window.
	iDestroyFB := log.index("destroyFB(1)")
	iDestroyWin := log.index("destroyWindow(1)")
	if iDestroyFB < 0 || iDestroyWin < 0 {
		t.Fatalf("missing destroy events: %v", log.events)
	}
	if iDestroyFB > iDestroyWin {
		t.Errorf("framebuffer must be destroyed before the window: %v", log.events)
	}
	frames := 0
	for _, e := range log.events[iDestroyFB:iDestroyWin] {
		if e == "frame" {
			frames++
		}
	}
	if frames != 2 {
		t.Errorf("expected exactly two frames between destroys, got %d: %v", frames, log.events)
	}
	if got := app.Registry().State(1); got != SlotEmpty {
		t.Errorf("expected Empty after destroy, got %s", got)
	}
}

func TestAppDestroyWindowWithoutFrameBuffer(t *testing.T) {
	app, _, w, log := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	// Window created but never reconciled: no framebuffer exists yet.
	w.press(KeyC)
	log.reset()
	w.press(KeyD)

	if got := log.count("frame"); got != 0 {
		t.Errorf("expected no flush frames without a framebuffer, got %v", log.events)
	}
	if got := log.count("destroyWindow(1)"); got != 1 {
		t.Errorf("expected window destroyed, got %v", log.events)
	}
	if got := app.Registry().State(1); got != SlotEmpty {
		t.Errorf("expected Empty, got %s", got)
	}
}

func TestAppDestroyWindowNoneActive(t *testing.T) {
	_, _, w, log := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	log.reset()
	w.press(KeyD)
	if len(log.events) != 0 {
		t.Errorf("expected no events with no active window, got %v", log.events)
	}
}

func TestAppScreenshotCadence(t *testing.T) {
	app, e, w, _ := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	w.press(KeyC)
	w.queue(WindowState{Handle: WindowFromIndex(1), Native: new(int), Width: 640, Height: 480})

	for i := 0; i < 2*CaptureInterval; i++ {
		if !app.Update() {
			t.Fatal("Update returned false")
		}
	}

	want := []string{
		"frame_1_0", "frame_1_1",
		"frame_2_0", "frame_2_1",
	}
	if len(e.screenshots) != len(want) {
		t.Fatalf("expected %d screenshots, got %v", len(want), e.screenshots)
	}
	for i, p := range e.screenshots {
		if !strings.HasSuffix(p, want[i]) {
			t.Errorf("screenshot %d: expected suffix %q, got %q", i, want[i], p)
		}
	}
}

func TestAppScreenshotSkipsEmptySlots(t *testing.T) {
	app, e, _, _ := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	for i := 0; i < CaptureInterval; i++ {
		app.Update()
	}
	// Only the primary backbuffer was captured.
	if len(e.screenshots) != 1 {
		t.Fatalf("expected one screenshot, got %v", e.screenshots)
	}
	if !strings.HasSuffix(e.screenshots[0], "frame_1_0") {
		t.Errorf("expected primary capture path, got %q", e.screenshots[0])
	}
}

func TestAppSubmitRoundRobin(t *testing.T) {
	app, _, _, log := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	log.reset()
	app.Update()

	total := 0
	for v := 0; v < MaxWindows; v++ {
		total += log.count(fmt.Sprintf("submit(%d)", v))
	}
	if total != gridDim*gridDim {
		t.Fatalf("expected %d submissions, got %d", gridDim*gridDim, total)
	}
	// 121 draws over 8 views: view 0 gets 16, the rest 15.
	if got := log.count("submit(0)"); got != 16 {
		t.Errorf("expected 16 draws on view 0, got %d", got)
	}
	for v := 1; v < MaxWindows; v++ {
		if got := log.count(fmt.Sprintf("submit(%d)", v)); got != 15 {
			t.Errorf("expected 15 draws on view %d, got %d", v, got)
		}
	}
	if got := log.count("touch(0)"); got != 1 {
		t.Errorf("expected view 0 touched once, got %d", got)
	}
}

func TestAppNoSwapChainSingleView(t *testing.T) {
	app, _, w, log := newTestApp(t, Caps{Renderer: "fake", SwapChain: false})

	// No window bindings are installed without swap-chain support.
	if w.keyCb != nil {
		t.Error("expected no key callback without swap-chain support")
	}

	log.reset()
	app.Update()

	if got := log.count("submit(0)"); got != gridDim*gridDim {
		t.Errorf("expected all %d draws on view 0, got %d", gridDim*gridDim, got)
	}
	for v := 1; v < MaxWindows; v++ {
		if got := log.count(fmt.Sprintf("submit(%d)", v)); got != 0 {
			t.Errorf("expected no draws on view %d, got %d", v, got)
		}
	}
	for _, ev := range log.events {
		if strings.HasPrefix(ev, "setViewFB(") {
			t.Errorf("expected no framebuffer bindings, got %v", log.events)
			break
		}
	}
}

func TestAppUpdateExit(t *testing.T) {
	app, _, w, _ := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	w.exit = true
	if app.Update() {
		t.Error("expected Update to report exit")
	}
}

func TestAppFrameCount(t *testing.T) {
	app, _, _, _ := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	for i := 0; i < 5; i++ {
		app.Update()
	}
	if got := app.FrameCount(); got != 5 {
		t.Errorf("expected frame count 5, got %d", got)
	}
}

func TestAppShutdown(t *testing.T) {
	app, _, w, log := newTestApp(t, Caps{Renderer: "fake", SwapChain: true})

	w.press(KeyC)
	w.queue(WindowState{Handle: WindowFromIndex(1), Native: new(int), Width: 640, Height: 480})
	app.Update()

	log.reset()
	app.Shutdown()

	for _, want := range []string{"destroyFB(1)", "destroyIB(2)", "destroyVB(1)", "destroyProgram(1)", "shutdown"} {
		if got := log.count(want); got != 1 {
			t.Errorf("expected %s once during shutdown, got events %v", want, log.events)
		}
	}
	if w.keyCb != nil {
		t.Error("expected key callback removed on shutdown")
	}
	if idx := log.index("shutdown"); idx != len(log.events)-1 {
		t.Errorf("expected engine shutdown last, got %v", log.events)
	}
}
