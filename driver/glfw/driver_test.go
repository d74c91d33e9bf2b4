// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glfw

import (
	"testing"

	goglfw "github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gogpu/multiwin"
)

func TestMapKey(t *testing.T) {
	cases := []struct {
		in   goglfw.Key
		want multiwin.Key
	}{
		{goglfw.KeyC, multiwin.KeyC},
		{goglfw.KeyD, multiwin.KeyD},
		{goglfw.KeyEscape, multiwin.KeyEsc},
		{goglfw.KeyA, multiwin.KeyNone},
		{goglfw.KeySpace, multiwin.KeyNone},
	}
	for _, c := range cases {
		if got := mapKey(c.in); got != c.want {
			t.Errorf("mapKey(%v): expected %v, got %v", c.in, c.want, got)
		}
	}
}

func TestPushReplacesSameSlot(t *testing.T) {
	d := &Driver{}
	h := multiwin.WindowFromIndex(2)

	d.push(multiwin.WindowState{Handle: h, Width: 100, Height: 100})
	d.push(multiwin.WindowState{Handle: multiwin.WindowFromIndex(3), Width: 50, Height: 50})
	d.push(multiwin.WindowState{Handle: h, Width: 200, Height: 150})

	if len(d.pending) != 2 {
		t.Fatalf("expected 2 pending states, got %d", len(d.pending))
	}
	if d.pending[0].Width != 200 || d.pending[0].Height != 150 {
		t.Errorf("expected newest state for slot 2, got %dx%d",
			d.pending[0].Width, d.pending[0].Height)
	}
}

// A window-manager close must not destroy the native window before the
// caller tore down its framebuffer: the window is only destroyable one
// pass after its nil-Native state was delivered.
func TestClosingWindowDeferredUntilDelivered(t *testing.T) {
	d := &Driver{}
	d.markClosing(3)

	if len(d.pending) != 1 || d.pending[0].Native != nil {
		t.Fatalf("expected one queued nil-Native state, got %+v", d.pending)
	}
	if got := d.takeClosable(); len(got) != 0 {
		t.Fatalf("expected no closable windows before delivery, got %d", len(got))
	}

	h := multiwin.WindowFromIndex(3)
	d.noteDelivered(h)
	if got := d.takeClosable(); len(got) != 1 {
		t.Fatalf("expected 1 closable window after delivery, got %d", len(got))
	}
	if d.handleClosing(h) {
		t.Error("expected slot 3 released after destruction")
	}
}

func TestPushKeepsClosingState(t *testing.T) {
	d := &Driver{}
	d.markClosing(2)

	// A stale size callback for the dying window must not revive it.
	native := new(int)
	d.push(multiwin.WindowState{Handle: multiwin.WindowFromIndex(2), Native: native, Width: 640, Height: 480})

	if len(d.pending) != 1 {
		t.Fatalf("expected 1 pending state, got %d", len(d.pending))
	}
	if d.pending[0].Native != nil {
		t.Error("expected the nil-Native closing state to survive")
	}
}

// CreateWindow skips slots still holding a closing window, so a handle
// is never reused while its old native window awaits destruction.
func TestHandleClosingBlocksSlotReuse(t *testing.T) {
	d := &Driver{}
	d.markClosing(1)
	if !d.handleClosing(multiwin.WindowFromIndex(1)) {
		t.Fatal("expected slot 1 marked closing")
	}
	if d.handleClosing(multiwin.WindowFromIndex(2)) {
		t.Error("expected slot 2 free")
	}
}

func TestDestroyWindowGuards(t *testing.T) {
	d := &Driver{}
	// None of these may touch GLFW: invalid handle, the primary slot,
	// and an empty slot.
	d.DestroyWindow(multiwin.InvalidWindow)
	d.DestroyWindow(multiwin.WindowFromIndex(0))
	d.DestroyWindow(multiwin.WindowFromIndex(5))
}

func TestSetWindowTitleGuards(t *testing.T) {
	d := &Driver{}
	d.SetWindowTitle(multiwin.InvalidWindow, "x")
	d.SetWindowTitle(multiwin.WindowFromIndex(4), "x")
}
