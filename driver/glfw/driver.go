// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package glfw implements the multiwin windower on GLFW. The caller
// must lock the main goroutine to its OS thread before Init; GLFW and
// the swap-chain backends both require it.
package glfw

import (
	"fmt"

	goglfw "github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/gogpu/multiwin"
)

// Driver owns the GLFW window table. Slot 0 is the primary window,
// created at Init and destroyed at Terminate.
type Driver struct {
	windows [multiwin.MaxWindows]*goglfw.Window

	// pending queues window state changes observed by callbacks, one
	// drained per ProcessEvents call.
	pending []multiwin.WindowState

	// closing holds secondary windows whose close button was pressed.
	// The native window must outlive its framebuffer, so destruction
	// waits until the caller has seen the nil-Native state and run a
	// frame; the next ProcessEvents pass then destroys the window.
	closing []closingWindow

	keyCb func(multiwin.Key)
}

type closingWindow struct {
	handle    multiwin.WindowHandle
	win       *goglfw.Window
	delivered bool
}

// Init starts GLFW, prepares the Vulkan loader when the platform
// supports it, and opens the primary window.
func (d *Driver) Init(width, height int, title string) error {
	if err := goglfw.Init(); err != nil {
		return fmt.Errorf("glfw: init: %w", err)
	}

	if goglfw.VulkanSupported() {
		vk.SetGetInstanceProcAddr(goglfw.GetVulkanGetInstanceProcAddress())
		if err := vk.Init(); err != nil {
			return fmt.Errorf("glfw: vulkan loader: %w", err)
		}
	}

	win, err := d.open(0, width, height, title)
	if err != nil {
		goglfw.Terminate()
		return err
	}
	d.windows[0] = win
	return nil
}

// Terminate destroys every window and shuts GLFW down.
func (d *Driver) Terminate() {
	for _, c := range d.closing {
		if c.win != nil {
			c.win.Destroy()
		}
	}
	d.closing = nil
	for i, win := range d.windows {
		if win != nil {
			win.Destroy()
			d.windows[i] = nil
		}
	}
	goglfw.Terminate()
}

// Primary returns the primary native window for Platform.Native.
func (d *Driver) Primary() *goglfw.Window {
	return d.windows[0]
}

// RequiredExtensions reports the instance extensions the platform's
// surface support needs.
func (d *Driver) RequiredExtensions() []string {
	return d.windows[0].GetRequiredInstanceExtensions()
}

// open creates one window without an OpenGL context and wires its
// callbacks to the pending queue.
func (d *Driver) open(slot, width, height int, title string) (*goglfw.Window, error) {
	goglfw.WindowHint(goglfw.ClientAPI, goglfw.NoAPI)
	win, err := goglfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("glfw: create window: %w", err)
	}

	handle := multiwin.WindowFromIndex(uint16(slot))
	win.SetFramebufferSizeCallback(func(w *goglfw.Window, fbw, fbh int) {
		d.push(multiwin.WindowState{
			Handle: handle,
			Native: w,
			Width:  uint32(fbw),
			Height: uint32(fbh),
		})
	})
	win.SetKeyCallback(func(w *goglfw.Window, key goglfw.Key, scancode int, action goglfw.Action, mods goglfw.ModifierKey) {
		if action != goglfw.Press {
			return
		}
		k := mapKey(key)
		if k == multiwin.KeyNone {
			return
		}
		if k == multiwin.KeyEsc {
			d.windows[0].SetShouldClose(true)
		}
		if d.keyCb != nil {
			d.keyCb(k)
		}
	})
	return win, nil
}

func mapKey(key goglfw.Key) multiwin.Key {
	switch key {
	case goglfw.KeyC:
		return multiwin.KeyC
	case goglfw.KeyD:
		return multiwin.KeyD
	case goglfw.KeyEscape:
		return multiwin.KeyEsc
	}
	return multiwin.KeyNone
}

// push records a state change, replacing any older pending entry for
// the same slot so ProcessEvents always delivers the freshest state.
// Live states for a closing window are dropped; its nil-Native state
// must survive until delivered.
func (d *Driver) push(st multiwin.WindowState) {
	if st.Native != nil && d.handleClosing(st.Handle) {
		return
	}
	for i := range d.pending {
		if d.pending[i].Handle == st.Handle {
			d.pending[i] = st
			return
		}
	}
	d.pending = append(d.pending, st)
}

// markClosing queues a window for deferred destruction and drops its
// table slot.
func (d *Driver) markClosing(slot int) {
	handle := multiwin.WindowFromIndex(uint16(slot))
	d.push(multiwin.WindowState{Handle: handle})
	d.closing = append(d.closing, closingWindow{handle: handle, win: d.windows[slot]})
	d.windows[slot] = nil
}

// noteDelivered marks a closing window whose nil-Native state just
// reached the caller. The window becomes destroyable one pass later.
func (d *Driver) noteDelivered(h multiwin.WindowHandle) {
	for i := range d.closing {
		if d.closing[i].handle == h {
			d.closing[i].delivered = true
			return
		}
	}
}

// takeClosable removes and returns the windows whose closing state was
// delivered on an earlier pass.
func (d *Driver) takeClosable() []*goglfw.Window {
	var out []*goglfw.Window
	kept := d.closing[:0]
	for _, c := range d.closing {
		if c.delivered {
			out = append(out, c.win)
		} else {
			kept = append(kept, c)
		}
	}
	d.closing = kept
	return out
}

// handleClosing reports whether a slot still has a window awaiting
// deferred destruction, which blocks reuse.
func (d *Driver) handleClosing(h multiwin.WindowHandle) bool {
	for _, c := range d.closing {
		if c.handle == h {
			return true
		}
	}
	return false
}

// CreateWindow opens a secondary window at the given position.
func (d *Driver) CreateWindow(x, y, width, height int) (multiwin.WindowHandle, error) {
	slot := -1
	for i := 1; i < multiwin.MaxWindows; i++ {
		if d.windows[i] == nil && !d.handleClosing(multiwin.WindowFromIndex(uint16(i))) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return multiwin.InvalidWindow, fmt.Errorf("glfw: window table full")
	}

	win, err := d.open(slot, width, height, "")
	if err != nil {
		return multiwin.InvalidWindow, err
	}
	win.SetPos(x, y)
	d.windows[slot] = win

	fbw, fbh := win.GetFramebufferSize()
	handle := multiwin.WindowFromIndex(uint16(slot))
	d.push(multiwin.WindowState{
		Handle: handle,
		Native: win,
		Width:  uint32(fbw),
		Height: uint32(fbh),
	})
	return handle, nil
}

// DestroyWindow closes a secondary window. The primary is left alone;
// exiting the application closes it.
func (d *Driver) DestroyWindow(h multiwin.WindowHandle) {
	if !h.IsValid() || h.Index() == 0 || int(h.Index()) >= multiwin.MaxWindows {
		return
	}
	win := d.windows[h.Index()]
	if win == nil {
		return
	}
	win.Destroy()
	d.windows[h.Index()] = nil

	// Drop any pending state for the dead slot.
	for i := range d.pending {
		if d.pending[i].Handle == h {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
}

// SetWindowTitle sets a window's title bar text.
func (d *Driver) SetWindowTitle(h multiwin.WindowHandle, title string) {
	if !h.IsValid() || int(h.Index()) >= multiwin.MaxWindows {
		return
	}
	if win := d.windows[h.Index()]; win != nil {
		win.SetTitle(title)
	}
}

// SetKeyCallback installs the key handler shared by all windows.
func (d *Driver) SetKeyCallback(fn func(multiwin.Key)) {
	d.keyCb = fn
}

// ProcessEvents pumps GLFW, delivers at most one pending window state
// and reports whether the application should keep running.
//
// Secondary windows whose close button was pressed are not destroyed
// here: their nil-Native state is queued first, so the caller tears
// down the framebuffer before the native window goes away. The window
// itself dies on the pass after its state was delivered.
func (d *Driver) ProcessEvents(st *multiwin.WindowState) bool {
	for _, win := range d.takeClosable() {
		win.Destroy()
	}

	goglfw.PollEvents()

	for i := 1; i < multiwin.MaxWindows; i++ {
		if win := d.windows[i]; win != nil && win.ShouldClose() {
			d.markClosing(i)
		}
	}

	if len(d.pending) > 0 {
		*st = d.pending[0]
		d.pending = d.pending[1:]
		if st.Native == nil {
			d.noteDelivered(st.Handle)
		}
	}
	return !d.windows[0].ShouldClose()
}
