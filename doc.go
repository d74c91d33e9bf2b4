// Package multiwin manages the lifecycle of multiple native windows
// rendered by a single GPU engine.
//
// # Overview
//
// multiwin keeps a fixed table of up to eight window slots. Slot 0 is
// the primary window created at startup; the remaining slots are
// created and destroyed at runtime in response to key input. Each
// window owns a framebuffer, and each tick the registry reconciles
// framebuffers against the window states reported by the platform
// layer: a resized window gets its framebuffer recreated, a closed
// window is retired, and a window whose native handle vanished is
// drained for two frames before the native window itself is released.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/multiwin"
//		_ "github.com/gogpu/multiwin/backend/vulkan"
//	)
//
//	eng, _ := multiwin.NewEngine("vulkan")
//	app, err := multiwin.NewApp(
//		multiwin.WithEngine(eng),
//		multiwin.WithWindower(driver),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := app.Init(platform); err != nil {
//		log.Fatal(err)
//	}
//	defer app.Shutdown()
//	for app.Update() {
//	}
//
// # Architecture
//
// The module is organized into:
//   - Public API: App, Engine, Windower, Callbacks, the handle types
//   - Backends: backend/vulkan (swap chains), backend/wgpu (offscreen)
//   - Platform: driver/glfw (windows and input)
//   - Support: cache (shader cache), internal/pixmap (screenshots)
//
// Backends register themselves on import, the same way database/sql
// drivers do; NewEngine looks one up by name.
//
// # Input
//
// On the primary window, C creates a window, D destroys the live
// window in the lowest-numbered slot, and Escape quits. Secondary
// windows can also be closed from the window manager.
//
// # Screenshots
//
// Every 300 frames the App requests a screenshot of each live
// framebuffer. Delivery is asynchronous: the backend hands the pixels
// to Callbacks.ScreenShot once the frame containing the request has
// completed.
package multiwin
