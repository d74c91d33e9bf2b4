// Command multiwin renders a spinning cube grid across up to eight
// windows. Press C to open another window, D to close the most recent
// one, and Escape to quit. Screenshots of every window land in the
// capture directory every 300 frames.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/gogpu/multiwin"
	glfwdriver "github.com/gogpu/multiwin/driver/glfw"

	_ "github.com/gogpu/multiwin/backend/vulkan"
	_ "github.com/gogpu/multiwin/backend/wgpu"
)

func init() {
	// GLFW and the swap-chain backends require the main thread.
	runtime.LockOSThread()
}

func main() {
	var (
		backend = flag.String("backend", "vulkan",
			"rendering backend ("+strings.Join(multiwin.Backends(), ", ")+")")
		vendor  = flag.String("vendor", "", "preferred GPU vendor substring (nvidia, amd, intel)")
		width   = flag.Int("width", 1280, "primary window width")
		height  = flag.Int("height", 720, "primary window height")
		capture = flag.String("capture", "temp", "directory for screenshots and the shader cache")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		multiwin.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if err := run(*backend, *vendor, *width, *height, *capture); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(backend, vendor string, width, height int, capture string) error {
	driver := &glfwdriver.Driver{}
	if err := driver.Init(width, height, "multiwin"); err != nil {
		return err
	}
	defer driver.Terminate()

	engine, err := multiwin.NewEngine(backend)
	if err != nil {
		return err
	}

	app, err := multiwin.NewApp(
		multiwin.WithEngine(engine),
		multiwin.WithWindower(driver),
		multiwin.WithCaptureDir(capture),
	)
	if err != nil {
		return err
	}

	platform := multiwin.Platform{
		Native:             driver.Primary(),
		RequiredExtensions: driver.RequiredExtensions(),
		Width:              uint32(width),
		Height:             uint32(height),
		Vendor:             vendor,
	}
	if err := app.Init(platform); err != nil {
		return err
	}
	defer app.Shutdown()

	for app.Update() {
	}
	return nil
}
