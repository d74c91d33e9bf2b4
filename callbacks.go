package multiwin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/multiwin/cache"
	"github.com/gogpu/multiwin/internal/pixmap"
)

// FatalCode classifies unrecoverable engine errors.
type FatalCode uint32

const (
	// FatalDebugCheck is a failed internal consistency check.
	FatalDebugCheck FatalCode = iota

	// FatalUnableToInitialize means the backend could not come up.
	FatalUnableToInitialize

	// FatalUnableToCreateTexture means a GPU resource allocation failed
	// past the point of recovery.
	FatalUnableToCreateTexture

	// FatalDeviceLost means the GPU device was lost mid-frame.
	FatalDeviceLost
)

// Callbacks is the capability set handed to the engine at Init. It is
// injected rather than ambient so tests can observe cache traffic and
// captured screenshots.
//
// All callbacks are invoked on the engine's frame goroutine.
type Callbacks interface {
	// Fatal reports an unrecoverable engine error. Implementations must
	// not return; the engine's invariants can no longer be trusted, so
	// continuing risks further corruption.
	Fatal(code FatalCode, msg string)

	// Trace receives engine diagnostics as structured key/value pairs.
	Trace(msg string, args ...any)

	// CacheRead returns the cached shader blob for id, if present.
	CacheRead(id uint64) ([]byte, bool)

	// CacheWrite stores a compiled shader blob under id.
	CacheWrite(id uint64, data []byte)

	// ScreenShot delivers captured pixels for a prior RequestScreenShot.
	// Data is tightly packed BGRA rows of the given pitch; yflip marks
	// bottom-up row order.
	ScreenShot(path string, width, height, pitch uint32, data []byte, yflip bool)
}

// DiskCallbacks is the default callback set: shader blobs cached on disk
// keyed by their 64-bit id, screenshots written as PNG files, fatal
// errors logged and the process aborted.
type DiskCallbacks struct {
	shaders *cache.ShaderCache
}

// NewDiskCallbacks creates the default callback set rooted at dir.
// Shader blobs and screenshots both land under it.
func NewDiskCallbacks(dir string) (*DiskCallbacks, error) {
	sc, err := cache.NewShaderCache(dir)
	if err != nil {
		return nil, fmt.Errorf("multiwin: shader cache: %w", err)
	}
	return &DiskCallbacks{shaders: sc}, nil
}

// Fatal logs the error and aborts the process immediately. No cleanup is
// attempted: after an unrecoverable engine error the remaining handles
// cannot be destroyed safely.
func (c *DiskCallbacks) Fatal(code FatalCode, msg string) {
	Logger().Error("fatal engine error", "code", uint32(code), "msg", msg)
	os.Exit(1)
}

// Trace forwards engine diagnostics to the package logger.
func (c *DiskCallbacks) Trace(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// CacheRead returns the cached shader blob for id, if present.
func (c *DiskCallbacks) CacheRead(id uint64) ([]byte, bool) {
	return c.shaders.Read(id)
}

// CacheWrite stores a compiled shader blob under id.
func (c *DiskCallbacks) CacheWrite(id uint64, data []byte) {
	if err := c.shaders.Write(id, data); err != nil {
		Logger().Warn("shader cache write failed", "id", fmt.Sprintf("%016x", id), "err", err)
	}
}

// ScreenShot converts the raw capture to RGBA and writes "<path>.png".
func (c *DiskCallbacks) ScreenShot(path string, width, height, pitch uint32, data []byte, yflip bool) {
	pm := pixmap.FromBGRA(data, int(width), int(height), int(pitch), yflip)
	out := path + ".png"
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		Logger().Warn("screenshot dir", "path", out, "err", err)
		return
	}
	if err := pm.SavePNG(out); err != nil {
		Logger().Warn("screenshot write failed", "path", out, "err", err)
		return
	}
	Logger().Info("screenshot written", "path", out, "size", fmt.Sprintf("%dx%d", width, height))
}
