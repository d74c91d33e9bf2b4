package multiwin

// Option configures an App during creation.
// Use functional options to customize App behavior.
//
// Example:
//
//	app, err := multiwin.NewApp(
//		multiwin.WithEngine(eng),
//		multiwin.WithWindower(win),
//		multiwin.WithCaptureDir("temp"),
//	)
type Option func(*options)

// options holds optional configuration for App creation.
type options struct {
	engine     Engine
	windower   Windower
	callbacks  Callbacks
	captureDir string
}

// defaultOptions returns the default app options.
func defaultOptions() options {
	return options{
		captureDir: "temp",
	}
}

// WithEngine sets the rendering engine the app drives. Required.
func WithEngine(e Engine) Option {
	return func(o *options) {
		o.engine = e
	}
}

// WithWindower sets the native window provider. Required.
func WithWindower(w Windower) Option {
	return func(o *options) {
		o.windower = w
	}
}

// WithCallbacks overrides the engine callbacks.
// The default is DiskCallbacks rooted at the capture directory: shader
// cache blobs and screenshots land on disk next to each other.
func WithCallbacks(cb Callbacks) Option {
	return func(o *options) {
		o.callbacks = cb
	}
}

// WithCaptureDir sets the directory screenshots and cached shader blobs
// are written to. Defaults to "temp".
func WithCaptureDir(dir string) Option {
	return func(o *options) {
		o.captureDir = dir
	}
}
