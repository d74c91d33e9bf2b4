package multiwin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoSwapChain indicates the active engine cannot render to secondary
// windows. Callers should keep driving view 0 only.
var ErrNoSwapChain = errors.New("multiwin: renderer does not support swap chains")

// EngineFactory constructs an uninitialized Engine. Factories must be
// cheap; all GPU work happens in Engine.Init.
type EngineFactory func() Engine

var (
	backendMu sync.RWMutex
	backends  = map[string]EngineFactory{}
)

// RegisterBackend registers an engine factory under a name.
//
// Backend packages call this from init; users opt in via blank import:
//
//	import _ "github.com/gogpu/multiwin/backend/vulkan"
//
// Registering the same name twice panics: it always indicates two
// packages fighting over one backend slot.
func RegisterBackend(name string, f EngineFactory) {
	if f == nil {
		panic("multiwin: backend factory must not be nil")
	}
	backendMu.Lock()
	defer backendMu.Unlock()
	if _, dup := backends[name]; dup {
		panic("multiwin: backend " + name + " registered twice")
	}
	backends[name] = f
}

// NewEngine builds the engine registered under name. An empty name
// selects the sole registered backend, or fails when the choice is
// ambiguous.
func NewEngine(name string) (Engine, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if name == "" {
		if len(backends) == 1 {
			for _, f := range backends {
				return f(), nil
			}
		}
		return nil, fmt.Errorf("multiwin: no backend selected (registered: %v)", backendNamesLocked())
	}
	f, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("multiwin: unknown backend %q (registered: %v)", name, backendNamesLocked())
	}
	return f(), nil
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendNamesLocked()
}

func backendNamesLocked() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
