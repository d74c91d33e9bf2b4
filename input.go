package multiwin

// Binding ties a key to an action.
type Binding struct {
	Key Key
	Fn  func()
}

// bindingSet is a named group of key bindings, so a whole group can be
// installed and removed together.
type bindingSet struct {
	name     string
	bindings []Binding
}

// bindings dispatches key presses to named binding groups. It is owned
// by the App and mutated only on the frame goroutine.
type bindings struct {
	sets []bindingSet
}

// Add installs a named group of bindings. Adding under an existing name
// replaces the previous group.
func (b *bindings) Add(name string, set []Binding) {
	b.Remove(name)
	b.sets = append(b.sets, bindingSet{name: name, bindings: set})
}

// Remove uninstalls the named group. Unknown names are ignored.
func (b *bindings) Remove(name string) {
	for i := range b.sets {
		if b.sets[i].name == name {
			b.sets = append(b.sets[:i], b.sets[i+1:]...)
			return
		}
	}
}

// Empty reports whether no groups are installed.
func (b *bindings) Empty() bool { return len(b.sets) == 0 }

// Dispatch runs the first action bound to key, if any.
func (b *bindings) Dispatch(key Key) {
	for i := range b.sets {
		for _, bd := range b.sets[i].bindings {
			if bd.Key == key && bd.Fn != nil {
				bd.Fn()
				return
			}
		}
	}
}
