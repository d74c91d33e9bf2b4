package multiwin

import "testing"

func TestBindingsDispatch(t *testing.T) {
	var b bindings
	created, destroyed := 0, 0
	b.Add("windows", []Binding{
		{Key: KeyC, Fn: func() { created++ }},
		{Key: KeyD, Fn: func() { destroyed++ }},
	})

	b.Dispatch(KeyC)
	b.Dispatch(KeyC)
	b.Dispatch(KeyD)
	b.Dispatch(KeyEsc) // unbound

	if created != 2 {
		t.Errorf("expected 2 create dispatches, got %d", created)
	}
	if destroyed != 1 {
		t.Errorf("expected 1 destroy dispatch, got %d", destroyed)
	}
}

func TestBindingsAddReplaces(t *testing.T) {
	var b bindings
	oldFired, newFired := 0, 0
	b.Add("windows", []Binding{{Key: KeyC, Fn: func() { oldFired++ }}})
	b.Add("windows", []Binding{{Key: KeyC, Fn: func() { newFired++ }}})

	b.Dispatch(KeyC)
	if oldFired != 0 {
		t.Errorf("expected replaced binding not to fire, got %d", oldFired)
	}
	if newFired != 1 {
		t.Errorf("expected new binding to fire once, got %d", newFired)
	}
}

func TestBindingsRemove(t *testing.T) {
	var b bindings
	fired := 0
	b.Add("windows", []Binding{{Key: KeyC, Fn: func() { fired++ }}})

	if b.Empty() {
		t.Error("expected non-empty bindings")
	}
	b.Remove("windows")
	if !b.Empty() {
		t.Error("expected empty bindings after remove")
	}
	b.Dispatch(KeyC)
	if fired != 0 {
		t.Errorf("expected no dispatch after remove, got %d", fired)
	}

	// Removing an unknown name is a no-op.
	b.Remove("unknown")
}

func TestBindingsFirstMatchWins(t *testing.T) {
	var b bindings
	first, second := 0, 0
	b.Add("a", []Binding{{Key: KeyC, Fn: func() { first++ }}})
	b.Add("b", []Binding{{Key: KeyC, Fn: func() { second++ }}})

	b.Dispatch(KeyC)
	if first != 1 || second != 0 {
		t.Errorf("expected first group to win, got first=%d second=%d", first, second)
	}
}
