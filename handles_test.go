package multiwin

import "testing"

func TestInvalidHandleSentinels(t *testing.T) {
	if InvalidFrameBuffer.IsValid() {
		t.Error("InvalidFrameBuffer must report invalid")
	}
	if InvalidWindow.IsValid() {
		t.Error("InvalidWindow must report invalid")
	}
	if InvalidVertexBuffer.IsValid() {
		t.Error("InvalidVertexBuffer must report invalid")
	}
	if InvalidIndexBuffer.IsValid() {
		t.Error("InvalidIndexBuffer must report invalid")
	}
	if InvalidProgram.IsValid() {
		t.Error("InvalidProgram must report invalid")
	}
}

// A failed creation must never alias slot 0: the zero-index handle is a
// live reference, so only the invalid sentinels may signal failure.
func TestZeroIndexHandleIsLive(t *testing.T) {
	fb := FrameBufferFromIndex(0)
	if !fb.IsValid() {
		t.Error("fb index 0 references a live slot")
	}
	if fb == InvalidFrameBuffer {
		t.Error("fb index 0 must differ from InvalidFrameBuffer")
	}
	if got := fb.String(); got != "fb(0)" {
		t.Errorf("expected fb(0), got %q", got)
	}
	if got := InvalidFrameBuffer.String(); got != "fb(invalid)" {
		t.Errorf("expected fb(invalid), got %q", got)
	}
}
