// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	lin "github.com/xlab/linmath"

	"github.com/gogpu/multiwin"
)

func TestShaderCacheIDStable(t *testing.T) {
	a := shaderCacheID("wgpu", "cubes", "@vertex fn vs_main() {}")
	b := shaderCacheID("wgpu", "cubes", "@vertex fn vs_main() {}")
	if a != b {
		t.Errorf("expected stable id, got %016x vs %016x", a, b)
	}

	// Any component change produces a different key.
	if shaderCacheID("vulkan", "cubes", "@vertex fn vs_main() {}") == a {
		t.Error("expected renderer to affect the id")
	}
	if shaderCacheID("wgpu", "other", "@vertex fn vs_main() {}") == a {
		t.Error("expected name to affect the id")
	}
	if shaderCacheID("wgpu", "cubes", "@vertex fn vs() {}") == a {
		t.Error("expected source to affect the id")
	}
}

func TestSpirvWords(t *testing.T) {
	b := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}
	words := spirvWords(b)
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(words))
	}
	// SPIR-V magic number, little-endian.
	if words[0] != 0x07230203 {
		t.Errorf("expected magic 07230203, got %08x", words[0])
	}
	if words[1] != 0x00010000 {
		t.Errorf("expected version 00010000, got %08x", words[1])
	}
}

func TestVertexBufferLayouts(t *testing.T) {
	layouts := vertexBufferLayouts(multiwin.VertexLayout{
		Stride: 16,
		Elements: []multiwin.VertexLayoutElement{
			{Attrib: multiwin.AttribPosition, Num: 3, Float: true},
			{Attrib: multiwin.AttribColor0, Num: 4, Normalized: true},
		},
	})
	if len(layouts) != 1 {
		t.Fatalf("expected 1 buffer layout, got %d", len(layouts))
	}
	l := layouts[0]
	if l.ArrayStride != 16 {
		t.Errorf("expected stride 16, got %d", l.ArrayStride)
	}
	if len(l.Attributes) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(l.Attributes))
	}
	if l.Attributes[0].Format != gputypes.VertexFormatFloat32x3 || l.Attributes[0].Offset != 0 {
		t.Errorf("unexpected position attribute: %+v", l.Attributes[0])
	}
	if l.Attributes[1].Format != gputypes.VertexFormatUnorm8x4 || l.Attributes[1].Offset != 12 {
		t.Errorf("unexpected color attribute: %+v", l.Attributes[1])
	}
	if l.Attributes[1].ShaderLocation != 1 {
		t.Errorf("expected shader location 1, got %d", l.Attributes[1].ShaderLocation)
	}
}

func TestWriteMat4(t *testing.T) {
	var m lin.Mat4x4
	m.Identity()
	m[3][0] = 5 // translation x

	buf := make([]byte, 64)
	writeMat4(buf, &m)

	// Column-major: element [0][0] first, [3][0] at word 12.
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])); got != 1 {
		t.Errorf("expected m[0][0]=1, got %v", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[12*4:])); got != 5 {
		t.Errorf("expected m[3][0]=5, got %v", got)
	}
}

func TestDecodeClearColor(t *testing.T) {
	c := decodeClearColor(0x303030ff)
	want := float64(0x30) / 255
	if c.R != want || c.G != want || c.B != want {
		t.Errorf("expected gray %v, got %+v", want, c)
	}
	if c.A != 1 {
		t.Errorf("expected alpha 1, got %v", c.A)
	}
}

func TestAttrColor(t *testing.T) {
	if got := attrColor(0x0f); got != debugPalette[15] {
		t.Errorf("expected white, got %v", got)
	}
	// High nibble (background) is ignored.
	if got := attrColor(0x4f); got != debugPalette[15] {
		t.Errorf("expected background bits ignored, got %v", got)
	}
}

func TestCapsNoSwapChain(t *testing.T) {
	e := New()
	caps := e.Caps()
	if caps.SwapChain {
		t.Error("offscreen backend must not announce swap-chain support")
	}
	if caps.Renderer != BackendName {
		t.Errorf("expected renderer %q, got %q", BackendName, caps.Renderer)
	}
	if caps.HomogeneousDepth {
		t.Error("wgpu clip space depth is [0,1]")
	}
}

func TestResizeDims(t *testing.T) {
	tests := []struct {
		name    string
		rect    [4]uint16
		w, h    uint32
		wantW   uint32
		wantH   uint32
		changed bool
	}{
		{"unchanged", [4]uint16{0, 0, 1280, 720}, 1280, 720, 1280, 720, false},
		{"grown", [4]uint16{0, 0, 1920, 1080}, 1280, 720, 1920, 1080, true},
		{"shrunk", [4]uint16{0, 0, 640, 480}, 1280, 720, 640, 480, true},
		{"rect never set", [4]uint16{}, 1280, 720, 1280, 720, false},
		{"zero height kept", [4]uint16{0, 0, 640, 0}, 1280, 720, 1280, 720, false},
	}
	for _, tt := range tests {
		w, h, changed := resizeDims(tt.rect, tt.w, tt.h)
		if w != tt.wantW || h != tt.wantH || changed != tt.changed {
			t.Errorf("%s: resizeDims = %dx%d changed=%v, want %dx%d changed=%v",
				tt.name, w, h, changed, tt.wantW, tt.wantH, tt.changed)
		}
	}
}

func TestRequestScreenShotRejectsWindowTargets(t *testing.T) {
	e := New()
	e.RequestScreenShot(multiwin.FrameBufferFromIndex(1), "temp/frame_1_1")
	if len(e.shots) != 0 {
		t.Error("expected window framebuffer capture to be dropped")
	}
	e.RequestScreenShot(multiwin.InvalidFrameBuffer, "temp/frame_1_0")
	if len(e.shots) != 1 {
		t.Error("expected primary capture to be queued")
	}
}
