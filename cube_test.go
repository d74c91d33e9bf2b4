package multiwin

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestCubeLayout(t *testing.T) {
	l := cubeLayout()
	if l.Stride != 16 {
		t.Errorf("expected stride 16, got %d", l.Stride)
	}
	if len(l.Elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(l.Elements))
	}
	pos := l.Elements[0]
	if pos.Attrib != AttribPosition || pos.Num != 3 || !pos.Float {
		t.Errorf("unexpected position element: %+v", pos)
	}
	col := l.Elements[1]
	if col.Attrib != AttribColor0 || col.Num != 4 || !col.Normalized || col.Float {
		t.Errorf("unexpected color element: %+v", col)
	}
}

func TestCubeVertexData(t *testing.T) {
	data := cubeVertexData()
	if len(data) != 8*16 {
		t.Fatalf("expected %d bytes, got %d", 8*16, len(data))
	}

	// First corner: (-1, 1, 1) colored 0xff000000.
	x := math.Float32frombits(binary.LittleEndian.Uint32(data[0:]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(data[4:]))
	z := math.Float32frombits(binary.LittleEndian.Uint32(data[8:]))
	abgr := binary.LittleEndian.Uint32(data[12:])
	if x != -1 || y != 1 || z != 1 {
		t.Errorf("expected first corner (-1,1,1), got (%v,%v,%v)", x, y, z)
	}
	if abgr != 0xff000000 {
		t.Errorf("expected color ff000000, got %08x", abgr)
	}

	// Last corner is the white one.
	last := binary.LittleEndian.Uint32(data[7*16+12:])
	if last != 0xffffffff {
		t.Errorf("expected color ffffffff, got %08x", last)
	}
}

func TestCubeIndexData(t *testing.T) {
	data := cubeIndexData()
	if len(data) != 36*2 {
		t.Fatalf("expected %d bytes, got %d", 36*2, len(data))
	}
	for i := 0; i < 36; i++ {
		idx := binary.LittleEndian.Uint16(data[i*2:])
		if idx >= 8 {
			t.Errorf("index %d out of range: %d", i, idx)
		}
	}
}

func TestProjectionDepthRemap(t *testing.T) {
	homog := projection(16.0/9.0, true)
	zeroOne := projection(16.0/9.0, false)

	// With [-1,1] depth the near plane maps to -w; remapped it maps to 0.
	// Check via the z row producing z' = (z+w)/2.
	for c := 0; c < 4; c++ {
		want := 0.5 * (homog[c][2] + homog[c][3])
		if diff := zeroOne[c][2] - want; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("column %d: expected remapped z %v, got %v", c, want, zeroOne[c][2])
		}
		if zeroOne[c][3] != homog[c][3] {
			t.Errorf("column %d: w row must be untouched", c)
		}
	}
}

func TestCubeTransformGridPlacement(t *testing.T) {
	m := cubeTransform(0, 0, 0)
	if m[3][0] != -15 || m[3][1] != -15 || m[3][2] != 0 {
		t.Errorf("expected corner cube at (-15,-15,0), got (%v,%v,%v)", m[3][0], m[3][1], m[3][2])
	}

	m = cubeTransform(gridDim-1, gridDim-1, 0)
	if m[3][0] != 15 || m[3][1] != 15 {
		t.Errorf("expected corner cube at (15,15), got (%v,%v)", m[3][0], m[3][1])
	}
}

func TestLookAtViewFinite(t *testing.T) {
	m := lookAtView()
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			if math.IsNaN(float64(m[c][r])) || math.IsInf(float64(m[c][r]), 0) {
				t.Fatalf("non-finite view matrix entry at [%d][%d]: %v", c, r, m[c][r])
			}
		}
	}
}
