package multiwin

import (
	"encoding/binary"
	"math"

	lin "github.com/xlab/linmath"
)

// PosColorVertex is one cube corner: a position and a packed 0xAABBGGRR
// color, matching the vertex layout the cube program expects.
type PosColorVertex struct {
	X, Y, Z float32
	ABGR    uint32
}

// cubeVertices are the eight corners of a unit-2 cube centered on the
// origin, one distinct color per corner.
var cubeVertices = [8]PosColorVertex{
	{-1.0, 1.0, 1.0, 0xff000000},
	{1.0, 1.0, 1.0, 0xff0000ff},
	{-1.0, -1.0, 1.0, 0xff00ff00},
	{1.0, -1.0, 1.0, 0xff00ffff},
	{-1.0, 1.0, -1.0, 0xffff0000},
	{1.0, 1.0, -1.0, 0xffff00ff},
	{-1.0, -1.0, -1.0, 0xffffff00},
	{1.0, -1.0, -1.0, 0xffffffff},
}

// cubeIndices wind the 12 triangles of the cube.
var cubeIndices = [36]uint16{
	0, 1, 2,
	1, 3, 2,
	4, 6, 5,
	5, 6, 7,
	0, 2, 4,
	4, 2, 6,
	1, 5, 3,
	5, 7, 3,
	0, 4, 1,
	4, 5, 1,
	2, 3, 6,
	6, 3, 7,
}

// cubeLayout describes PosColorVertex: float32x3 position, normalized
// unorm8x4 color.
func cubeLayout() VertexLayout {
	return VertexLayout{
		Stride: 16,
		Elements: []VertexLayoutElement{
			{Attrib: AttribPosition, Num: 3, Float: true},
			{Attrib: AttribColor0, Num: 4, Normalized: true},
		},
	}
}

// cubeVertexData serializes the cube corners little-endian, the byte
// order every backend consumes vertex streams in.
func cubeVertexData() []byte {
	buf := make([]byte, 0, len(cubeVertices)*16)
	for _, v := range cubeVertices {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.X))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Y))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Z))
		buf = binary.LittleEndian.AppendUint32(buf, v.ABGR)
	}
	return buf
}

// cubeIndexData serializes the index winding little-endian.
func cubeIndexData() []byte {
	buf := make([]byte, 0, len(cubeIndices)*2)
	for _, i := range cubeIndices {
		buf = binary.LittleEndian.AppendUint16(buf, i)
	}
	return buf
}

// gridDim is the cube grid edge length; gridDim*gridDim cubes are
// submitted per frame.
const gridDim = 11

// lookAtView builds the shared camera matrix: eye at (0,0,-35) looking
// at the origin.
func lookAtView() lin.Mat4x4 {
	var m lin.Mat4x4
	eye := lin.Vec3{0, 0, -35}
	center := lin.Vec3{0, 0, 0}
	up := lin.Vec3{0, 1, 0}
	m.LookAt(&eye, &center, &up)
	return m
}

// projection builds the shared 60 degree projection for the given aspect
// ratio. When the backend's clip-space depth spans [0, 1] rather than
// [-1, 1], the z row is remapped accordingly.
func projection(aspect float32, homogeneousDepth bool) lin.Mat4x4 {
	var m lin.Mat4x4
	m.Perspective(lin.DegreesToRadians(60), aspect, 0.1, 100.0)
	if !homogeneousDepth {
		// z' = (z + w) / 2 folds [-1, 1] depth into [0, 1].
		for c := 0; c < 4; c++ {
			m[c][2] = 0.5 * (m[c][2] + m[c][3])
		}
	}
	return m
}

// cubeTransform builds the model matrix for grid cell (x, y) at time t:
// a rotation about X then Y with per-cell phase offsets, translated onto
// the grid plane.
func cubeTransform(x, y int, t float32) lin.Mat4x4 {
	var ident, rx, m lin.Mat4x4
	ident.Identity()
	rx.Rotate(&ident, 1, 0, 0, t+float32(x)*0.21)
	m.Rotate(&rx, 0, 1, 0, t+float32(y)*0.37)
	m[3][0] = -15.0 + float32(x)*3.0
	m[3][1] = -15.0 + float32(y)*3.0
	m[3][2] = 0.0
	return m
}
