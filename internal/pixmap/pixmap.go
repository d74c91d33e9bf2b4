// Package pixmap converts raw GPU readback buffers into images and
// writes them to disk. Captures arrive as BGRA rows with an aligned
// pitch and sometimes bottom-up row order; this package normalizes them
// to tightly packed RGBA.
package pixmap

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Pixmap is a rectangular RGBA pixel buffer, 4 bytes per pixel.
type Pixmap struct {
	width  int
	height int
	data   []uint8
}

// New creates an empty pixmap with the given dimensions.
func New(width, height int) *Pixmap {
	return &Pixmap{
		width:  width,
		height: height,
		data:   make([]uint8, width*height*4),
	}
}

// FromBGRA builds a pixmap from a GPU capture. Data holds height rows
// of pitch bytes each, pixels in BGRA order. When yflip is set the
// first row in data is the bottom of the image.
func FromBGRA(data []byte, width, height, pitch int, yflip bool) *Pixmap {
	pm := New(width, height)
	for y := 0; y < height; y++ {
		src := y * pitch
		dstRow := y
		if yflip {
			dstRow = height - 1 - y
		}
		dst := dstRow * width * 4
		for x := 0; x < width; x++ {
			si := src + x*4
			di := dst + x*4
			pm.data[di+0] = data[si+2] // R
			pm.data[di+1] = data[si+1] // G
			pm.data[di+2] = data[si+0] // B
			pm.data[di+3] = data[si+3] // A
		}
	}
	return pm
}

// Width returns the width of the pixmap.
func (p *Pixmap) Width() int {
	return p.width
}

// Height returns the height of the pixmap.
func (p *Pixmap) Height() int {
	return p.height
}

// Data returns the raw pixel data (RGBA format).
func (p *Pixmap) Data() []uint8 {
	return p.data
}

// ToBGRA returns the pixels as tightly packed BGRA rows, the order GPU
// capture consumers expect.
func (p *Pixmap) ToBGRA() []byte {
	out := make([]byte, len(p.data))
	for i := 0; i < len(p.data); i += 4 {
		out[i+0] = p.data[i+2]
		out[i+1] = p.data[i+1]
		out[i+2] = p.data[i+0]
		out[i+3] = p.data[i+3]
	}
	return out
}

// ToImage converts the pixmap to an image.RGBA.
func (p *Pixmap) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	copy(img.Pix, p.data)
	return img
}

// DrawString stamps text onto the pixmap at a cell position using the
// basicfont 7x13 face. Used for the annotation line on captures.
func (p *Pixmap) DrawString(col, row int, c color.Color, s string) {
	img := p.ToImage()
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot: fixed.P(
			col*face.Advance,
			row*face.Height+face.Ascent,
		),
	}
	d.DrawString(s)
	copy(p.data, img.Pix)
}

// SavePNG saves the pixmap to a PNG file.
func (p *Pixmap) SavePNG(path string) error {
	f, err := os.Create(path) //nolint:gosec // path is caller-provided intentionally
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	return png.Encode(f, p.ToImage())
}

// At implements the image.Image interface.
func (p *Pixmap) At(x, y int) color.Color {
	if x < 0 || x >= p.width || y < 0 || y >= p.height {
		return color.RGBA{}
	}
	i := (y*p.width + x) * 4
	return color.RGBA{R: p.data[i+0], G: p.data[i+1], B: p.data[i+2], A: p.data[i+3]}
}

// Bounds implements the image.Image interface.
func (p *Pixmap) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.width, p.height)
}

// ColorModel implements the image.Image interface.
func (p *Pixmap) ColorModel() color.Model {
	return color.RGBAModel
}
