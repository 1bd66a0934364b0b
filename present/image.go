package present

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

// Format is a wl_shm pixel format code.
type Format uint32

// Packed 32-bit formats, stored little-endian.
const (
	FormatARGB8888 Format = 0
	FormatXRGB8888 Format = 1
)

// BytesPerPixel is the width of every supported format.
const BytesPerPixel = 4

// Opaque reports whether the alpha byte is ignored by the compositor.
func (f Format) Opaque() bool {
	return f == FormatXRGB8888
}

func (f Format) String() string {
	switch f {
	case FormatARGB8888:
		return "argb8888"
	case FormatXRGB8888:
		return "xrgb8888"
	}
	return fmt.Sprintf("format(%#x)", uint32(f))
}

// Stride returns the row size in bytes for width pixels, rounded up to
// align bytes.
func Stride(width, align int) int {
	stride := width * BytesPerPixel
	if align > BytesPerPixel {
		stride = (stride + align - 1) / align * align
	}
	return stride
}

// Image is a draw.Image over a buffer's shared memory. Pixels are
// premultiplied 0xAARRGGBB words in little-endian byte order.
//
// An Image may only be written while its frame is live. Once the frame is
// committed or cancelled the Image is detached for good: writes panic with
// ErrWriteAfterCommit, reads return zero and Pix is nil, even if the same
// buffer is later reserved again. Slices of Pix must not outlive the frame.
type Image struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle

	opaque bool
	buf    *Buffer
}

// detach cuts the Image off from its buffer memory.
func (m *Image) detach() {
	m.buf = nil
	m.Pix = nil
	m.Rect = image.Rectangle{}
}

func (m *Image) ColorModel() color.Model { return color.RGBAModel }

func (m *Image) Bounds() image.Rectangle { return m.Rect }

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (m *Image) PixOffset(x, y int) int {
	return (y-m.Rect.Min.Y)*m.Stride + (x-m.Rect.Min.X)*BytesPerPixel
}

// ARGB returns the packed pixel at (x, y).
func (m *Image) ARGB(x, y int) uint32 {
	if !(image.Point{x, y}.In(m.Rect)) {
		return 0
	}
	v := binary.LittleEndian.Uint32(m.Pix[m.PixOffset(x, y):])
	if m.opaque {
		v |= 0xff000000
	}
	return v
}

func (m *Image) At(x, y int) color.Color {
	v := m.ARGB(x, y)
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: uint8(v >> 24),
	}
}

func (m *Image) Set(x, y int, c color.Color) {
	r, g, b, a := c.RGBA()
	m.SetARGB(x, y, (a>>8)<<24|(r>>8)<<16|(g>>8)<<8|b>>8)
}

// SetARGB stores a packed pixel at (x, y).
func (m *Image) SetARGB(x, y int, v uint32) {
	m.mustWrite()
	if !(image.Point{x, y}.In(m.Rect)) {
		return
	}
	binary.LittleEndian.PutUint32(m.Pix[m.PixOffset(x, y):], v)
}

// Fill sets every pixel to v.
func (m *Image) Fill(v uint32) {
	m.mustWrite()
	w := m.Rect.Dx() * BytesPerPixel
	for y := 0; y < m.Rect.Dy(); y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+w]
		for i := 0; i < len(row); i += BytesPerPixel {
			binary.LittleEndian.PutUint32(row[i:], v)
		}
	}
}

func (m *Image) mustWrite() {
	if m.buf == nil || m.buf.state != StateReserved {
		panic(ErrWriteAfterCommit)
	}
}
