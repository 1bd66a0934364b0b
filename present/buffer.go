package present

import (
	"fmt"
	"image"
)

// BufferState tracks who may touch a buffer's memory.
type BufferState int

const (
	// StateFree buffers may be handed to the renderer.
	StateFree BufferState = iota
	// StateReserved buffers are being written by the renderer.
	StateReserved
	// StateCommitted buffers are owned by the compositor until released.
	StateCommitted
)

func (s BufferState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateReserved:
		return "reserved"
	case StateCommitted:
		return "committed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Buffer is one pooled pixel buffer. Its state only changes through Pool
// methods.
type Buffer struct {
	slot   int
	width  int
	height int
	stride int
	size   int
	offset int
	format Format

	region Region
	shm    ShmPool // owned by the buffer in the realloc variant
	wire   WireBuffer
	state  BufferState
}

// ID returns the compositor-side buffer id.
func (b *Buffer) ID() uint32         { return b.wire.ID() }
func (b *Buffer) Width() int         { return b.width }
func (b *Buffer) Height() int        { return b.height }
func (b *Buffer) Stride() int        { return b.stride }
func (b *Buffer) Size() int          { return b.size }
func (b *Buffer) Format() Format     { return b.format }
func (b *Buffer) State() BufferState { return b.state }

// Wire returns the handle to attach to a surface.
func (b *Buffer) Wire() WireBuffer { return b.wire }

func (b *Buffer) pixels() []byte {
	return b.region.Bytes()[b.offset : b.offset+b.size]
}

func (b *Buffer) String() string {
	return fmt.Sprintf("buffer#%d(%dx%d %v)", b.slot, b.width, b.height, b.state)
}

// Frame is the renderer's exclusive borrow of a reserved buffer. It is
// consumed by Pool.Commit or Pool.Cancel.
type Frame struct {
	buf *Buffer
	img *Image
}

func newFrame(b *Buffer) *Frame {
	return &Frame{
		buf: b,
		img: &Image{
			Pix:    b.pixels(),
			Stride: b.stride,
			Rect:   image.Rect(0, 0, b.width, b.height),
			opaque: b.format.Opaque(),
			buf:    b,
		},
	}
}

// Image returns the writable pixel view.
func (f *Frame) Image() *Image {
	f.mustLive()
	return f.img
}

// Width returns the buffer width in pixels.
func (f *Frame) Width() int {
	f.mustLive()
	return f.buf.width
}

// Height returns the buffer height in pixels.
func (f *Frame) Height() int {
	f.mustLive()
	return f.buf.height
}

func (f *Frame) mustLive() {
	if f.buf == nil {
		panic(ErrWriteAfterCommit)
	}
}
