package wlpresent

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/bnema/wlpresent/present"
)

// The adapters below let present.Window drive protocol objects. Events
// they receive are queued on the owning Window and handed to the state
// machine after the dispatch that produced them.

type surfaceChannel struct {
	surface *Surface
	w       *Window
}

func (c surfaceChannel) Attach(b present.WireBuffer) error {
	buf, ok := b.(*Buffer)
	if !ok {
		return fmt.Errorf("attach: foreign buffer %T", b)
	}
	return c.surface.Attach(buf, 0, 0)
}

func (c surfaceChannel) DamageBuffer(x, y, width, height int32) error {
	return c.surface.DamageBuffer(x, y, width, height)
}

func (c surfaceChannel) Commit() error { return c.surface.Commit() }

func (c surfaceChannel) Frame() (present.Callback, error) {
	var cb *Callback
	cb, err := c.surface.Frame(func(time uint32) {
		c.w.push(present.FrameEvent{Callback: cb.ID(), Time: time})
	})
	if err != nil {
		return nil, err
	}
	return cb, nil
}

func (c surfaceChannel) Destroy() error { return c.surface.Destroy() }

// roleChannel is the xdg_surface and xdg_toplevel pair, plus the
// decoration object that must go before them.
type roleChannel struct {
	xdg        *XdgSurface
	toplevel   *XdgToplevel
	decoration *ToplevelDecoration
}

func (c roleChannel) AckConfigure(serial uint32) error {
	return c.xdg.AckConfigure(serial)
}

func (c roleChannel) SetMinSize(width, height int32) error {
	return c.toplevel.SetMinSize(width, height)
}

func (c roleChannel) SetMaxSize(width, height int32) error {
	return c.toplevel.SetMaxSize(width, height)
}

func (c roleChannel) Destroy() error {
	var err error
	if c.decoration != nil {
		err = multierr.Append(err, c.decoration.Destroy())
	}
	err = multierr.Append(err, c.toplevel.Destroy())
	return multierr.Append(err, c.xdg.Destroy())
}

type shmChannel struct {
	shm *Shm
	w   *Window
}

func (c shmChannel) CreatePool(fd int, size int32) (present.ShmPool, error) {
	pool, err := c.shm.CreatePool(fd, size)
	if err != nil {
		return nil, err
	}
	return shmPoolChannel{pool: pool, w: c.w}, nil
}

type shmPoolChannel struct {
	pool *ShmPool
	w    *Window
}

func (c shmPoolChannel) CreateBuffer(offset, width, height, stride int32, format present.Format) (present.WireBuffer, error) {
	b, err := c.pool.CreateBuffer(offset, width, height, stride, shmFormat(format))
	if err != nil {
		return nil, err
	}
	b.OnRelease = func(b *Buffer) {
		c.w.push(present.ReleaseEvent{Buffer: b.ID()})
	}
	return b, nil
}

func (c shmPoolChannel) Destroy() error { return c.pool.Destroy() }

func shmFormat(f present.Format) uint32 {
	if f == present.FormatXRGB8888 {
		return FormatXRGB8888
	}
	return FormatARGB8888
}

// ShmAllocator allocates regions backed by anonymous shared memory.
type ShmAllocator struct{}

func (ShmAllocator) Allocate(size int) (present.Region, error) {
	r, err := NewShmRegion(size)
	if err != nil {
		return nil, err
	}
	return r, nil
}
