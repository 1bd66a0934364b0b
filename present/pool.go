package present

import (
	"fmt"
	"log/slog"

	"go.uber.org/multierr"
)

// slotAlign keeps fixed-variant slots on cache line boundaries.
const slotAlign = 64

// Pool owns a bounded set of shared memory buffers and their ownership
// state. It is not safe for concurrent use.
type Pool struct {
	capacity  int
	format    Format
	variant   Variant
	align     int
	maxWidth  int
	maxHeight int

	shm   Shm
	alloc Allocator
	log   *slog.Logger

	slots []*Buffer // nil until first needed

	// VariantFixed only.
	region   Region
	wire     ShmPool
	slotSize int

	closed bool
}

// NewPool creates a pool for cfg. The fixed variant allocates its whole
// region here; the realloc variant allocates lazily in Acquire.
func NewPool(cfg Config, shm Shm, alloc Allocator) (*Pool, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		capacity:  cfg.Capacity,
		format:    cfg.Format,
		variant:   cfg.Variant,
		align:     cfg.StrideAlign,
		maxWidth:  cfg.MaxWidth,
		maxHeight: cfg.MaxHeight,
		shm:       shm,
		alloc:     alloc,
		log:       cfg.Logger.With("component", "pool"),
		slots:     make([]*Buffer, cfg.Capacity),
	}

	if p.variant == VariantFixed {
		p.slotSize = alignSlot(Stride(p.maxWidth, p.align) * p.maxHeight)
		total := p.slotSize * p.capacity

		region, err := alloc.Allocate(total)
		if err != nil {
			return nil, fmt.Errorf("allocate %d byte region: %w", total, err)
		}
		wire, err := shm.CreatePool(region.FD(), int32(total))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("create shm pool: %w", err), region.Close())
		}
		p.region = region
		p.wire = wire
		p.log.Debug("fixed pool allocated", "bytes", total, "slot_bytes", p.slotSize)
	}

	return p, nil
}

// Variant returns the resize policy in force.
func (p *Pool) Variant() Variant { return p.variant }

// Capacity returns the maximum number of live buffers.
func (p *Pool) Capacity() int { return p.capacity }

// InFlight returns the number of committed buffers.
func (p *Pool) InFlight() int {
	n := 0
	for _, b := range p.slots {
		if b != nil && b.state == StateCommitted {
			n++
		}
	}
	return n
}

// Acquire reserves a free buffer of the given size for writing. Free
// buffers of another size are replaced. ErrBusy means every slot is
// reserved or committed.
func (p *Pool) Acquire(width, height int) (*Frame, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid buffer size %dx%d", width, height)
	}
	if p.variant == VariantFixed && (width > p.maxWidth || height > p.maxHeight) {
		return nil, fmt.Errorf("buffer size %dx%d exceeds fixed pool slot %dx%d",
			width, height, p.maxWidth, p.maxHeight)
	}
	if size := Stride(width, p.align) * height; size > MaxRegionSize {
		return nil, fmt.Errorf("buffer size %dx%d needs %d bytes, limit is %d",
			width, height, size, MaxRegionSize)
	}

	match, free := -1, -1
	for i, b := range p.slots {
		if b == nil {
			if free < 0 {
				free = i
			}
			continue
		}
		if b.state != StateFree {
			continue
		}
		if b.width == width && b.height == height {
			match = i
			break
		}
		if free < 0 {
			free = i
		}
	}

	if match < 0 {
		if free < 0 {
			return nil, ErrBusy
		}
		b, err := p.provision(free, width, height)
		if err != nil {
			return nil, err
		}
		match = free
		p.slots[match] = b
	}

	b := p.slots[match]
	b.state = StateReserved
	return newFrame(b), nil
}

func alignSlot(size int) int {
	return (size + slotAlign - 1) / slotAlign * slotAlign
}

// provision replaces whatever occupies slot with a buffer of the given
// size.
func (p *Pool) provision(slot, width, height int) (*Buffer, error) {
	if old := p.slots[slot]; old != nil {
		p.log.Debug("replacing buffer", "slot", slot,
			"from", fmt.Sprintf("%dx%d", old.width, old.height),
			"to", fmt.Sprintf("%dx%d", width, height))
		p.slots[slot] = nil
		if err := p.destroy(old, true, false); err != nil {
			return nil, fmt.Errorf("destroy buffer: %w", err)
		}
	}

	stride := Stride(width, p.align)
	b := &Buffer{
		slot:   slot,
		width:  width,
		height: height,
		stride: stride,
		size:   stride * height,
		format: p.format,
	}

	switch p.variant {
	case VariantFixed:
		b.offset = slot * p.slotSize
		b.region = p.region
		wire, err := p.wire.CreateBuffer(int32(b.offset), int32(width), int32(height), int32(stride), p.format)
		if err != nil {
			return nil, fmt.Errorf("create buffer: %w", err)
		}
		b.wire = wire

	default:
		region, err := p.alloc.Allocate(b.size)
		if err != nil {
			return nil, fmt.Errorf("allocate %d byte region: %w", b.size, err)
		}
		shm, err := p.shm.CreatePool(region.FD(), int32(b.size))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("create shm pool: %w", err), region.Close())
		}
		wire, err := shm.CreateBuffer(0, int32(width), int32(height), int32(stride), p.format)
		if err != nil {
			return nil, multierr.Combine(fmt.Errorf("create buffer: %w", err), shm.Destroy(), region.Close())
		}
		b.region = region
		b.shm = shm
		b.wire = wire
	}

	p.log.Debug("buffer allocated", "slot", slot, "id", b.wire.ID(),
		"width", width, "height", height, "stride", stride)
	return b, nil
}

// destroy releases b. Committed buffers may only be destroyed during
// teardown; graceful selects whether destroy requests are sent.
func (p *Pool) destroy(b *Buffer, graceful, teardown bool) error {
	if b.state == StateCommitted && !teardown {
		panic(fmt.Sprintf("present: destroying %v", b))
	}

	var err error
	if graceful {
		err = multierr.Append(err, b.wire.Destroy())
		if b.shm != nil {
			err = multierr.Append(err, b.shm.Destroy())
		}
	}
	if p.variant == VariantRealloc {
		err = multierr.Append(err, b.region.Close())
	}
	b.state = StateFree
	b.region = nil
	return err
}

// Commit hands the frame's buffer to the compositor. The frame and its
// image must not be used afterwards.
func (p *Pool) Commit(f *Frame) *Buffer {
	b := p.take(f)
	b.state = StateCommitted
	return b
}

// Cancel returns a reserved buffer to the pool without presenting it.
func (p *Pool) Cancel(f *Frame) {
	b := p.take(f)
	b.state = StateFree
}

func (p *Pool) take(f *Frame) *Buffer {
	if f == nil || f.buf == nil {
		panic("present: frame already consumed")
	}
	b := f.buf
	if b.state != StateReserved || p.slots[b.slot] != b {
		panic(fmt.Sprintf("present: frame does not own %v", b))
	}
	f.img.detach()
	f.buf = nil
	f.img = nil
	return b
}

// Release marks the buffer with the given compositor id free again. It
// reports whether a committed buffer was returned.
func (p *Pool) Release(id uint32) bool {
	for _, b := range p.slots {
		if b == nil || b.wire.ID() != id {
			continue
		}
		if b.state != StateCommitted {
			p.log.Warn("release for buffer not committed", "id", id, "state", b.state)
			return false
		}
		b.state = StateFree
		return true
	}
	p.log.Warn("release for unknown buffer", "id", id)
	return false
}

// Close destroys every buffer regardless of state and releases shared
// memory. It is only valid while tearing the surface down: graceful sends
// destroy requests, otherwise the connection is assumed gone.
func (p *Pool) Close(graceful bool) error {
	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	for i, b := range p.slots {
		if b == nil {
			continue
		}
		err = multierr.Append(err, p.destroy(b, graceful, true))
		p.slots[i] = nil
	}
	if p.variant == VariantFixed {
		if graceful {
			err = multierr.Append(err, p.wire.Destroy())
		}
		err = multierr.Append(err, p.region.Close())
	}
	return err
}
