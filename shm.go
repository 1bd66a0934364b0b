package wlpresent

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Wayland pixel formats every compositor supports.
const (
	FormatARGB8888 = 0
	FormatXRGB8888 = 1
)

// Shm is a wl_shm global.
type Shm struct {
	BaseProxy
	mu      sync.Mutex
	formats []uint32
}

// Dispatch records format (0) announcements.
func (s *Shm) Dispatch(event *Event) {
	if event.Opcode != 0 {
		return
	}
	s.mu.Lock()
	s.formats = append(s.formats, event.Uint32())
	s.mu.Unlock()
}

// Formats returns the formats announced so far.
func (s *Shm) Formats() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.formats...)
}

// HasFormat reports whether format is usable. ARGB8888 and XRGB8888 are
// always supported.
func (s *Shm) HasFormat(format uint32) bool {
	if format == FormatARGB8888 || format == FormatXRGB8888 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.formats {
		if f == format {
			return true
		}
	}
	return false
}

// CreatePool shares size bytes of fd with the compositor. The descriptor
// is duplicated; the caller keeps ownership of fd.
func (s *Shm) CreatePool(fd int, size int32) (*ShmPool, error) {
	p := &ShmPool{size: size}
	if err := s.context.create(s, 0, p, uintptr(fd), size); err != nil {
		return nil, err
	}
	return p, nil
}

// ShmPool is a wl_shm_pool.
type ShmPool struct {
	BaseProxy
	size int32
}

// CreateBuffer describes a buffer at offset within the pool.
func (p *ShmPool) CreateBuffer(offset, width, height, stride int32, format uint32) (*Buffer, error) {
	if offset < 0 || int64(offset)+int64(stride)*int64(height) > int64(p.size) {
		return nil, fmt.Errorf("buffer %dx%d stride %d at %d exceeds pool of %d bytes", width, height, stride, offset, p.size)
	}
	b := &Buffer{}
	if err := p.context.create(p, 0, b, offset, width, height, stride, format); err != nil {
		return nil, err
	}
	return b, nil
}

// Destroy destroys the pool. Buffers created from it stay valid.
func (p *ShmPool) Destroy() error {
	return p.context.destroy(p, 1)
}

// Size returns the pool size in bytes.
func (p *ShmPool) Size() int32 {
	return p.size
}

// Buffer is a wl_buffer.
type Buffer struct {
	BaseProxy

	// OnRelease is called when the compositor no longer reads the buffer.
	OnRelease func(b *Buffer)
}

// Dispatch handles release (0).
func (b *Buffer) Dispatch(event *Event) {
	if event.Opcode == 0 && b.OnRelease != nil {
		b.OnRelease(b)
	}
}

// Destroy destroys the buffer
func (b *Buffer) Destroy() error {
	return b.context.destroy(b, 0)
}

// ShmRegion is a mapped anonymous file shared with the compositor.
type ShmRegion struct {
	fd   int
	size int
	data []byte
}

// NewShmRegion creates and maps an anonymous file of size bytes.
func NewShmRegion(size int) (*ShmRegion, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid region size %d", size)
	}
	fd, err := CreateAnonymousFile(int64(size))
	if err != nil {
		return nil, fmt.Errorf("failed to create anonymous file: %w", err)
	}

	data, err := MapMemory(fd, size)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to map memory: %w", err)
	}

	return &ShmRegion{fd: fd, size: size, data: data}, nil
}

// Close unmaps the memory and closes the file.
func (r *ShmRegion) Close() error {
	if r.data != nil {
		if err := UnmapMemory(r.data); err != nil {
			return err
		}
		r.data = nil
	}

	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil {
			return err
		}
		r.fd = -1
	}
	return nil
}

// Bytes returns the memory-mapped data
func (r *ShmRegion) Bytes() []byte {
	return r.data
}

// FD returns the file descriptor
func (r *ShmRegion) FD() int {
	return r.fd
}

// Size returns the region size
func (r *ShmRegion) Size() int {
	return r.size
}
