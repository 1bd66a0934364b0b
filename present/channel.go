package present

// The interfaces below are the boundary with the compositor connection.
// Every call is a request queued on the channel; none of them block.

// Callback is a one-shot frame callback token.
type Callback interface {
	ID() uint32
}

// WireBuffer is the compositor-side handle of a pixel buffer.
type WireBuffer interface {
	ID() uint32
	Destroy() error
}

// ShmPool is a compositor-side view of a shared memory region.
type ShmPool interface {
	CreateBuffer(offset, width, height, stride int32, format Format) (WireBuffer, error)
	Destroy() error
}

// Shm creates compositor-side pools from shared memory descriptors.
type Shm interface {
	CreatePool(fd int, size int32) (ShmPool, error)
}

// Surface is the drawable the window presents into.
type Surface interface {
	Attach(buffer WireBuffer) error
	DamageBuffer(x, y, width, height int32) error
	Commit() error
	Frame() (Callback, error)
	Destroy() error
}

// Role is the window role assigned to the surface, exactly once.
type Role interface {
	AckConfigure(serial uint32) error
	SetMinSize(width, height int32) error
	SetMaxSize(width, height int32) error
	Destroy() error
}

// Scaler presents a buffer at a different logical size.
type Scaler interface {
	SetDestination(width, height int32) error
	Destroy() error
}

// Region is a mapped shared memory region.
type Region interface {
	FD() int
	Bytes() []byte
	Size() int
	Close() error
}

// Allocator creates shared memory regions.
type Allocator interface {
	Allocate(size int) (Region, error)
}

// Channel groups the compositor objects a Window drives.
type Channel struct {
	Surface   Surface
	Role      Role
	Scaler    Scaler // required only when buffer dimensions are clamped
	Shm       Shm
	Allocator Allocator
}

// Event is an inbound notification for a Window.
type Event interface {
	event()
}

// ConfigureEvent proposes a surface size. Zero on an axis means the
// compositor has no preference.
type ConfigureEvent struct {
	Serial uint32
	Width  int32
	Height int32
	States []uint32
}

// CloseEvent asks the client to close the window.
type CloseEvent struct{}

// ReleaseEvent returns ownership of a committed buffer.
type ReleaseEvent struct {
	Buffer uint32
}

// FrameEvent fires a one-shot frame callback. Time is in milliseconds
// with an undefined base.
type FrameEvent struct {
	Callback uint32
	Time     uint32
}

// DisconnectEvent reports that the channel failed.
type DisconnectEvent struct {
	Err error
}

func (ConfigureEvent) event()  {}
func (CloseEvent) event()      {}
func (ReleaseEvent) event()    {}
func (FrameEvent) event()      {}
func (DisconnectEvent) event() {}
