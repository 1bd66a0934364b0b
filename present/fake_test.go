package present

import (
	"errors"
	"fmt"
	"testing"
)

// recorder is an in-memory compositor connection that logs every request
// in the order it was issued.
type recorder struct {
	nextID  uint32
	nextFD  int
	log     []string
	regions []*fakeRegion

	failOn  string
	failErr error
}

func newRecorder() *recorder {
	return &recorder{nextID: 100, nextFD: 10}
}

func (r *recorder) id() uint32 {
	id := r.nextID
	r.nextID++
	return id
}

func (r *recorder) record(op, format string, args ...any) error {
	if r.failOn == op {
		return r.failErr
	}
	r.log = append(r.log, fmt.Sprintf(op+format, args...))
	return nil
}

// take returns and clears the request log.
func (r *recorder) take() []string {
	l := r.log
	r.log = nil
	return l
}

func (r *recorder) openRegions() int {
	n := 0
	for _, reg := range r.regions {
		if !reg.closed {
			n++
		}
	}
	return n
}

type fakeRegion struct {
	fd     int
	data   []byte
	closed bool
}

func (g *fakeRegion) FD() int       { return g.fd }
func (g *fakeRegion) Bytes() []byte { return g.data }
func (g *fakeRegion) Size() int     { return len(g.data) }

func (g *fakeRegion) Close() error {
	if g.closed {
		return errors.New("region closed twice")
	}
	g.closed = true
	return nil
}

type fakeAllocator struct{ r *recorder }

func (a fakeAllocator) Allocate(size int) (Region, error) {
	if a.r.failOn == "alloc" {
		return nil, a.r.failErr
	}
	g := &fakeRegion{fd: a.r.nextFD, data: make([]byte, size)}
	a.r.nextFD++
	a.r.regions = append(a.r.regions, g)
	return g, nil
}

type fakeShm struct{ r *recorder }

func (s fakeShm) CreatePool(fd int, size int32) (ShmPool, error) {
	id := s.r.id()
	if err := s.r.record("create_pool", " %d fd=%d size=%d", id, fd, size); err != nil {
		return nil, err
	}
	return fakeShmPool{id: id, r: s.r}, nil
}

type fakeShmPool struct {
	id uint32
	r  *recorder
}

func (p fakeShmPool) CreateBuffer(offset, width, height, stride int32, format Format) (WireBuffer, error) {
	id := p.r.id()
	if err := p.r.record("create_buffer", " %d offset=%d %dx%d stride=%d", id, offset, width, height, stride); err != nil {
		return nil, err
	}
	return fakeBuffer{id: id, r: p.r}, nil
}

func (p fakeShmPool) Destroy() error {
	return p.r.record("destroy_pool", " %d", p.id)
}

type fakeBuffer struct {
	id uint32
	r  *recorder
}

func (b fakeBuffer) ID() uint32 { return b.id }

func (b fakeBuffer) Destroy() error {
	return b.r.record("destroy_buffer", " %d", b.id)
}

type fakeCallback uint32

func (c fakeCallback) ID() uint32 { return uint32(c) }

type fakeSurface struct{ r *recorder }

func (s fakeSurface) Attach(b WireBuffer) error {
	return s.r.record("attach", " %d", b.ID())
}

func (s fakeSurface) DamageBuffer(x, y, width, height int32) error {
	return s.r.record("damage", " %d %d %d %d", x, y, width, height)
}

func (s fakeSurface) Commit() error { return s.r.record("commit", "") }

func (s fakeSurface) Frame() (Callback, error) {
	id := s.r.id()
	if err := s.r.record("frame", " %d", id); err != nil {
		return nil, err
	}
	return fakeCallback(id), nil
}

func (s fakeSurface) Destroy() error { return s.r.record("destroy_surface", "") }

type fakeRole struct{ r *recorder }

func (o fakeRole) AckConfigure(serial uint32) error {
	return o.r.record("ack", " %d", serial)
}

func (o fakeRole) SetMinSize(width, height int32) error {
	return o.r.record("min_size", " %dx%d", width, height)
}

func (o fakeRole) SetMaxSize(width, height int32) error {
	return o.r.record("max_size", " %dx%d", width, height)
}

func (o fakeRole) Destroy() error { return o.r.record("destroy_role", "") }

type fakeScaler struct{ r *recorder }

func (s fakeScaler) SetDestination(width, height int32) error {
	return s.r.record("destination", " %dx%d", width, height)
}

func (s fakeScaler) Destroy() error { return s.r.record("destroy_viewport", "") }

func newFakeChannel(r *recorder, scaled bool) Channel {
	ch := Channel{
		Surface:   fakeSurface{r},
		Role:      fakeRole{r},
		Shm:       fakeShm{r},
		Allocator: fakeAllocator{r},
	}
	if scaled {
		ch.Scaler = fakeScaler{r}
	}
	return ch
}

// newTestWindow returns a started window; the initial empty commit has
// already been taken from the log.
func newTestWindow(t *testing.T, cfg Config, draw DrawFunc) (*Window, *recorder) {
	t.Helper()
	r := newRecorder()
	w, err := NewWindow(cfg, newFakeChannel(r, cfg.Clamped()), draw)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.take()
	return w, r
}

func mustHandle(t *testing.T, w *Window, ev Event) {
	t.Helper()
	if err := w.Handle(ev); err != nil {
		t.Fatalf("Handle(%#v): %v", ev, err)
	}
}
