package present

import (
	"errors"
	"testing"
)

func newTestPool(t *testing.T, cfg Config) (*Pool, *recorder) {
	t.Helper()
	r := newRecorder()
	p, err := NewPool(cfg, fakeShm{r}, fakeAllocator{r})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p, r
}

func mustAcquire(t *testing.T, p *Pool, width, height int) *Frame {
	t.Helper()
	f, err := p.Acquire(width, height)
	if err != nil {
		t.Fatalf("Acquire(%d, %d): %v", width, height, err)
	}
	return f
}

func TestPoolCapacityBound(t *testing.T) {
	for _, capacity := range []int{1, 2, 3, 5} {
		p, r := newTestPool(t, Config{Capacity: capacity})

		for i := 0; i < capacity; i++ {
			p.Commit(mustAcquire(t, p, 64, 64))
		}
		for i := 0; i < 3; i++ {
			if _, err := p.Acquire(64, 64); !errors.Is(err, ErrBusy) {
				t.Fatalf("capacity %d: Acquire = %v, want ErrBusy", capacity, err)
			}
		}
		if got := p.InFlight(); got != capacity {
			t.Errorf("capacity %d: in flight = %d", capacity, got)
		}
		if got := len(r.regions); got != capacity {
			t.Errorf("capacity %d: allocated %d regions", capacity, got)
		}
	}
}

func TestPoolReservedCountsAgainstCapacity(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1})
	f := mustAcquire(t, p, 10, 10)
	if _, err := p.Acquire(10, 10); !errors.Is(err, ErrBusy) {
		t.Fatalf("Acquire = %v, want ErrBusy", err)
	}
	p.Cancel(f)
	mustAcquire(t, p, 10, 10)
}

func TestPoolReleaseIsIdempotent(t *testing.T) {
	p, _ := newTestPool(t, Config{})
	b := p.Commit(mustAcquire(t, p, 32, 32))

	if !p.Release(b.ID()) {
		t.Fatal("first release should free the buffer")
	}
	if p.Release(b.ID()) {
		t.Error("second release should be ignored")
	}
	if p.Release(12345) {
		t.Error("release of unknown id should be ignored")
	}
	if b.State() != StateFree {
		t.Errorf("state = %v, want %v", b.State(), StateFree)
	}

	f := mustAcquire(t, p, 32, 32)
	if f.buf != b {
		t.Error("released buffer should be reused")
	}
}

func TestPoolReleaseOfReservedBufferIgnored(t *testing.T) {
	p, _ := newTestPool(t, Config{})
	f := mustAcquire(t, p, 32, 32)
	if p.Release(f.buf.ID()) {
		t.Error("release of a reserved buffer should be ignored")
	}
	if f.buf.State() != StateReserved {
		t.Errorf("state = %v, want %v", f.buf.State(), StateReserved)
	}
}

func TestPoolWriteAfterCommitPanics(t *testing.T) {
	p, _ := newTestPool(t, Config{})
	f := mustAcquire(t, p, 8, 8)
	img := f.Image()
	img.SetARGB(1, 1, 0xffffffff)
	p.Commit(f)

	for name, write := range map[string]func(){
		"image":     func() { img.SetARGB(0, 0, 0) },
		"fill":      func() { img.Fill(0) },
		"frame":     func() { f.Image() },
		"recommit":  func() { p.Commit(f) },
		"cancel":    func() { p.Cancel(f) },
		"dimension": func() { _ = f.Width() },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			write()
		})
	}
}

func TestPoolKeptImageStaysDetached(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 1})
	f := mustAcquire(t, p, 8, 8)
	kept := f.Image()
	b := p.Commit(f)
	p.Release(b.ID())

	// The same buffer is reserved again for the next frame.
	next := mustAcquire(t, p, 8, 8)
	next.Image().Fill(0xff00ff00)

	if kept.Pix != nil || !kept.Bounds().Empty() {
		t.Errorf("kept image still exposes %d bytes, bounds %v", len(kept.Pix), kept.Bounds())
	}
	if got := kept.ARGB(0, 0); got != 0 {
		t.Errorf("kept image reads %#x, want 0", got)
	}
	defer func() {
		if recover() != ErrWriteAfterCommit {
			t.Error("write through a kept image should panic with ErrWriteAfterCommit")
		}
	}()
	kept.SetARGB(0, 0, 0)
}

func TestPoolReallocatesFreeBufferOnResize(t *testing.T) {
	p, r := newTestPool(t, Config{})
	b := p.Commit(mustAcquire(t, p, 100, 100))
	p.Release(b.ID())
	r.take()

	f := mustAcquire(t, p, 200, 50)
	wantLog(t, r, []string{
		"destroy_buffer 101",
		"destroy_pool 100",
		"create_pool 102 fd=11 size=40000",
		"create_buffer 103 offset=0 200x50 stride=800",
	})
	if f.Width() != 200 || f.Height() != 50 {
		t.Errorf("frame = %dx%d, want 200x50", f.Width(), f.Height())
	}
	if !r.regions[0].closed {
		t.Error("old region should be closed")
	}
}

func TestPoolKeepsCommittedBufferOnResize(t *testing.T) {
	p, r := newTestPool(t, Config{})
	p.Commit(mustAcquire(t, p, 100, 100))
	r.take()

	mustAcquire(t, p, 120, 100)
	for _, req := range r.take() {
		if req == "destroy_buffer 101" {
			t.Fatal("committed buffer destroyed on resize")
		}
	}
}

func TestPoolStrideAlignment(t *testing.T) {
	p, r := newTestPool(t, Config{StrideAlign: 64})
	f := mustAcquire(t, p, 10, 3)
	if got := f.Image().Stride; got != 64 {
		t.Errorf("stride = %d, want 64", got)
	}
	wantLog(t, r, []string{
		"create_pool 100 fd=10 size=192",
		"create_buffer 101 offset=0 10x3 stride=64",
	})
}

func TestPoolFixedRejectsOversize(t *testing.T) {
	p, _ := newTestPool(t, Config{Variant: VariantFixed, MaxWidth: 64, MaxHeight: 64})
	if _, err := p.Acquire(65, 10); err == nil {
		t.Fatal("expected error for oversize buffer")
	}
	mustAcquire(t, p, 64, 64)
}

func TestPoolRejectsBufferOverRegionLimit(t *testing.T) {
	p, r := newTestPool(t, Config{})
	if _, err := p.Acquire(40000, 20000); err == nil {
		t.Fatal("expected error for a buffer larger than a shm pool can describe")
	}
	if n := len(r.regions); n != 0 {
		t.Errorf("allocated %d regions, want none", n)
	}
	mustAcquire(t, p, 64, 64)
}

func TestPoolFixedSlotsDoNotOverlap(t *testing.T) {
	p, _ := newTestPool(t, Config{Capacity: 3, Variant: VariantFixed, MaxWidth: 10, MaxHeight: 10})
	var frames []*Frame
	for i := 0; i < 3; i++ {
		f := mustAcquire(t, p, 10, 10)
		f.Image().Fill(uint32(i + 1))
		frames = append(frames, f)
	}
	for i, f := range frames {
		if got := f.Image().ARGB(9, 9) & 0xffffff; got != uint32(i+1) {
			t.Errorf("slot %d pixel = %#x, want %#x", i, got, i+1)
		}
		if f.buf.offset%slotAlign != 0 {
			t.Errorf("slot %d offset %d not aligned", i, f.buf.offset)
		}
	}
}

func TestPoolAllocationFailure(t *testing.T) {
	p, r := newTestPool(t, Config{})
	r.failOn = "alloc"
	r.failErr = errors.New("out of memory")

	_, err := p.Acquire(10, 10)
	if !errors.Is(err, r.failErr) {
		t.Fatalf("err = %v, want %v", err, r.failErr)
	}

	r.failOn = ""
	mustAcquire(t, p, 10, 10)
}

func TestPoolClosed(t *testing.T) {
	p, _ := newTestPool(t, Config{})
	if err := p.Close(true); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := p.Acquire(1, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after close = %v, want ErrClosed", err)
	}
	if err := p.Close(true); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewPoolValidates(t *testing.T) {
	r := newRecorder()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative capacity", Config{Capacity: -1}},
		{"fixed without max", Config{Variant: VariantFixed}},
		{"bad format", Config{Format: 7}},
		{"bad align", Config{StrideAlign: 6}},
		{"fixed region over 2 GiB", Config{Variant: VariantFixed, MaxWidth: 30000, MaxHeight: 30000}},
		{"clamp over 2 GiB", Config{MaxWidth: 30000, MaxHeight: 30000}},
		{"slots together over 2 GiB", Config{Capacity: 3, Variant: VariantFixed, MaxWidth: 16384, MaxHeight: 16384}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewPool(test.cfg, fakeShm{r}, fakeAllocator{r}); err == nil {
				t.Error("expected error")
			}
		})
	}
}
