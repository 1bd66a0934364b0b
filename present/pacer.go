package present

import "log/slog"

// PacerStats summarises frame pacing.
type PacerStats struct {
	Committed uint64
	Skipped   uint64
	LastTime  uint32
}

// Pacer keeps at most one frame callback outstanding and remembers
// whether a frame was skipped for lack of a free buffer.
type Pacer struct {
	surface Surface
	log     *slog.Logger

	pending Callback
	starved bool

	last     uint32
	haveLast bool

	committed uint64
	skipped   uint64
}

// NewPacer paces frames on surface.
func NewPacer(surface Surface, log *slog.Logger) *Pacer {
	return &Pacer{surface: surface, log: log}
}

// Arm requests a frame callback unless one is already outstanding. The
// request takes effect with the next surface commit.
func (p *Pacer) Arm() error {
	if p.pending != nil {
		return nil
	}
	cb, err := p.surface.Frame()
	if err != nil {
		return err
	}
	p.pending = cb
	return nil
}

// Done consumes a fired callback and returns its timestamp. Callbacks
// other than the outstanding one are ignored. Timestamps are compared
// modulo 2^32, so the millisecond counter wrapping around is progress.
func (p *Pacer) Done(id, time uint32) (uint32, bool) {
	if p.pending == nil || p.pending.ID() != id {
		p.log.Debug("ignoring stale frame callback", "id", id)
		return 0, false
	}
	p.pending = nil

	if p.haveLast && int32(time-p.last) < 0 {
		p.log.Warn("frame time went backwards", "time", time, "last", p.last)
		time = p.last
	}
	p.last, p.haveLast = time, true
	return time, true
}

// Skip records a frame that could not be drawn.
func (p *Pacer) Skip() {
	p.skipped++
	p.starved = true
}

// Committed records a presented frame.
func (p *Pacer) Committed() {
	p.committed++
	p.starved = false
}

// Idle reports whether no frame callback is outstanding.
func (p *Pacer) Idle() bool { return p.pending == nil }

// Starved reports whether the last cycle was skipped.
func (p *Pacer) Starved() bool { return p.starved }

// LastTime returns the most recent frame timestamp.
func (p *Pacer) LastTime() uint32 { return p.last }

// Stats returns counters since creation.
func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		Committed: p.committed,
		Skipped:   p.skipped,
		LastTime:  p.last,
	}
}

// Reset drops the outstanding callback; it can no longer fire.
func (p *Pacer) Reset() {
	p.pending = nil
	p.starved = false
}
