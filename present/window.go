// Package present drives a Wayland surface from a pool of shared memory
// buffers.
//
// A Window sequences the configure handshake, acknowledges every
// configure serial in receipt order, paces drawing to the compositor's
// frame callbacks and tracks which pooled buffers the compositor still
// reads. It is single-threaded: events are fed to Window.Handle by one
// dispatch loop and every request it emits is non-blocking.
package present

import (
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"
)

// State is the presentation state of a Window.
type State int

const (
	// Unconfigured windows have a surface and role but have not committed.
	Unconfigured State = iota
	// AwaitingFirstConfigure windows made their initial empty commit.
	AwaitingFirstConfigure
	// Ready windows have acknowledged a configure and may attach buffers.
	Ready
	// Closing is terminal; no further commits are issued.
	Closing
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case AwaitingFirstConfigure:
		return "awaiting-first-configure"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DrawFunc renders into a reserved frame. time is the frame callback
// timestamp in milliseconds, zero for the first frame.
type DrawFunc func(f *Frame, time uint32) error

// Stats is a snapshot of a window's presentation counters.
type Stats struct {
	PacerStats
	InFlight int
	Width    int
	Height   int
}

// Window is the presentation state machine for one surface.
type Window struct {
	cfg     Config
	log     *slog.Logger
	surface Surface
	role    Role
	scaler  Scaler
	pool    *Pool
	pacer   *Pacer
	resize  *Negotiator
	draw    DrawFunc

	state State
	err   error

	lastAcked uint32
	acked     bool
}

// NewWindow wraps a surface that already has its role. The window does
// nothing until Start.
func NewWindow(cfg Config, ch Channel, draw DrawFunc) (*Window, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if ch.Surface == nil || ch.Role == nil || ch.Shm == nil || ch.Allocator == nil {
		return nil, errors.New("incomplete channel")
	}
	if cfg.Clamped() && ch.Scaler == nil {
		return nil, errors.New("clamped buffer size needs a scaler")
	}

	pool, err := NewPool(cfg, ch.Shm, ch.Allocator)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	log := cfg.Logger.With("component", "window")
	return &Window{
		cfg:     cfg,
		log:     log,
		surface: ch.Surface,
		role:    ch.Role,
		scaler:  ch.Scaler,
		pool:    pool,
		pacer:   NewPacer(ch.Surface, cfg.Logger.With("component", "pacer")),
		resize:  NewNegotiator(cfg),
		draw:    draw,
	}, nil
}

// State returns the current presentation state.
func (w *Window) State() State { return w.state }

// Closed reports whether the window reached Closing.
func (w *Window) Closed() bool { return w.state == Closing }

// Err returns the failure that closed the window, if any.
func (w *Window) Err() error { return w.err }

// Pool returns the window's buffer pool.
func (w *Window) Pool() *Pool { return w.pool }

// Stats returns presentation counters.
func (w *Window) Stats() Stats {
	width, height := w.resize.Size()
	return Stats{
		PacerStats: w.pacer.Stats(),
		InFlight:   w.pool.InFlight(),
		Width:      width,
		Height:     height,
	}
}

// Start pins the size if configured and makes the initial commit without
// a buffer, which asks the compositor for the first configure.
func (w *Window) Start() error {
	if w.state != Unconfigured {
		return fmt.Errorf("window already started (%v)", w.state)
	}
	if w.cfg.Pinned {
		width, height := int32(w.cfg.Width), int32(w.cfg.Height)
		if err := w.role.SetMinSize(width, height); err != nil {
			return w.disconnect(err)
		}
		if err := w.role.SetMaxSize(width, height); err != nil {
			return w.disconnect(err)
		}
	}
	if err := w.surface.Commit(); err != nil {
		return w.disconnect(err)
	}
	w.state = AwaitingFirstConfigure
	return nil
}

// Handle processes one inbound event. A non-nil error is fatal and the
// window is Closing afterwards; a close request returns nil.
func (w *Window) Handle(ev Event) error {
	if w.state == Closing {
		return nil
	}

	switch e := ev.(type) {
	case ConfigureEvent:
		return w.configure(e)

	case CloseEvent:
		w.log.Info("close requested")
		w.resize.Close()
		return w.closeIfStopped()

	case ReleaseEvent:
		if w.pool.Release(e.Buffer) && w.pacer.Starved() {
			return w.frame(w.pacer.LastTime())
		}
		return nil

	case FrameEvent:
		time, ok := w.pacer.Done(e.Callback, e.Time)
		if !ok {
			return nil
		}
		return w.frame(time)

	case DisconnectEvent:
		return w.disconnect(e.Err)
	}
	return fmt.Errorf("unexpected event %T", ev)
}

// Close tears the window down as if the compositor had asked for it.
func (w *Window) Close() error {
	w.resize.Close()
	return w.closeIfStopped()
}

func (w *Window) configure(e ConfigureEvent) error {
	if w.acked && e.Serial == w.lastAcked {
		w.log.Warn("ignoring repeated configure", "serial", e.Serial)
		return nil
	}
	if err := w.ack(e.Serial); err != nil {
		return err
	}

	changed := w.resize.Propose(e.Width, e.Height)
	w.log.Debug("configure", "serial", e.Serial, "width", e.Width, "height", e.Height,
		"states", e.States, "changed", changed)

	switch w.state {
	case Unconfigured, AwaitingFirstConfigure:
		w.state = Ready
		return w.frame(0)
	case Ready:
		if changed && w.pacer.Idle() {
			return w.frame(w.pacer.LastTime())
		}
	}
	return nil
}

// ack acknowledges the configure just received. Each serial is
// acknowledged once; a second ack means the window lost track of the
// handshake and it is closed.
func (w *Window) ack(serial uint32) error {
	if w.acked && serial == w.lastAcked {
		return w.fatal(fmt.Errorf("%w: %d already acknowledged", ErrStaleSerial, serial))
	}
	if err := w.role.AckConfigure(serial); err != nil {
		return w.disconnect(err)
	}
	w.lastAcked, w.acked = serial, true
	return nil
}

// frame runs one draw cycle. ErrBusy skips the cycle but keeps a frame
// callback armed so the loop does not stall.
func (w *Window) frame(time uint32) error {
	if w.state != Ready {
		return nil
	}

	plan := w.resize.Plan()
	f, err := w.pool.Acquire(plan.BufferWidth, plan.BufferHeight)
	switch {
	case errors.Is(err, ErrBusy):
		w.log.Debug("all buffers busy, skipping frame", "in_flight", w.pool.InFlight())
		w.pacer.Skip()
		if err := w.pacer.Arm(); err != nil {
			return w.disconnect(err)
		}
		return nil
	case err != nil:
		return w.fatal(fmt.Errorf("acquire buffer: %w", err))
	}

	if plan.Realloc {
		w.log.Debug("buffer size changed", "width", plan.BufferWidth, "height", plan.BufferHeight, "scaled", plan.Scaled)
	}

	if w.draw != nil {
		if err := w.draw(f, time); err != nil {
			w.pool.Cancel(f)
			return w.fatal(fmt.Errorf("draw: %w", err))
		}
	}
	return w.present(f, plan)
}

func (w *Window) present(f *Frame, plan ResizePlan) error {
	if !w.acked {
		panic(ErrNotConfigured)
	}

	if err := w.pacer.Arm(); err != nil {
		w.pool.Cancel(f)
		return w.disconnect(err)
	}
	if w.scaler != nil && w.resize.LogicalChanged(plan) {
		if err := w.scaler.SetDestination(int32(plan.Width), int32(plan.Height)); err != nil {
			w.pool.Cancel(f)
			return w.disconnect(err)
		}
	}

	b := w.pool.Commit(f)
	if err := w.surface.Attach(b.Wire()); err != nil {
		return w.disconnect(err)
	}
	if err := w.surface.DamageBuffer(0, 0, int32(b.Width()), int32(b.Height())); err != nil {
		return w.disconnect(err)
	}
	if err := w.surface.Commit(); err != nil {
		return w.disconnect(err)
	}

	w.resize.Apply(plan)
	w.pacer.Committed()
	return nil
}

func (w *Window) closeIfStopped() error {
	if w.resize.Running() {
		return nil
	}
	return w.shutdown(true, nil)
}

func (w *Window) fatal(err error) error {
	w.log.Error("window failed", "err", err)
	return w.shutdown(true, err)
}

func (w *Window) disconnect(err error) error {
	if err == nil {
		err = ErrClosed
	}
	w.log.Error("channel failed", "err", err)
	return w.shutdown(false, fmt.Errorf("channel: %w", err))
}

// shutdown enters Closing and releases every resource. Without graceful
// the connection is gone and only local memory is released.
func (w *Window) shutdown(graceful bool, cause error) error {
	if w.state == Closing {
		return cause
	}
	w.state = Closing
	w.err = cause
	w.pacer.Reset()

	err := w.pool.Close(graceful)
	if graceful {
		if w.scaler != nil {
			err = multierr.Append(err, w.scaler.Destroy())
		}
		err = multierr.Append(err, w.role.Destroy())
		err = multierr.Append(err, w.surface.Destroy())
	}
	if err != nil {
		w.log.Warn("teardown incomplete", "err", err)
	}
	return cause
}
