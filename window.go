package wlpresent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/eapache/queue"
	"go.uber.org/multierr"

	"github.com/bnema/wlpresent/present"
)

// Protocol versions this package speaks.
const (
	compositorVersion = 4 // damage_buffer
	shmVersion        = 1
	xdgWmBaseVersion  = 2
	viewporterVersion = 1
	decorationVersion = 1
)

// WindowConfig describes a toplevel window.
type WindowConfig struct {
	present.Config

	Title string
	AppID string

	// ServerDecorations asks for compositor drawn decorations when the
	// compositor offers them.
	ServerDecorations bool
}

// Window is an xdg_toplevel presenting shared memory buffers.
type Window struct {
	display *Display
	cfg     WindowConfig
	log     *slog.Logger

	compositor *Compositor
	shm        *Shm
	wmBase     *XdgWmBase
	viewporter *Viewporter
	decorator  *DecorationManager

	surface    *Surface
	xdgSurface *XdgSurface
	toplevel   *XdgToplevel
	viewport   *Viewport
	decoration *ToplevelDecoration

	core   *present.Window
	events *queue.Queue // present.Event, in arrival order

	// toplevel configure state waiting for the xdg_surface serial
	pendingWidth  int32
	pendingHeight int32
	pendingStates []uint32
}

// NewWindow binds the globals a window needs, creates the surface and its
// role and makes the initial commit. draw is called for every frame.
func NewWindow(d *Display, cfg WindowConfig, draw present.DrawFunc) (*Window, error) {
	if cfg.Logger == nil {
		cfg.Logger = Logger()
	}
	cfg.Config = cfg.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	w := &Window{
		display: d,
		cfg:     cfg,
		log:     cfg.Logger.With("component", "wlwindow"),
		events:  queue.New(),
	}
	if err := w.bind(); err != nil {
		return nil, err
	}
	if err := w.createSurface(); err != nil {
		return nil, err
	}

	ch := present.Channel{
		Surface:   surfaceChannel{surface: w.surface, w: w},
		Role:      roleChannel{xdg: w.xdgSurface, toplevel: w.toplevel, decoration: w.decoration},
		Shm:       shmChannel{shm: w.shm, w: w},
		Allocator: ShmAllocator{},
	}
	if w.viewport != nil {
		ch.Scaler = w.viewport
	}

	core, err := present.NewWindow(cfg.Config, ch, draw)
	if err != nil {
		return nil, err
	}
	w.core = core
	if err := core.Start(); err != nil {
		return nil, err
	}
	if err := d.Flush(); err != nil {
		return nil, err
	}
	w.log.Info("window created",
		"width", cfg.Width, "height", cfg.Height,
		"capacity", cfg.Capacity, "variant", cfg.Variant, "format", cfg.Format)
	return w, nil
}

// bind waits for the registry to be populated and binds every global the
// window uses. wp_viewporter is required only for clamped buffers.
func (w *Window) bind() error {
	reg := w.display.Registry()
	if len(reg.Globals()) == 0 {
		if err := w.display.Roundtrip(); err != nil {
			return fmt.Errorf("registry roundtrip: %w", err)
		}
	}

	w.compositor = &Compositor{}
	w.shm = &Shm{}
	w.wmBase = &XdgWmBase{}
	required := []struct {
		iface   string
		version uint32
		proxy   Proxy
	}{
		{InterfaceCompositor, compositorVersion, w.compositor},
		{InterfaceShm, shmVersion, w.shm},
		{InterfaceXdgWmBase, xdgWmBaseVersion, w.wmBase},
	}
	for _, g := range required {
		if _, err := reg.BindInterface(g.iface, g.version, g.proxy); err != nil {
			return err
		}
	}

	if g, ok := reg.FindGlobal(InterfaceCompositor); ok && g.Version < compositorVersion {
		return fmt.Errorf("%s version %d is too old, need %d", InterfaceCompositor, g.Version, compositorVersion)
	}

	vp := &Viewporter{}
	if _, err := reg.BindInterface(InterfaceViewporter, viewporterVersion, vp); err == nil {
		w.viewporter = vp
	} else if w.cfg.Clamped() {
		return fmt.Errorf("clamped buffers need a viewport: %w", err)
	}

	if w.cfg.ServerDecorations {
		dm := &DecorationManager{}
		if _, err := reg.BindInterface(InterfaceDecorationManager, decorationVersion, dm); err == nil {
			w.decorator = dm
		} else {
			w.log.Info("server side decorations unavailable")
		}
	}

	// Collect wl_shm.format events.
	if err := w.display.Roundtrip(); err != nil {
		return fmt.Errorf("shm roundtrip: %w", err)
	}
	if !w.shm.HasFormat(shmFormat(w.cfg.Format)) {
		return fmt.Errorf("shm format %v not supported", w.cfg.Format)
	}
	return nil
}

func (w *Window) createSurface() error {
	var err error
	if w.surface, err = w.compositor.CreateSurface(); err != nil {
		return fmt.Errorf("create surface: %w", err)
	}
	if w.xdgSurface, err = w.wmBase.GetXdgSurface(w.surface); err != nil {
		return fmt.Errorf("create xdg surface: %w", err)
	}
	if w.toplevel, err = w.xdgSurface.GetToplevel(); err != nil {
		return fmt.Errorf("create toplevel: %w", err)
	}

	w.xdgSurface.OnConfigure = w.configure
	w.toplevel.OnConfigure = func(width, height int32, states []uint32) {
		w.pendingWidth, w.pendingHeight, w.pendingStates = width, height, states
	}
	w.toplevel.OnClose = func() { w.push(present.CloseEvent{}) }
	w.toplevel.OnConfigureBounds = func(width, height int32) {
		w.log.Debug("configure bounds", "width", width, "height", height)
	}

	if w.cfg.Title != "" {
		if err := w.toplevel.SetTitle(w.cfg.Title); err != nil {
			return err
		}
	}
	if w.cfg.AppID != "" {
		if err := w.toplevel.SetAppID(w.cfg.AppID); err != nil {
			return err
		}
	}

	if w.decorator != nil {
		if w.decoration, err = w.decorator.GetToplevelDecoration(w.toplevel); err != nil {
			return fmt.Errorf("create decoration: %w", err)
		}
		w.decoration.OnConfigure = func(mode uint32) {
			w.log.Debug("decoration mode", "server_side", mode == DecorationServerSide)
		}
		if err := w.decoration.SetMode(DecorationServerSide); err != nil {
			return err
		}
	}

	if w.viewporter != nil && w.cfg.Clamped() {
		if w.viewport, err = w.viewporter.GetViewport(w.surface); err != nil {
			return fmt.Errorf("create viewport: %w", err)
		}
	}

	if w.cfg.Format.Opaque() {
		region, err := w.compositor.CreateRegion()
		if err != nil {
			return err
		}
		err = multierr.Combine(
			region.Add(0, 0, math.MaxInt32, math.MaxInt32),
			w.surface.SetOpaqueRegion(region),
			region.Destroy(),
		)
		if err != nil {
			return fmt.Errorf("opaque region: %w", err)
		}
	}
	return nil
}

// configure ends a configure sequence: the toplevel state received since
// the previous one applies with this serial.
func (w *Window) configure(serial uint32) {
	w.push(present.ConfigureEvent{
		Serial: serial,
		Width:  w.pendingWidth,
		Height: w.pendingHeight,
		States: w.pendingStates,
	})
	w.pendingWidth, w.pendingHeight, w.pendingStates = 0, 0, nil
}

func (w *Window) push(ev present.Event) {
	w.events.Add(ev)
}

// drain hands queued events to the state machine.
func (w *Window) drain() error {
	for w.events.Length() > 0 {
		ev := w.events.Remove().(present.Event)
		if err := w.core.Handle(ev); err != nil {
			return err
		}
	}
	return nil
}

// Closed reports whether the window reached its terminal state.
func (w *Window) Closed() bool { return w.core.Closed() }

// Err returns the failure that closed the window, if any.
func (w *Window) Err() error { return w.core.Err() }

// Stats returns presentation counters.
func (w *Window) Stats() present.Stats { return w.core.Stats() }

// Core returns the presentation state machine.
func (w *Window) Core() *present.Window { return w.core }

// Close destroys the window and flushes the destroy requests.
func (w *Window) Close() error {
	err := w.core.Close()
	return multierr.Append(err, w.display.Flush())
}

// Run dispatches events one at a time until the window closes. It
// returns nil after a close request, ctx.Err() when ctx is cancelled and
// the fatal error otherwise.
func (w *Window) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, w.display.interrupt)
	defer stop()

	for !w.core.Closed() {
		if err := w.display.Dispatch(); err != nil {
			if ctx.Err() != nil {
				w.display.resume()
				return w.cancel(ctx)
			}
			w.push(present.DisconnectEvent{Err: err})
		}
		if err := w.step(); err != nil {
			return err
		}
	}
	return w.finish()
}

// step drains events and flushes the requests they produced.
func (w *Window) step() error {
	if err := w.drain(); err != nil {
		w.flushTeardown()
		return err
	}
	if w.core.Closed() {
		return nil
	}
	if err := w.display.Flush(); err != nil {
		w.push(present.DisconnectEvent{Err: err})
		return w.drain()
	}
	return nil
}

func (w *Window) finish() error {
	w.flushTeardown()
	return w.core.Err()
}

func (w *Window) cancel(ctx context.Context) error {
	w.log.Info("cancelled", "err", ctx.Err())
	if err := w.Close(); err != nil && !errors.Is(err, ErrClosed) {
		w.log.Warn("close after cancel", "err", err)
	}
	return ctx.Err()
}

// flushTeardown sends the destroy requests of a closed window. The
// connection may already be gone.
func (w *Window) flushTeardown() {
	if err := w.display.Flush(); err != nil {
		w.log.Debug("teardown flush failed", "err", err)
	}
}
