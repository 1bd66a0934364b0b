package wlpresent

// Interface names of the globals a window binds.
const (
	InterfaceCompositor        = "wl_compositor"
	InterfaceShm               = "wl_shm"
	InterfaceXdgWmBase         = "xdg_wm_base"
	InterfaceViewporter        = "wp_viewporter"
	InterfaceDecorationManager = "zxdg_decoration_manager_v1"
)

// xdg_toplevel states carried by configure.
const (
	StateMaximized   = 1
	StateFullscreen  = 2
	StateResizing    = 3
	StateActivated   = 4
	StateTiledLeft   = 5
	StateTiledRight  = 6
	StateTiledTop    = 7
	StateTiledBottom = 8
	StateSuspended   = 9
)

// Decoration modes of zxdg_toplevel_decoration_v1.
const (
	DecorationClientSide = 1
	DecorationServerSide = 2
)

// XdgWmBase is the xdg_wm_base global. Pings are answered as they are
// dispatched.
type XdgWmBase struct {
	BaseProxy
}

// GetXdgSurface assigns the xdg_surface role object to surface.
func (w *XdgWmBase) GetXdgSurface(surface *Surface) (*XdgSurface, error) {
	s := &XdgSurface{}
	if err := w.context.create(w, 2, s, surface); err != nil {
		return nil, err
	}
	return s, nil
}

// Dispatch handles ping (0).
func (w *XdgWmBase) Dispatch(event *Event) {
	if event.Opcode != 0 {
		return
	}
	serial := event.Uint32()
	if err := w.context.SendRequest(w, 3, serial); err != nil {
		w.display().log.Warn("pong failed", "serial", serial, "err", err)
	}
}

// Destroy destroys the wm base
func (w *XdgWmBase) Destroy() error {
	return w.context.destroy(w, 0)
}

// XdgSurface is an xdg_surface.
type XdgSurface struct {
	BaseProxy

	// OnConfigure receives the serial that ends a configure sequence.
	OnConfigure func(serial uint32)
}

// GetToplevel gives the surface the toplevel role.
func (s *XdgSurface) GetToplevel() (*XdgToplevel, error) {
	t := &XdgToplevel{}
	if err := s.context.create(s, 1, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AckConfigure acknowledges a configure serial.
func (s *XdgSurface) AckConfigure(serial uint32) error {
	return s.context.SendRequest(s, 4, serial)
}

// Dispatch handles configure (0).
func (s *XdgSurface) Dispatch(event *Event) {
	if event.Opcode == 0 && s.OnConfigure != nil {
		s.OnConfigure(event.Uint32())
	}
}

// Destroy destroys the xdg_surface
func (s *XdgSurface) Destroy() error {
	return s.context.destroy(s, 0)
}

// XdgToplevel is an xdg_toplevel.
type XdgToplevel struct {
	BaseProxy

	OnConfigure       func(width, height int32, states []uint32)
	OnClose           func()
	OnConfigureBounds func(width, height int32)
}

func (t *XdgToplevel) SetTitle(title string) error {
	return t.context.SendRequest(t, 2, title)
}

func (t *XdgToplevel) SetAppID(appID string) error {
	return t.context.SendRequest(t, 3, appID)
}

func (t *XdgToplevel) SetMaxSize(width, height int32) error {
	return t.context.SendRequest(t, 7, width, height)
}

func (t *XdgToplevel) SetMinSize(width, height int32) error {
	return t.context.SendRequest(t, 8, width, height)
}

// Dispatch handles configure (0), close (1) and configure_bounds (2).
func (t *XdgToplevel) Dispatch(event *Event) {
	switch event.Opcode {
	case 0:
		width, height := event.Int32(), event.Int32()
		states := event.Uint32Array()
		if t.OnConfigure != nil {
			t.OnConfigure(width, height, states)
		}
	case 1:
		if t.OnClose != nil {
			t.OnClose()
		}
	case 2:
		width, height := event.Int32(), event.Int32()
		if t.OnConfigureBounds != nil {
			t.OnConfigureBounds(width, height)
		}
	}
}

// Destroy destroys the toplevel
func (t *XdgToplevel) Destroy() error {
	return t.context.destroy(t, 0)
}

// Viewporter is the wp_viewporter global.
type Viewporter struct {
	BaseProxy
}

// GetViewport creates the viewport of surface.
func (v *Viewporter) GetViewport(surface *Surface) (*Viewport, error) {
	vp := &Viewport{}
	if err := v.context.create(v, 1, vp, surface); err != nil {
		return nil, err
	}
	return vp, nil
}

// Viewport is a wp_viewport. It scales the attached buffer to a
// destination size in surface coordinates.
type Viewport struct {
	BaseProxy
}

// SetDestination sets the surface size the buffer is scaled to; -1, -1
// unsets it.
func (v *Viewport) SetDestination(width, height int32) error {
	return v.context.SendRequest(v, 2, width, height)
}

// Destroy destroys the viewport
func (v *Viewport) Destroy() error {
	return v.context.destroy(v, 0)
}

// DecorationManager is the zxdg_decoration_manager_v1 global.
type DecorationManager struct {
	BaseProxy
}

// GetToplevelDecoration must be called before the toplevel's first
// commit.
func (m *DecorationManager) GetToplevelDecoration(toplevel *XdgToplevel) (*ToplevelDecoration, error) {
	d := &ToplevelDecoration{}
	if err := m.context.create(m, 1, d, toplevel); err != nil {
		return nil, err
	}
	return d, nil
}

// ToplevelDecoration is a zxdg_toplevel_decoration_v1.
type ToplevelDecoration struct {
	BaseProxy

	// OnConfigure receives the mode chosen by the compositor.
	OnConfigure func(mode uint32)
}

func (d *ToplevelDecoration) SetMode(mode uint32) error {
	return d.context.SendRequest(d, 1, mode)
}

// Dispatch handles configure (0).
func (d *ToplevelDecoration) Dispatch(event *Event) {
	if event.Opcode == 0 && d.OnConfigure != nil {
		d.OnConfigure(event.Uint32())
	}
}

// Destroy destroys the decoration object
func (d *ToplevelDecoration) Destroy() error {
	return d.context.destroy(d, 0)
}
