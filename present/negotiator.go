package present

// ResizePlan describes the buffer needed for the current logical size.
type ResizePlan struct {
	// Width and Height are the logical surface size.
	Width  int
	Height int

	// BufferWidth and BufferHeight are the dimensions to acquire.
	BufferWidth  int
	BufferHeight int

	// Scaled is set when the buffer is smaller than the logical size and
	// must be stretched by the compositor.
	Scaled bool

	// Realloc is set when the next acquire needs fresh shared memory.
	Realloc bool
}

// Negotiator tracks the size proposed by the compositor and decides how
// the pool must follow it.
type Negotiator struct {
	width     int
	height    int
	maxWidth  int
	maxHeight int
	variant   Variant

	applied    ResizePlan
	hasApplied bool

	running bool
}

// NewNegotiator starts from the configured initial size.
func NewNegotiator(cfg Config) *Negotiator {
	cfg = cfg.WithDefaults()
	return &Negotiator{
		width:     cfg.Width,
		height:    cfg.Height,
		maxWidth:  cfg.MaxWidth,
		maxHeight: cfg.MaxHeight,
		variant:   cfg.Variant,
		running:   true,
	}
}

// Propose applies a configure size. A non-positive value leaves that
// axis unchanged. It reports whether the logical size changed.
func (n *Negotiator) Propose(width, height int32) bool {
	changed := false
	if width > 0 && int(width) != n.width {
		n.width = int(width)
		changed = true
	}
	if height > 0 && int(height) != n.height {
		n.height = int(height)
		changed = true
	}
	return changed
}

// Size returns the current logical size.
func (n *Negotiator) Size() (width, height int) {
	return n.width, n.height
}

// Plan returns the buffer requirements for the current logical size.
func (n *Negotiator) Plan() ResizePlan {
	p := ResizePlan{
		Width:        n.width,
		Height:       n.height,
		BufferWidth:  clamp(n.width, n.maxWidth),
		BufferHeight: clamp(n.height, n.maxHeight),
	}
	p.Scaled = p.BufferWidth != p.Width || p.BufferHeight != p.Height

	if n.variant == VariantRealloc {
		p.Realloc = !n.hasApplied ||
			p.BufferWidth != n.applied.BufferWidth ||
			p.BufferHeight != n.applied.BufferHeight
	}
	return p
}

// Apply records a plan whose buffer was committed.
func (n *Negotiator) Apply(p ResizePlan) {
	n.applied = p
	n.hasApplied = true
}

// Applied returns the last committed plan.
func (n *Negotiator) Applied() (ResizePlan, bool) {
	return n.applied, n.hasApplied
}

// LogicalChanged reports whether p presents a different logical size
// than the last committed plan.
func (n *Negotiator) LogicalChanged(p ResizePlan) bool {
	return !n.hasApplied || p.Width != n.applied.Width || p.Height != n.applied.Height
}

// Close records a close request from the compositor.
func (n *Negotiator) Close() {
	n.running = false
}

// Running is false once a close request arrived.
func (n *Negotiator) Running() bool {
	return n.running
}

func clamp(v, limit int) int {
	if limit > 0 && v > limit {
		return limit
	}
	return v
}
