package present

import (
	"fmt"
	"math"
	"log/slog"
	"strings"
)

// Defaults applied to zero Config fields.
const (
	DefaultWidth    = 256
	DefaultHeight   = 256
	DefaultCapacity = 2
)

// Variant selects how the pool reacts to size changes. It changes the
// failure mode of Pool.Acquire: VariantRealloc may fail allocating shared
// memory, VariantFixed only ever fails with ErrBusy.
type Variant int

const (
	// VariantRealloc gives every buffer its own region and reallocates it
	// when a free buffer no longer matches the requested size.
	VariantRealloc Variant = iota

	// VariantFixed allocates one region sized for MaxWidth x MaxHeight per
	// slot at construction and re-describes sub-ranges of it on resize.
	VariantFixed
)

func (v Variant) String() string {
	switch v {
	case VariantRealloc:
		return "realloc"
	case VariantFixed:
		return "fixed"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// ParseVariant parses the String form of a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(s) {
	case "realloc", "":
		return VariantRealloc, nil
	case "fixed", "no-realloc":
		return VariantFixed, nil
	}
	return 0, fmt.Errorf("unknown pool variant %q", s)
}

// Config describes a presented window.
type Config struct {
	// Width and Height are the initial logical surface size.
	Width  int
	Height int

	// Capacity bounds the number of live buffers.
	Capacity int

	Format  Format
	Variant Variant

	// MaxWidth and MaxHeight clamp buffer dimensions; anything larger is
	// presented through the Scaler. Zero leaves an axis unbounded. Both are
	// required by VariantFixed.
	MaxWidth  int
	MaxHeight int

	// StrideAlign rounds each row up to a multiple of this many bytes.
	StrideAlign int

	// Pinned sets min and max size to the initial size.
	Pinned bool

	Logger *slog.Logger
}

// WithDefaults returns c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.StrideAlign == 0 {
		c.StrideAlign = BytesPerPixel
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("invalid size %dx%d", c.Width, c.Height)
	case c.Capacity < 1:
		return fmt.Errorf("invalid capacity %d", c.Capacity)
	case c.Format != FormatARGB8888 && c.Format != FormatXRGB8888:
		return fmt.Errorf("unsupported format %v", c.Format)
	case c.StrideAlign%BytesPerPixel != 0:
		return fmt.Errorf("stride alignment %d is not a multiple of %d", c.StrideAlign, BytesPerPixel)
	case c.MaxWidth < 0 || c.MaxHeight < 0:
		return fmt.Errorf("invalid maximum size %dx%d", c.MaxWidth, c.MaxHeight)
	case c.Variant == VariantFixed && (c.MaxWidth == 0 || c.MaxHeight == 0):
		return fmt.Errorf("%v pool needs a maximum size", c.Variant)
	case c.Variant != VariantRealloc && c.Variant != VariantFixed:
		return fmt.Errorf("unknown pool variant %v", c.Variant)
	}
	if c.MaxWidth > 0 && c.MaxHeight > 0 {
		size := Stride(c.MaxWidth, c.StrideAlign) * c.MaxHeight
		if c.Variant == VariantFixed {
			size = alignSlot(size) * c.Capacity
		}
		if size > MaxRegionSize {
			return fmt.Errorf("maximum size %dx%d needs %d bytes of shared memory, limit is %d",
				c.MaxWidth, c.MaxHeight, size, MaxRegionSize)
		}
	}
	return nil
}

// MaxRegionSize is the largest shared memory pool the protocol can
// describe: wl_shm.create_pool takes a signed 32-bit size.
const MaxRegionSize = math.MaxInt32

// Clamped reports whether buffer dimensions may differ from the logical
// size.
func (c Config) Clamped() bool {
	return c.MaxWidth > 0 || c.MaxHeight > 0
}
