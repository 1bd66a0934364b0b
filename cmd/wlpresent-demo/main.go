// Command wlpresent-demo opens a toplevel window and animates a test
// pattern through a shared memory buffer pool.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bnema/wlpresent"
	"github.com/bnema/wlpresent/present"
)

type options struct {
	width, height       int
	capacity            int
	variant             string
	maxWidth, maxHeight int
	dispatch            string
	alpha               bool
	pinned              bool
	decorations         bool
	title, appID        string
	socket              string
	statsInterval       time.Duration
	verbose             bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("wlpresent-demo", flag.ContinueOnError)
	fs.IntVar(&o.width, "width", present.DefaultWidth, "initial window width")
	fs.IntVar(&o.height, "height", present.DefaultHeight, "initial window height")
	fs.IntVar(&o.capacity, "capacity", present.DefaultCapacity, "number of buffers in the pool")
	fs.StringVar(&o.variant, "variant", "realloc", "pool variant: realloc or fixed")
	fs.IntVar(&o.maxWidth, "max-width", 0, "clamp buffer width, scaling through a viewport")
	fs.IntVar(&o.maxHeight, "max-height", 0, "clamp buffer height, scaling through a viewport")
	fs.StringVar(&o.dispatch, "dispatch", "blocking", "event loop: blocking or poll")
	fs.BoolVar(&o.alpha, "alpha", false, "use a translucent ARGB8888 surface")
	fs.BoolVar(&o.pinned, "pinned", false, "make the window non-resizable")
	fs.BoolVar(&o.decorations, "decorations", true, "ask for server side decorations")
	fs.StringVar(&o.title, "title", "wlpresent", "window title")
	fs.StringVar(&o.appID, "app-id", "wlpresent-demo", "application id")
	fs.StringVar(&o.socket, "socket", "", "compositor socket, defaults to $WAYLAND_DISPLAY")
	fs.DurationVar(&o.statsInterval, "stats", 5*time.Second, "stats logging interval in poll mode")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log debug messages")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.dispatch != "blocking" && o.dispatch != "poll" {
		return o, fmt.Errorf("unknown dispatch mode %q", o.dispatch)
	}
	return o, nil
}

func (o options) windowConfig(logger *slog.Logger) (wlpresent.WindowConfig, error) {
	variant, err := present.ParseVariant(o.variant)
	if err != nil {
		return wlpresent.WindowConfig{}, err
	}
	format := present.FormatXRGB8888
	if o.alpha {
		format = present.FormatARGB8888
	}
	return wlpresent.WindowConfig{
		Config: present.Config{
			Width:     o.width,
			Height:    o.height,
			Capacity:  o.capacity,
			Format:    format,
			Variant:   variant,
			MaxWidth:  o.maxWidth,
			MaxHeight: o.maxHeight,
			Pinned:    o.pinned,
			Logger:    logger,
		},
		Title:             o.title,
		AppID:             o.appID,
		ServerDecorations: o.decorations,
	}, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := charmlog.InfoLevel
	if verbose {
		level = charmlog.DebugLevel
	}
	return slog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		ReportCaller:    verbose,
		TimeFormat:      time.TimeOnly,
		Level:           level,
	}))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(o.verbose)
	wlpresent.SetLogger(logger)

	if err := mainImpl(ctx, o, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func mainImpl(ctx context.Context, o options, logger *slog.Logger) error {
	cfg, err := o.windowConfig(logger)
	if err != nil {
		return err
	}

	d, err := wlpresent.Connect(o.socket)
	if err != nil {
		return err
	}
	defer d.Close()

	r := &renderer{alpha: o.alpha}
	w, err := wlpresent.NewWindow(d, cfg, r.draw)
	if err != nil {
		return err
	}
	r.window = w

	if o.dispatch == "blocking" {
		return w.Run(ctx)
	}

	ticker, err := wlpresent.NewTicker(o.statsInterval, func(uint64) error {
		s := w.Stats()
		logger.Info("stats",
			"size", fmt.Sprintf("%dx%d", s.Width, s.Height),
			"committed", s.Committed, "skipped", s.Skipped, "in_flight", s.InFlight)
		return nil
	})
	if err != nil {
		return err
	}
	defer ticker.Close()
	return w.RunPolled(ctx, ticker.Source())
}

type renderer struct {
	window *wlpresent.Window
	alpha  bool
	start  uint32
	frames int
}

var hudFace = basicfont.Face7x13

func (r *renderer) draw(f *present.Frame, ms uint32) error {
	if r.frames == 0 {
		r.start = ms
	}
	r.frames++
	img := f.Image()
	pattern(img, (ms-r.start)/16, r.alpha)

	if r.window != nil {
		s := r.window.Stats()
		hud(img, fmt.Sprintf("%dx%d  frame %d  skipped %d", f.Width(), f.Height(), s.Committed, s.Skipped))
	}
	return nil
}

// pattern fills img with an XOR texture scrolling with offset.
func pattern(img *present.Image, offset uint32, alpha bool) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint32(x+int(offset)) ^ uint32(y+int(offset))
			c := 0xff000000 | (v&0xff)<<16 | (v*3&0xff)<<8 | v*7&0xff
			if alpha {
				// premultiplied at half coverage
				c = 0x80000000 | (c>>1)&0x007f7f7f
			}
			binary.LittleEndian.PutUint32(row[(x-b.Min.X)*present.BytesPerPixel:], c)
		}
	}
}

// hud draws text on a translucent panel in the top left corner.
func hud(img *present.Image, text string) {
	metrics := hudFace.Metrics()
	width := font.MeasureString(hudFace, text).Ceil()
	panel := image.Rect(0, 0, width+8, metrics.Height.Ceil()+6).Intersect(img.Bounds())
	xdraw.Draw(img, panel, image.NewUniform(color.RGBA{A: 0xa0}), image.Point{}, xdraw.Over)

	d := font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: hudFace,
		Dot:  fixed.P(4, 3+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}
