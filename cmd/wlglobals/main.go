// Command wlglobals lists the globals advertised by the compositor.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	charmlog "github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/bnema/wlpresent"
)

func main() {
	socket := flag.String("socket", "", "compositor socket, defaults to $WAYLAND_DISPLAY")
	verbose := flag.BoolP("verbose", "v", false, "log protocol traffic")
	flag.Parse()

	if *verbose {
		wlpresent.SetLogger(slog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.DebugLevel,
		})))
	}

	if err := mainImpl(os.Stdout, *socket); err != nil {
		fmt.Fprintln(os.Stderr, "wlglobals:", err)
		os.Exit(1)
	}
}

func mainImpl(out io.Writer, socket string) error {
	d, err := wlpresent.Connect(socket)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Roundtrip(); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINTERFACE\tVERSION")
	for _, g := range d.Registry().Globals() {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", g.Name, g.Interface, g.Version)
	}
	return tw.Flush()
}
