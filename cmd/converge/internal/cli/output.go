package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// printer writes human output, colored only on a terminal.
type printer struct {
	w     io.Writer
	green *color.Color
	red   *color.Color
	warn  *color.Color
	bold  *color.Color
}

func newPrinter(w io.Writer) *printer {
	p := &printer{
		w:     w,
		green: color.New(color.FgGreen),
		red:   color.New(color.FgRed),
		warn:  color.New(color.FgYellow),
		bold:  color.New(color.Bold),
	}
	enable := !globalFlags.noColor && isTerminal(w)
	for _, c := range []*color.Color{p.green, p.red, p.warn, p.bold} {
		if enable {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) errorf(format string, args ...any) {
	_, _ = p.red.Fprintf(p.w, format, args...)
}

func (p *printer) warnf(format string, args ...any) {
	_, _ = p.warn.Fprintf(p.w, format, args...)
}

// verdict renders a PASS/FAIL marker.
func (p *printer) verdict(ok bool) string {
	if ok {
		return p.green.Sprint("PASS")
	}
	return p.red.Sprint("FAIL")
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
