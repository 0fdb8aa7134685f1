package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// printer writes command results either as colored text or as JSON.
type printer struct {
	out  io.Writer
	json bool
}

func newPrinter(out io.Writer, asJSON bool) *printer {
	return &printer{out: out, json: asJSON}
}

// success prints a line prefixed with a check mark.
func (p *printer) success(format string, a ...any) {
	green.Fprintf(p.out, "✓ %s\n", fmt.Sprintf(format, a...))
}

// warning prints a line prefixed with a warning sign.
func (p *printer) warning(format string, a ...any) {
	yellow.Fprintf(p.out, "! %s\n", fmt.Sprintf(format, a...))
}

// failure prints a line prefixed with a cross.
func (p *printer) failure(format string, a ...any) {
	red.Fprintf(p.out, "✗ %s\n", fmt.Sprintf(format, a...))
}

// step prints an emphasized progress line.
func (p *printer) step(format string, a ...any) {
	cyan.Fprintf(p.out, "→ %s\n", fmt.Sprintf(format, a...))
}

// printf prints plain text.
func (p *printer) printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// emit writes v as indented JSON.
func (p *printer) emit(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
