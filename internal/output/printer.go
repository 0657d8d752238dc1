// Package output renders stepsync's terminal output.
//
// All user-facing text funnels through [Printer] so commands stay
// testable: construct one with [NewPrinterWithWriter] around a buffer and
// assert on what was printed. Styling uses lipgloss and degrades to plain
// text on non-TTY writers.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	stepStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
)

// Printer writes styled output to a single destination.
type Printer struct {
	w       io.Writer
	verbose bool
}

// SetVerbose enables the detail lines written by [Printer.Dim].
func (p *Printer) SetVerbose(v bool) {
	p.verbose = v
}

// NewPrinter creates a [Printer] writing to stdout.
func NewPrinter() *Printer {
	return &Printer{w: os.Stdout}
}

// NewPrinterWithWriter creates a [Printer] for a custom writer. Tests use
// this with a bytes.Buffer.
func NewPrinterWithWriter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Banner prints a run-level heading with a rule underneath.
func (p *Printer) Banner(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.w, bannerStyle.Render(text))
	fmt.Fprintln(p.w, dimStyle.Render(strings.Repeat("=", len(text))))
}

// Step prints a per-iteration heading.
func (p *Printer) Step(role string, iteration int, stepName, prompt string) {
	fmt.Fprintln(p.w, stepStyle.Render(fmt.Sprintf("[%s] iteration %d: %s (%s)", role, iteration, stepName, prompt)))
}

// Info prints a plain detail line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.w, detailStyle.Render(fmt.Sprintf(format, args...)))
}

// Dim prints a low-emphasis line, used for waiting and polling chatter.
// Suppressed unless verbose is on.
func (p *Printer) Dim(format string, args ...any) {
	if !p.verbose {
		return
	}
	fmt.Fprintln(p.w, dimStyle.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, warnStyle.Render("WARNING: "+fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.w, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Success prints a completion line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, successStyle.Render(fmt.Sprintf(format, args...)))
}
