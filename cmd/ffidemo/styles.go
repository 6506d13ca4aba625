package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/ffi-boundary/idl"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// printer writes styled lines, or plain ones when output is not a
// terminal.
type printer struct {
	w     io.Writer
	plain bool
}

func newPrinter(w io.Writer, plain bool) *printer {
	return &printer{w: w, plain: plain}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if p.plain {
		return text
	}
	return s.Render(text)
}

func (p *printer) title(text string) {
	fmt.Fprintf(p.w, "\n%s\n", p.render(titleStyle, text))
}

func (p *printer) help(text string) {
	fmt.Fprintln(p.w, p.render(helpStyle, text))
}

func (p *printer) function(f *idl.Function) {
	fmt.Fprintf(p.w, "  %s\n", p.signature(f))
}

func (p *printer) signature(f *idl.Function) string {
	name, rest, _ := strings.Cut(f.String(), ":")
	return p.render(funcStyle, name) + ":" + p.render(typeStyle, rest)
}

func (p *printer) result(text string) {
	fmt.Fprintln(p.w, p.render(resultStyle, text))
}

// check prints one catalog line and reports whether it passed.
func (p *printer) check(call, got, want string) bool {
	if got == want {
		fmt.Fprintf(p.w, "  %s %s = %s\n", p.render(resultStyle, "ok  "), call, got)
		return true
	}
	fmt.Fprintf(p.w, "  %s %s = %s, want %s\n", p.render(errorStyle, "FAIL"), call, got, want)
	return false
}
