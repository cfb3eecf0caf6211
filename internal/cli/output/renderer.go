// Package output renders command results for terminals, scripts and agents.
//
// Auto mode picks styled text on a TTY and markdown otherwise; JSON is
// always explicit.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

// Mode selects the output format.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Renderer writes command output in the effective mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return NewRendererWithTTY(out, errOut, tty, mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{out: out, errOut: errOut, mode: mode, isTTY: isTTY, styles: NewStyles(isTTY)}
}

// EffectiveMode resolves auto mode: TTY=text, non-TTY=markdown.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the text mode styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Writer returns the standard output writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// Println writes a line to standard output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output to standard output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a header: styled in text mode, markdown otherwise.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeText {
		r.Println(r.styles.Header.Render(text))
		return
	}
	r.Println(FormatHeader(level, text))
	r.Println("")
}

// Success writes a success message.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render(statusSymbol("success") + " " + msg))
}

// Warning writes a warning to standard error.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("! "+msg))
}

// Error writes an error to standard error.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render(statusSymbol("failed")+" "+msg))
}

// Muted renders secondary text.
func (r *Renderer) Muted(s string) string {
	return r.styles.Muted.Render(s)
}

// StatusLine writes "<symbol> name [detail]" coloured by status.
func (r *Renderer) StatusLine(name, status, detail string) {
	line := r.styles.Status(status).Render(statusSymbol(status)) + " " + name
	if detail != "" {
		line += " " + r.styles.Muted.Render(detail)
	}
	r.Println(line)
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table writes rows as a light box table in text mode and a markdown table
// otherwise.
func (r *Renderer) Table(header []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeText {
		t.SetStyle(table.StyleLight)
		t.Render()
		return
	}
	t.RenderMarkdown()
}
