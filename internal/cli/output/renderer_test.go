package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(mode Mode, tty bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, tty, mode), out, errOut
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode Mode
		tty  bool
		want Mode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{"", false, ModeMarkdown},
		{ModeJSON, true, ModeJSON},
		{ModeText, false, ModeText},
	}
	for _, tt := range tests {
		r, _, _ := newTestRenderer(tt.mode, tt.tty)
		assert.Equal(t, tt.want, r.EffectiveMode(), "mode=%q tty=%v", tt.mode, tt.tty)
	}
}

func TestNewRenderer_BufferIsNotTTY(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.False(t, r.IsTTY())
	assert.Equal(t, ModeMarkdown, r.EffectiveMode())
}

func TestTable(t *testing.T) {
	r, out, _ := newTestRenderer(ModeMarkdown, false)
	r.Table([]string{"Operation", "Output"}, [][]string{{"native_buffer", "vector"}})
	md := out.String()
	assert.Contains(t, md, "| Operation | Output |")
	assert.Contains(t, md, "| native_buffer | vector |")

	r, out, _ = newTestRenderer(ModeText, false)
	r.Table([]string{"Operation"}, [][]string{{"native_buffer"}})
	assert.Contains(t, out.String(), "native_buffer")
	assert.Contains(t, out.String(), "┌")
}

func TestHeaderAndStatus(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeMarkdown, false)
	r.Header(2, "Results")
	r.StatusLine("Lbuf", "success", "native_buffer")
	r.Error("boom")

	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, "## Results", lines[0])
	assert.Equal(t, "✓ Lbuf native_buffer", lines[2])
	assert.Equal(t, "✗ boom\n", errOut.String())
	assert.NotContains(t, out.String(), "\x1b[")
}

func TestJSON(t *testing.T) {
	r, out, _ := newTestRenderer(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"n": 1}))
	assert.Equal(t, "{\n  \"n\": 1\n}\n", out.String())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "### Title", FormatHeader(3, "Title"))
	assert.Equal(t, "- **CRS**: EPSG:4326", FormatKeyValue("CRS", "EPSG:4326"))
}
