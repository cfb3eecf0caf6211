// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapgis/internal/cli/output"
)

// PointsGeoJSON is a small point layer in WGS84.
const PointsGeoJSON = `{"type":"FeatureCollection","features":[
{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{"name":"a","pop":10}},
{"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},"properties":{"name":"b","pop":20}}
]}`

// TestPipeline imports the point layer, buffers it and dissolves the buffers.
const TestPipeline = `layers:
  - id: towns
    path: towns.geojson
steps:
  - id: towns_buf
    operation: native_buffer
    params:
      INPUT: towns
      DISTANCE: 0.5
  - id: towns_area
    operation: native_dissolve
    params:
      INPUT: towns_buf
`

// SetupTestProject creates a temporary project with a memory engine config,
// a point layer and a pipeline file.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	files := map[string]string{
		"leapgis.yaml":  "engine:\n  type: memory\nstate_path: .leapgis/state.db\n",
		"towns.geojson": PointsGeoJSON,
		"pipeline.yaml": TestPipeline,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
