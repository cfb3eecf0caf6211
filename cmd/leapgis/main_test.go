// Package main provides tests for the leapgis CLI.
package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/internal/cli"
	"github.com/leapstack-labs/leapgis/internal/cli/config"
	"github.com/leapstack-labs/leapgis/internal/cli/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(config.ResetConfig)
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leapgis v")
}

func TestEveryEngineIsRegistered(t *testing.T) {
	cmd := cli.NewRootCmd()
	usage := cmd.PersistentFlags().Lookup("engine").Usage
	for _, name := range []string{"duckdb", "memory", "postgis", "qgis"} {
		assert.Contains(t, usage, name)
	}
}

func TestRunPipelineEndToEnd(t *testing.T) {
	dir := testutil.SetupTestProject(t)
	cfg := filepath.Join(dir, "leapgis.yaml")
	out := filepath.Join(dir, "out")

	stdout, err := execute(t, "--config", cfg, "-o", "markdown", "run", filepath.Join(dir, "pipeline.yaml"), "--export", out)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "towns_buf")
	assert.Contains(t, stdout, "towns_area")
	assert.FileExists(t, filepath.Join(out, "towns_area.geojson"))

	stdout, err = execute(t, "--config", cfg, "-o", "json", "runs")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(stdout), "["))
	assert.Contains(t, stdout, `"status": "completed"`)
}
