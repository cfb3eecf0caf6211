package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/internal/catalog"
	"github.com/leapstack-labs/leapgis/internal/cli/config"
	"github.com/leapstack-labs/leapgis/internal/cli/testutil"
	"github.com/leapstack-labs/leapgis/internal/engine"
	"github.com/leapstack-labs/leapgis/pkg/core"

	_ "github.com/leapstack-labs/leapgis/pkg/adapters/memory"
)

// loadProject creates a test project and loads its config with the given
// output format.
func loadProject(t *testing.T, format string) string {
	t.Helper()
	t.Cleanup(config.ResetConfig)
	dir := testutil.SetupTestProject(t)
	cfg, err := config.LoadConfig(filepath.Join(dir, "leapgis.yaml"), "", nil)
	require.NoError(t, err)
	cfg.OutputFormat = format
	return dir
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewCatalogCommand(), "catalog [operation]", []string{"tools"}},
		{NewInvokeCommand(), "invoke <operation>", []string{"input", "param", "id", "export"}},
		{NewRunCommand(), "run <pipeline>", []string{"watch", "export"}},
		{NewRunsCommand(), "runs [run-id]", []string{"limit"}},
		{NewServeCommand(), "serve", []string{"addr"}},
	}
	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short)
			assert.NotEmpty(t, tt.cmd.Example)
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestCatalogCommand_Markdown(t *testing.T) {
	loadProject(t, "markdown")

	out, _, err := execute(t, NewCatalogCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "# Operations (14 total)")
	assert.Contains(t, out, "## native_buffer")
	assert.Contains(t, out, "| DISTANCE")
	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
}

func TestCatalogCommand_JSON(t *testing.T) {
	loadProject(t, "json")

	out, _, err := execute(t, NewCatalogCommand(), "native_dissolve")
	require.NoError(t, err)
	var views []catalog.OperationView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "native:dissolve", views[0].AlgorithmID)
}

func TestCatalogCommand_Tools(t *testing.T) {
	loadProject(t, "markdown")

	out, _, err := execute(t, NewCatalogCommand(), "--tools")
	require.NoError(t, err)
	var tools []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tools))
	assert.Len(t, tools, len(core.Operations()))
}

func TestCatalogCommand_Unknown(t *testing.T) {
	loadProject(t, "markdown")

	_, _, err := execute(t, NewCatalogCommand(), "native_teleport")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.KindUnknownOperation)
}

func TestInvokeCommand(t *testing.T) {
	dir := loadProject(t, "json")
	exportDir := filepath.Join(dir, "out")

	out, _, err := execute(t, NewInvokeCommand(), "native_buffer",
		"--input", "towns="+filepath.Join(dir, "towns.geojson"),
		"--param", "INPUT=towns",
		"--param", "DISTANCE=0.5",
		"--id", "towns_buf",
		"--export", exportDir,
	)
	require.NoError(t, err)

	var view engine.ReportView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Results, 1)
	assert.Equal(t, core.StatusSuccess, view.Results[0].Status)
	assert.Equal(t, "towns_buf", view.Results[0].Layer.ID)
	assert.FileExists(t, filepath.Join(exportDir, "towns_buf.geojson"))
}

func TestInvokeCommand_ValidationError(t *testing.T) {
	dir := loadProject(t, "json")

	out, _, err := execute(t, NewInvokeCommand(), "native_buffer",
		"--input", "towns="+filepath.Join(dir, "towns.geojson"),
		"--param", "INPUT=towns",
		"--param", "DISTANCE=far",
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.KindTypeMismatch)
	assert.Contains(t, out, `"kind": "TypeMismatch"`)
}

func TestInvokeCommand_BadFlags(t *testing.T) {
	loadProject(t, "json")

	_, _, err := execute(t, NewInvokeCommand(), "native_buffer", "--input", "towns")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected id=path")

	_, _, err = execute(t, NewInvokeCommand(), "native_buffer", "--param", "INPUT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected KEY=VALUE")
}

func TestParseParams(t *testing.T) {
	params, err := parseParams("native_mergevectorlayers", []string{"LAYERS=a, b", "CRS=EPSG:3857"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, params["LAYERS"])
	assert.Equal(t, "EPSG:3857", params["CRS"])

	params, err = parseParams("native_buffer", []string{"DISTANCE=2.5", "SEGMENTS=x", "COLOR=red"})
	require.NoError(t, err)
	assert.Equal(t, 2.5, params["DISTANCE"])
	assert.Equal(t, "x", params["SEGMENTS"], "unparsable numbers are left for validation")
	assert.Equal(t, "red", params["COLOR"])

	params, err = parseParams("native_teleport", []string{"A=1"})
	require.NoError(t, err)
	assert.Equal(t, "1", params["A"])
}

func TestRunCommand(t *testing.T) {
	dir := loadProject(t, "markdown")

	out, _, err := execute(t, NewRunCommand(), filepath.Join(dir, "pipeline.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "| towns_buf")
	assert.Contains(t, out, "| towns_area")
	assert.Contains(t, out, "**Failed**: 0")
	testutil.AssertValidMarkdown(t, out)

	out, _, err = execute(t, NewRunsCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "# Runs (1)")
	assert.Contains(t, out, "completed")
}

func TestRunCommand_MissingFile(t *testing.T) {
	dir := loadProject(t, "markdown")

	_, _, err := execute(t, NewRunCommand(), filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read pipeline")
}

func TestRunsCommand_Detail(t *testing.T) {
	dir := loadProject(t, "json")

	out, _, err := execute(t, NewRunCommand(), filepath.Join(dir, "pipeline.yaml"))
	require.NoError(t, err)
	var report engine.ReportView
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotEmpty(t, report.RunID)

	out, _, err = execute(t, NewRunsCommand(), report.RunID)
	require.NoError(t, err)
	var detail struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		Operations []struct {
			RequestID string `json:"request_id"`
		} `json:"operations"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, report.RunID, detail.ID)
	assert.Equal(t, "completed", detail.Status)
	assert.Len(t, detail.Operations, 2)
}
