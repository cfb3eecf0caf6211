package commands

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/internal/cli/testutil"
	"github.com/leapstack-labs/leapgis/internal/engine"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

func sampleReport() *engine.Report {
	return &engine.Report{
		Run: &core.Run{ID: "run-1", Status: core.RunStatusFailed, StartedAt: time.Now()},
		Results: []core.Result{
			{
				RequestID: "parcels_fixed",
				Operation: "native_dissolve",
				Status:    core.StatusSuccess,
				Attempts:  2,
				Repaired:  true,
				Duration:  1500 * time.Millisecond,
				Layer: &core.Layer{
					ID:           "parcels_fixed",
					Kind:         core.LayerKindVector,
					GeometryType: core.GeometryPolygon,
					CRS:          "EPSG:4326",
					FeatureCount: 3,
				},
			},
			{
				RequestID: "parcels_merged",
				Operation: "native_mergevectorlayers",
				Status:    core.StatusFailed,
				Err: core.Errorf(core.KindGeometryTypeMismatch, "inputs mix Point and Polygon").
					WithRequest("native_mergevectorlayers", "parcels_merged"),
			},
		},
	}
}

func TestRenderReport_Markdown(t *testing.T) {
	tr := testutil.NewTestRendererMarkdown()

	require.NoError(t, renderReport(tr.Renderer, sampleReport(), nil))
	out := tr.Output()
	assert.Contains(t, out, "# Run run-1")
	assert.Contains(t, out, "parcels_fixed Polygon EPSG:4326 features=3")
	assert.Contains(t, out, "attempts=2, repaired")
	assert.Contains(t, out, "parcels_merged: GeometryTypeMismatch: inputs mix Point and Polygon")
	assert.Contains(t, out, "**Failed**: 1")
	testutil.AssertNoANSI(t, out)
	testutil.AssertValidMarkdown(t, out)
}

func TestRenderReport_RejectedBatch(t *testing.T) {
	runErr := errors.Join(
		core.MissingParameter("native_buffer", "INPUT").WithRequest("native_buffer", "a"),
		core.Errorf(core.KindCyclicReference, "OVERLAY references the request's own output").WithRequest("qgis_clip", "b"),
	)

	tr := testutil.NewTestRendererMarkdown()
	require.NoError(t, renderReport(tr.Renderer, nil, runErr))
	assert.Empty(t, tr.Output())
	assert.Contains(t, tr.ErrorOutput(), "a: MissingParameter")
	assert.Contains(t, tr.ErrorOutput(), "b: CyclicReference")

	tr = testutil.NewTestRendererJSON()
	require.NoError(t, renderReport(tr.Renderer, nil, runErr))
	var view struct {
		Results []engine.ResultView `json:"results"`
		Errors  []engine.ErrorView  `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(tr.Out.Bytes(), &view))
	assert.Empty(t, view.Results)
	require.Len(t, view.Errors, 2)
	assert.Equal(t, core.KindMissingParameter, view.Errors[0].Kind)
	assert.Equal(t, "INPUT", view.Errors[0].Param)
	assert.Equal(t, "b", view.Errors[1].RequestID)
}
