package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapgis/internal/cli/output"
	"github.com/leapstack-labs/leapgis/internal/engine"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

// renderReport prints results in caller order. JSON mode prints the full
// report view, including validation errors when the run was rejected.
func renderReport(r *output.Renderer, report *engine.Report, runErr error) error {
	if r.EffectiveMode() == output.ModeJSON {
		view := struct {
			engine.ReportView
			Errors []engine.ErrorView `json:"errors,omitempty"`
		}{ReportView: engine.NewReportView(report)}
		if report == nil || len(report.Results) == 0 {
			view.Errors = engine.ErrorViews(runErr)
		}
		return r.JSON(view)
	}

	if report != nil && report.Run != nil {
		r.Header(1, fmt.Sprintf("Run %s", report.Run.ID))
	}
	if report == nil || len(report.Results) == 0 {
		for _, ev := range engine.ErrorViews(runErr) {
			r.Error(formatErrorView(ev))
		}
		return nil
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		rows := make([][]string, 0, len(report.Results))
		for _, res := range report.Results {
			rows = append(rows, []string{res.RequestID, res.Operation, string(res.Status), layerSummary(res.Layer), resultDetail(res)})
		}
		r.Table([]string{"Step", "Operation", "Status", "Layer", "Detail"}, rows)
		r.Println("")
		r.Println(output.FormatKeyValue("Failed", report.Failed()))
		return nil
	}

	for _, res := range report.Results {
		detail := resultDetail(res)
		if res.OK() {
			detail = layerSummary(res.Layer) + " " + detail
		}
		r.StatusLine(fmt.Sprintf("%s %s", res.RequestID, res.Operation), string(res.Status), detail)
	}
	if n := report.Failed(); n > 0 {
		r.Error(fmt.Sprintf("%d of %d steps did not succeed", n, len(report.Results)))
	} else {
		r.Success(fmt.Sprintf("%d steps completed", len(report.Results)))
	}
	return nil
}

func layerSummary(l *core.Layer) string {
	if l == nil {
		return ""
	}
	if l.Kind == core.LayerKindRaster {
		return fmt.Sprintf("%s raster %s bands=%d", l.ID, l.CRS, l.BandCount)
	}
	return fmt.Sprintf("%s %s %s features=%d", l.ID, l.GeometryType, l.CRS, l.FeatureCount)
}

func resultDetail(res core.Result) string {
	if res.Err != nil {
		return formatErrorView(*engine.NewErrorView(res.Err))
	}
	detail := "(" + res.Duration.Round(time.Millisecond).String()
	if res.Attempts > 1 {
		detail += ", attempts=" + strconv.Itoa(res.Attempts)
	}
	if res.Repaired {
		detail += ", repaired"
	}
	return detail + ")"
}

func formatErrorView(ev engine.ErrorView) string {
	s := string(ev.Kind)
	if ev.RequestID != "" {
		s = ev.RequestID + ": " + s
	}
	if ev.Param != "" {
		s += " (" + ev.Param + ")"
	}
	if ev.Message != "" {
		s += ": " + ev.Message
	}
	return s
}

// exportResults writes every successful output layer into dir.
func exportResults(ctx context.Context, r *output.Renderer, sess *engine.Session, report *engine.Report, dir string) error {
	if dir == "" || report == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	for _, res := range report.Results {
		if !res.OK() {
			continue
		}
		path, err := sess.Export(ctx, res.Layer.ID, dir)
		if err != nil {
			return fmt.Errorf("export %s: %w", res.Layer.ID, err)
		}
		if r.EffectiveMode() != output.ModeJSON {
			r.Println(r.Muted("exported " + path))
		}
	}
	return nil
}
