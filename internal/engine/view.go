package engine

import (
	"time"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

// LayerView is the JSON form of a layer handle.
type LayerView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Kind         core.LayerKind    `json:"kind"`
	GeometryType core.GeometryType `json:"geometry_type,omitempty"`
	CRS          string            `json:"crs,omitempty"`
	FeatureCount int64             `json:"feature_count"`
	BandCount    int               `json:"band_count,omitempty"`
	Fields       []string          `json:"fields,omitempty"`
	Location     string            `json:"location,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ErrorView is the JSON form of a classified failure.
type ErrorView struct {
	Kind      core.ErrorKind `json:"kind"`
	Operation string         `json:"operation,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Param     string         `json:"param,omitempty"`
	Message   string         `json:"message"`
}

// ResultView is the JSON form of one request outcome.
type ResultView struct {
	RequestID  string            `json:"request_id"`
	Operation  string            `json:"operation"`
	Status     core.ResultStatus `json:"status"`
	Layer      *LayerView        `json:"layer,omitempty"`
	Attempts   int               `json:"attempts"`
	Repaired   bool              `json:"repaired,omitempty"`
	DurationMS int64             `json:"duration_ms"`
	Error      *ErrorView        `json:"error,omitempty"`
}

// ReportView is the JSON form of a run report.
type ReportView struct {
	RunID     string         `json:"run_id,omitempty"`
	Status    core.RunStatus `json:"status,omitempty"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Failed    int            `json:"failed"`
	Results   []ResultView   `json:"results"`
}

// NewLayerView converts a layer handle.
func NewLayerView(l *core.Layer) *LayerView {
	if l == nil {
		return nil
	}
	c := l.Clone()
	return &LayerView{
		ID:           c.ID,
		Name:         c.Name,
		Kind:         c.Kind,
		GeometryType: c.GeometryType,
		CRS:          c.CRS,
		FeatureCount: c.FeatureCount,
		BandCount:    c.BandCount,
		Fields:       c.Fields,
		Location:     c.Location,
		Metadata:     c.Metadata,
	}
}

// NewErrorView converts err, classifying unknown errors as engine failures.
func NewErrorView(err error) *ErrorView {
	if err == nil {
		return nil
	}
	oe, ok := core.AsOperationError(err)
	if !ok {
		return &ErrorView{Kind: core.KindOf(err), Message: err.Error()}
	}
	return &ErrorView{
		Kind:      oe.Kind,
		Operation: oe.Operation,
		RequestID: oe.RequestID,
		Param:     oe.Param,
		Message:   oe.Detail(),
	}
}

// NewResultView converts a result.
func NewResultView(r core.Result) ResultView {
	v := ResultView{
		RequestID:  r.RequestID,
		Operation:  r.Operation,
		Status:     r.Status,
		Layer:      NewLayerView(r.Layer),
		Attempts:   r.Attempts,
		Repaired:   r.Repaired,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		v.Error = NewErrorView(r.Err)
	}
	return v
}

// NewReportView converts a report. A nil report yields an empty view.
func NewReportView(r *Report) ReportView {
	v := ReportView{Results: []ResultView{}}
	if r == nil {
		return v
	}
	if r.Run != nil {
		v.RunID = r.Run.ID
		v.Status = r.Run.Status
		started := r.Run.StartedAt
		v.StartedAt = &started
	}
	for _, res := range r.Results {
		v.Results = append(v.Results, NewResultView(res))
	}
	v.Failed = r.Failed()
	return v
}

// ErrorViews flattens a joined error into one view per classified failure.
func ErrorViews(err error) []ErrorView {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var views []ErrorView
		for _, e := range joined.Unwrap() {
			views = append(views, ErrorViews(e)...)
		}
		return views
	}
	return []ErrorView{*NewErrorView(err)}
}
