package core

import "time"

// Store defines the interface for run history persistence.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(engine string, steps int) (*Run, error)
	GetRun(id string) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	ListRuns(limit int) ([]*Run, error)

	// Operation run operations
	RecordOperationRun(opRun *OperationRun) error
	UpdateOperationRun(opRun *OperationRun) error
	GetOperationRunsForRun(runID string) ([]*OperationRun, error)

	// Layer operations
	RecordLayer(runID string, layer *Layer) error
	MarkLayerReleased(layerID string) error
	ListLayers(runID string) ([]*PersistedLayer, error)
}

// RunStatus represents the status of a pipeline run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents one pipeline execution.
type Run struct {
	ID          string
	Engine      string
	Steps       int
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// OperationRun represents the execution record of one pipeline step.
type OperationRun struct {
	ID          string
	RunID       string
	RequestID   string
	Operation   string
	Status      ResultStatus
	LayerID     string
	Attempts    int
	Repaired    bool
	ErrorKind   string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	ExecutionMS int64
}

// PersistedLayer is a layer handle recorded in run history.
type PersistedLayer struct {
	ID           string
	RunID        string
	Name         string
	Kind         LayerKind
	GeometryType GeometryType
	CRS          string
	FeatureCount int64
	Location     string
	CreatedAt    time.Time
	ReleasedAt   *time.Time
}
