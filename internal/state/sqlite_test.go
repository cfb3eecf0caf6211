package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/internal/testutil"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"runs", "operation_runs", "layers"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s should exist", table)
		_ = rows.Close()
	}

	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Migrations are idempotent.
	assert.NoError(t, store.InitSchema())
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.InitSchema())
	run, err := store.CreateRun("memory", 1)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()
	got, err := reopened.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "memory", got.Engine)
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	_, err := store.CreateRun("memory", 1)
	assert.EqualError(t, err, "database not opened")
	assert.EqualError(t, store.InitSchema(), "database not opened")
	_, err = store.ListRuns(5)
	assert.Error(t, err)
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun("postgis", 3)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusRunning, run.Status)

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Steps)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, store.CompleteRun(run.ID, core.RunStatusFailed, "native_buffer[b]: InvalidGeometry"))
	got, err = store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Contains(t, got.Error, "InvalidGeometry")

	_, err = store.GetRun("missing")
	assert.ErrorContains(t, err, "run not found")
	assert.Error(t, store.CompleteRun("missing", core.RunStatusCompleted, ""))
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := setupTestStore(t)
	for i := 0; i < 3; i++ {
		_, err := store.CreateRun("memory", i)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 2, runs[0].Steps, "newest first")
	assert.Equal(t, 1, runs[1].Steps)
}

func TestSQLiteStore_OperationRuns(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun("memory", 2)
	require.NoError(t, err)

	op := &core.OperationRun{RunID: run.ID, RequestID: "buffered", Operation: "native_buffer", Status: core.StatusSkipped}
	require.NoError(t, store.RecordOperationRun(op))
	assert.NotEmpty(t, op.ID)

	done := time.Now().UTC()
	op.Status = core.StatusSuccess
	op.LayerID = "buffered"
	op.Attempts = 2
	op.Repaired = true
	op.CompletedAt = &done
	op.ExecutionMS = 42
	require.NoError(t, store.UpdateOperationRun(op))

	second := &core.OperationRun{
		RunID: run.ID, Operation: "native_dissolve", Status: core.StatusFailed,
		ErrorKind: string(core.KindTimeout), Error: "operation timed out",
	}
	require.NoError(t, store.RecordOperationRun(second))

	ops, err := store.GetOperationRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, core.StatusSuccess, ops[0].Status)
	assert.True(t, ops[0].Repaired)
	assert.Equal(t, 2, ops[0].Attempts)
	assert.Equal(t, int64(42), ops[0].ExecutionMS)
	require.NotNil(t, ops[0].CompletedAt)
	assert.Equal(t, "Timeout", ops[1].ErrorKind)

	assert.Error(t, store.UpdateOperationRun(&core.OperationRun{ID: "missing"}))
}

func TestSQLiteStore_Layers(t *testing.T) {
	store := setupTestStore(t)
	run, err := store.CreateRun("memory", 1)
	require.NoError(t, err)

	layer := &core.Layer{
		ID: "LAbc12345678", Name: "buffered", Kind: core.LayerKindVector,
		GeometryType: core.GeometryPolygon, CRS: "EPSG:4326", FeatureCount: 12,
	}
	require.NoError(t, store.RecordLayer(run.ID, layer))
	require.NoError(t, store.RecordLayer(run.ID, layer), "recording twice is a no-op")

	layers, err := store.ListLayers(run.ID)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, core.GeometryPolygon, layers[0].GeometryType)
	assert.Equal(t, int64(12), layers[0].FeatureCount)
	assert.Nil(t, layers[0].ReleasedAt)

	require.NoError(t, store.MarkLayerReleased(layer.ID))
	require.NoError(t, store.MarkLayerReleased("unknown"))
	layers, err = store.ListLayers(run.ID)
	require.NoError(t, err)
	assert.NotNil(t, layers[0].ReleasedAt)
}

func TestSQLiteStore_CreateRunError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO runs").WillReturnError(assert.AnError)

	store := &SQLiteStore{db: db, logger: testutil.NewTestLogger(t)}
	_, err = store.CreateRun("memory", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create run")
	assert.NoError(t, mock.ExpectationsWereMet())
}
