package duckdb

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/internal/testutil"
	"github.com/leapstack-labs/leapgis/pkg/adapter"
	"github.com/leapstack-labs/leapgis/pkg/core"
)

func TestBuildCreateSecretSQL(t *testing.T) {
	tests := []struct {
		name string
		cfg  SecretConfig
		want string
	}{
		{
			name: "s3 with credential chain",
			cfg: SecretConfig{
				Type:     "s3",
				Provider: "credential_chain",
				Region:   "us-west-2",
			},
			want: `CREATE SECRET (
    TYPE s3,
    PROVIDER credential_chain,
    REGION 'us-west-2'
)`,
		},
		{
			name: "s3 type only",
			cfg:  SecretConfig{Type: "s3"},
			want: `CREATE SECRET (
    TYPE s3
)`,
		},
		{
			name: "s3 with single scope string",
			cfg: SecretConfig{
				Type:   "s3",
				Region: "eu-central-1",
				Scope:  "s3://my-bucket",
			},
			want: `CREATE SECRET (
    TYPE s3,
    REGION 'eu-central-1',
    SCOPE 's3://my-bucket'
)`,
		},
		{
			name: "s3 with multiple scopes as []any",
			cfg: SecretConfig{
				Type:   "s3",
				Region: "eu-central-1",
				Scope:  []any{"s3://bucket1", "s3://bucket2"},
			},
			want: `CREATE SECRET (
    TYPE s3,
    REGION 'eu-central-1',
    SCOPE ('s3://bucket1', 's3://bucket2')
)`,
		},
		{
			name: "s3 compatible with endpoint and path style",
			cfg: SecretConfig{
				Type:     "s3",
				Provider: "config",
				KeyID:    "minioadmin",
				Secret:   "minioadmin",
				Endpoint: "localhost:9000",
				URLStyle: "path",
				UseSSL:   boolPtr(false),
			},
			want: `CREATE SECRET (
    TYPE s3,
    PROVIDER config,
    KEY_ID 'minioadmin',
    SECRET 'minioadmin',
    ENDPOINT 'localhost:9000',
    URL_STYLE 'path',
    USE_SSL false
)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildCreateSecretSQL(tt.cfg))
		})
	}
}

func TestSetupStatements(t *testing.T) {
	p := &Params{
		Extensions: []string{"httpfs", "spatial"},
		Settings:   map[string]string{"threads": "2", "memory_limit": "4GB"},
		Secrets:    []SecretConfig{{Type: "s3"}},
	}
	got := setupStatements(p, "layers")
	assert.Equal(t, []string{
		"INSTALL spatial", "LOAD spatial",
		"INSTALL httpfs", "LOAD httpfs",
		"SET memory_limit = '4GB'",
		"SET threads = '2'",
		"CREATE SECRET (\n    TYPE s3\n)",
		`CREATE SCHEMA IF NOT EXISTS "layers"`,
	}, got)

	assert.Equal(t, []string{"INSTALL spatial", "LOAD spatial"}, setupStatements(&Params{}, DefaultSchema))
}

func TestAdapter_Setup(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	adp := New(testutil.NewTestLogger(t))
	adp.DB = db
	adp.Builder.Schema = DefaultSchema

	mock.ExpectExec("INSTALL spatial").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("LOAD spatial").WillReturnError(errors.New("extension not found"))

	err = adp.setup(context.Background(), &Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duckdb setup")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_InvalidParams(t *testing.T) {
	adp := New(nil)
	err := adp.Connect(context.Background(), core.AdapterConfig{Params: map[string]any{"nope": true}})
	require.Error(t, err)
	assert.False(t, adp.IsConnected())
}

func TestAdapter_Import(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	adp := New(nil)
	adp.DB = db
	adp.Builder.Schema = DefaultSchema

	mock.ExpectExec(`CREATE TABLE "main"."Lin" AS SELECT \* FROM ST_Read\('.*parcels\.gpkg'\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT column_name, data_type FROM information_schema\.columns`).
		WithArgs("main", "Lin").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("zone", "VARCHAR").
			AddRow("geom", "GEOMETRY"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "main"."Lin"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`SELECT DISTINCT ST_GeometryType\("geom"\)`).
		WillReturnRows(sqlmock.NewRows([]string{"type"}).AddRow("POLYGON"))

	l, err := adp.Import(context.Background(), "Lin", "data/parcels.gpkg")
	require.NoError(t, err)
	assert.Equal(t, "parcels", l.Name)
	assert.Equal(t, core.GeometryPolygon, l.GeometryType)
	assert.Equal(t, core.DefaultCRS, l.CRS)
	assert.Equal(t, []string{"zone"}, l.Fields)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = adp.Import(context.Background(), "Lx", "data/image.tif")
	require.Error(t, err)
	assert.Equal(t, adapter.CodeUnsupported, adapter.CodeOf(err))
}
