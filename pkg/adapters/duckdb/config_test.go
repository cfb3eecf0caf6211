package duckdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		want    *Params
		wantErr string
	}{
		{
			name:  "no params",
			input: nil,
			want:  &Params{},
		},
		{
			name: "remote geoparquet layers over httpfs",
			input: map[string]any{
				"extensions": []any{"httpfs"},
				"settings":   map[string]any{"memory_limit": "2GB", "threads": 4},
				"secrets": []any{
					map[string]any{
						"type":      "s3",
						"provider":  "config",
						"key_id":    "leapgis",
						"secret":    "leapgis-secret",
						"endpoint":  "localhost:9000",
						"url_style": "path",
						"use_ssl":   "false",
						"scope":     []any{"s3://layers", "s3://scratch"},
					},
				},
			},
			want: &Params{
				Extensions: []string{"httpfs"},
				Settings:   map[string]string{"memory_limit": "2GB", "threads": "4"},
				Secrets: []SecretConfig{{
					Type:     "s3",
					Provider: "config",
					KeyID:    "leapgis",
					Secret:   "leapgis-secret",
					Endpoint: "localhost:9000",
					URLStyle: "path",
					UseSSL:   boolPtr(false),
					Scope:    []any{"s3://layers", "s3://scratch"},
				}},
			},
		},
		{
			name: "credential chain secret",
			input: map[string]any{
				"secrets": []any{map[string]any{"type": "s3", "provider": "credential_chain", "region": "eu-west-1"}},
			},
			want: &Params{
				Secrets: []SecretConfig{{Type: "s3", Provider: "credential_chain", Region: "eu-west-1"}},
			},
		},
		{
			name:    "misspelled key",
			input:   map[string]any{"extension": "httpfs"},
			wantErr: "invalid duckdb params",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func boolPtr(b bool) *bool {
	return &b
}
