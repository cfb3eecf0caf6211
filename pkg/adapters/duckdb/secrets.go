package duckdb

import (
	"fmt"
	"strings"
)

// buildCreateSecretSQL renders a CREATE SECRET statement. Empty fields are
// left out so DuckDB applies its defaults.
func buildCreateSecretSQL(cfg SecretConfig) string {
	opts := []string{"TYPE " + cfg.Type}
	if cfg.Provider != "" {
		opts = append(opts, "PROVIDER "+cfg.Provider)
	}
	if cfg.Region != "" {
		opts = append(opts, "REGION "+quote(cfg.Region))
	}
	if cfg.KeyID != "" {
		opts = append(opts, "KEY_ID "+quote(cfg.KeyID))
	}
	if cfg.Secret != "" {
		opts = append(opts, "SECRET "+quote(cfg.Secret))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, "ENDPOINT "+quote(cfg.Endpoint))
	}
	if cfg.URLStyle != "" {
		opts = append(opts, "URL_STYLE "+quote(cfg.URLStyle))
	}
	if cfg.UseSSL != nil {
		opts = append(opts, fmt.Sprintf("USE_SSL %t", *cfg.UseSSL))
	}
	if scope := scopeSQL(cfg.Scope); scope != "" {
		opts = append(opts, "SCOPE "+scope)
	}
	return "CREATE SECRET (\n    " + strings.Join(opts, ",\n    ") + "\n)"
}

func scopeSQL(scope any) string {
	var items []string
	switch s := scope.(type) {
	case string:
		return quote(s)
	case []string:
		items = s
	case []any:
		for _, v := range s {
			items = append(items, fmt.Sprint(v))
		}
	}
	if len(items) == 0 {
		return ""
	}
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = quote(it)
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
