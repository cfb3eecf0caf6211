package postgis

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

func readHeader(r io.Reader) ([]string, error) {
	headers, err := csv.NewReader(r).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	return headers, nil
}

// sanitizeIdentifier turns a CSV header into a quoted column name. Spaces
// and hyphens become underscores.
func sanitizeIdentifier(name string) string {
	safe := strings.TrimSpace(name)
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = strings.ReplaceAll(safe, "-", "_")
	return adapter.QuoteIdent(safe)
}
