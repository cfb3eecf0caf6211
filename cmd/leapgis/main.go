// Package main provides the CLI for the leapgis geospatial operation dispatcher.
package main

import (
	"os"

	"github.com/leapstack-labs/leapgis/internal/cli"

	// Engine adapters register themselves in init()
	_ "github.com/leapstack-labs/leapgis/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapgis/pkg/adapters/memory"
	_ "github.com/leapstack-labs/leapgis/pkg/adapters/postgis"
	_ "github.com/leapstack-labs/leapgis/pkg/adapters/qgis"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
