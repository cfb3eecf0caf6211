package catalog

import (
	"sort"
	"strings"
)

var aggregateFunctions = map[string]struct{}{
	"count":          {},
	"count_distinct": {},
	"count_missing":  {},
	"sum":            {},
	"mean":           {},
	"median":         {},
	"min":            {},
	"max":            {},
	"range":          {},
	"stddev":         {},
	"minority":       {},
	"majority":       {},
	"first_value":    {},
	"last_value":     {},
	"concatenate":    {},
}

// IsAggregateFunction reports whether name is an allowed aggregate or summary function.
func IsAggregateFunction(name string) bool {
	_, ok := aggregateFunctions[strings.ToLower(name)]
	return ok
}

// AggregateFunctions returns the allow-list, sorted.
func AggregateFunctions() []string {
	out := make([]string, 0, len(aggregateFunctions))
	for f := range aggregateFunctions {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Aggregate is one parsed AGGREGATES entry.
type Aggregate struct {
	Function string
	Field    string
}

// ParseAggregate splits "function" or "function:field". The function name is
// lowercased; the field is kept verbatim.
func ParseAggregate(s string) Aggregate {
	fn, field, _ := strings.Cut(strings.TrimSpace(s), ":")
	return Aggregate{Function: strings.ToLower(strings.TrimSpace(fn)), Field: strings.TrimSpace(field)}
}

// OutputField names the field an aggregate writes: "field_function", or the
// bare function when no field is given.
func (a Aggregate) OutputField() string {
	if a.Field == "" {
		return a.Function
	}
	return a.Field + "_" + a.Function
}
