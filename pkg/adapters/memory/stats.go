package memory

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// toFloat converts numeric attribute values. Strings are not parsed.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// coerce converts a computed value to the requested field type. nil stays nil.
func coerce(v any, fieldType string) any {
	if v == nil {
		return nil
	}
	switch fieldType {
	case "string":
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	case "integer":
		if f, ok := toFloat(v); ok {
			return int64(math.Trunc(f))
		}
		if s, ok := v.(string); ok {
			if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return i
			}
		}
		return nil
	default:
		if f, ok := toFloat(v); ok {
			return f
		}
		if b, ok := v.(bool); ok {
			if b {
				return 1.0
			}
			return 0.0
		}
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f
			}
		}
		return nil
	}
}

// summarize computes one aggregate function over values. Numeric functions
// ignore non-numeric values and return nil when nothing numeric is left.
func summarize(fn string, values []any) any {
	var present []any
	for _, v := range values {
		if v != nil {
			present = append(present, v)
		}
	}
	switch fn {
	case "count":
		return int64(len(present))
	case "count_missing":
		return int64(len(values) - len(present))
	case "count_distinct":
		seen := make(map[string]struct{})
		for _, v := range present {
			seen[groupKey(v)] = struct{}{}
		}
		return int64(len(seen))
	case "first_value":
		if len(values) == 0 {
			return nil
		}
		return values[0]
	case "last_value":
		if len(values) == 0 {
			return nil
		}
		return values[len(values)-1]
	case "concatenate":
		parts := make([]string, 0, len(present))
		for _, v := range present {
			parts = append(parts, fmt.Sprint(v))
		}
		return strings.Join(parts, ",")
	case "minority", "majority":
		return mode(present, fn == "majority")
	case "min", "max":
		if nums := numbers(present); len(nums) > 0 {
			sort.Float64s(nums)
			if fn == "min" {
				return nums[0]
			}
			return nums[len(nums)-1]
		}
		return minMaxString(present, fn == "max")
	}

	nums := numbers(present)
	if len(nums) == 0 {
		if fn == "sum" {
			return 0.0
		}
		return nil
	}
	switch fn {
	case "sum":
		return sum(nums)
	case "mean":
		return sum(nums) / float64(len(nums))
	case "median":
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return nums[mid]
		}
		return (nums[mid-1] + nums[mid]) / 2
	case "range":
		sort.Float64s(nums)
		return nums[len(nums)-1] - nums[0]
	case "stddev":
		if len(nums) < 2 {
			return 0.0
		}
		mean := sum(nums) / float64(len(nums))
		var sq float64
		for _, n := range nums {
			sq += (n - mean) * (n - mean)
		}
		return math.Sqrt(sq / float64(len(nums)-1))
	}
	return nil
}

func numbers(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := toFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

func sum(nums []float64) float64 {
	var s float64
	for _, n := range nums {
		s += n
	}
	return s
}

// mode returns the most (or least) frequent value; ties go to the first seen.
func mode(values []any, most bool) any {
	if len(values) == 0 {
		return nil
	}
	counts := make(map[string]int)
	first := make(map[string]any)
	var order []string
	for _, v := range values {
		k := groupKey(v)
		if _, ok := counts[k]; !ok {
			order = append(order, k)
			first[k] = v
		}
		counts[k]++
	}
	best := order[0]
	for _, k := range order[1:] {
		if (most && counts[k] > counts[best]) || (!most && counts[k] < counts[best]) {
			best = k
		}
	}
	return first[best]
}

func minMaxString(values []any, largest bool) any {
	var out string
	found := false
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if !found || (largest && s > out) || (!largest && s < out) {
			out, found = s, true
		}
	}
	if !found {
		return nil
	}
	return out
}
