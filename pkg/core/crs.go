package core

import (
	"strconv"
	"strings"
)

// NormalizeCRS folds common CRS spellings ("epsg:4326",
// "urn:ogc:def:crs:EPSG::3857", "CRS84") to "EPSG:<code>". Unknown forms are
// returned trimmed but otherwise unchanged.
func NormalizeCRS(s string) string {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	switch {
	case upper == "":
		return ""
	case strings.HasSuffix(upper, "CRS84"):
		return "EPSG:4326"
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:EPSG:"):
		return "EPSG:" + strings.TrimLeft(upper[len("URN:OGC:DEF:CRS:EPSG:"):], ":")
	case upper == "EPSG:900913":
		return "EPSG:3857"
	case strings.HasPrefix(upper, "EPSG:"):
		return upper
	}
	return s
}

// EPSGCode returns the numeric code of an EPSG CRS.
func EPSGCode(crs string) (int, bool) {
	code, ok := strings.CutPrefix(NormalizeCRS(crs), "EPSG:")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
