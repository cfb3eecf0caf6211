package spatialsql

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapgis/pkg/adapter"
)

// expressionFunctions maps feature expression functions to SQL functions.
var expressionFunctions = map[string]string{
	"area":       "ST_Area",
	"bounds":     "ST_Envelope",
	"buffer":     "ST_Buffer",
	"centroid":   "ST_Centroid",
	"contains":   "ST_Contains",
	"distance":   "ST_Distance",
	"intersects": "ST_Intersects",
	"length":     "ST_Length",
	"make_point": "ST_Point",
	"translate":  "ST_Translate",
	"within":     "ST_Within",
	"x":          "ST_X",
	"y":          "ST_Y",
}

// expressionCasts maps conversion functions to the field kind they cast to.
var expressionCasts = map[string]string{
	"to_int":    "integer",
	"to_real":   "float",
	"to_string": "string",
}

var expressionVariables = map[string]string{
	"$geometry": `t."geom"`,
	"$area":     `ST_Area(t."geom")`,
	"$length":   `ST_Length(t."geom")`,
	"$x":        `ST_X(ST_Centroid(t."geom"))`,
	"$y":        `ST_Y(ST_Centroid(t."geom"))`,
	"$id":       "(row_number() OVER () - 1)",
}

func invalidExpression(format string, args ...any) *adapter.EngineError {
	return &adapter.EngineError{Code: adapter.CodeFailure, Message: "invalid expression: " + fmt.Sprintf(format, args...)}
}

// TranslateExpression rewrites a feature expression into a SQL expression
// over the row aliased t. Double-quoted field names and single-quoted strings
// pass through unchanged. Statement separators and comments are rejected so
// an expression can never leave the SELECT it is embedded in.
func TranslateExpression(src string, d *Dialect) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", invalidExpression("empty")
	}
	var out strings.Builder
	var closers []string
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			end, err := closingQuote(src, i)
			if err != nil {
				return "", err
			}
			out.WriteString(src[i : end+1])
			i = end + 1
		case c == ';':
			return "", adapter.Unsupported("statement separators in expressions")
		case strings.HasPrefix(src[i:], "--") || strings.HasPrefix(src[i:], "/*"):
			return "", adapter.Unsupported("comments in expressions")
		case c == '$':
			j := scanIdent(src, i+1)
			v, ok := expressionVariables[strings.ToLower(src[i:j])]
			if !ok {
				return "", adapter.Unsupported("expression variable %s", src[i:j])
			}
			out.WriteString(v)
			i = j
		case isIdentStart(c):
			j := scanIdent(src, i)
			word := src[i:j]
			k := j
			for k < len(src) && (src[k] == ' ' || src[k] == '\t') {
				k++
			}
			if k < len(src) && src[k] == '(' {
				lower := strings.ToLower(word)
				if kind, ok := expressionCasts[lower]; ok {
					out.WriteString("CAST(")
					closers = append(closers, " AS "+d.Type(kind)+")")
					i = k + 1
					continue
				}
				if fn, ok := expressionFunctions[lower]; ok {
					word = fn
				}
			}
			out.WriteString(word)
			i = j
		case c == '(':
			closers = append(closers, ")")
			out.WriteByte(c)
			i++
		case c == ')':
			if len(closers) == 0 {
				return "", invalidExpression("unbalanced parentheses")
			}
			out.WriteString(closers[len(closers)-1])
			closers = closers[:len(closers)-1]
			i++
		case c == '=' && i+1 < len(src) && src[i+1] == '=':
			out.WriteByte('=')
			i += 2
		default:
			out.WriteByte(c)
			i++
		}
	}
	if len(closers) > 0 {
		return "", invalidExpression("unbalanced parentheses")
	}
	return out.String(), nil
}

// closingQuote returns the index of the quote ending the literal or
// identifier starting at i. Doubled quotes are escapes.
func closingQuote(src string, i int) (int, error) {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		if src[j] != q {
			continue
		}
		if j+1 < len(src) && src[j+1] == q {
			j++
			continue
		}
		return j, nil
	}
	return 0, invalidExpression("unterminated %c", q)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func scanIdent(src string, i int) int {
	for i < len(src) && (isIdentStart(src[i]) || (src[i] >= '0' && src[i] <= '9')) {
		i++
	}
	return i
}
