package starlark

import (
	"strings"
	"unicode"
)

// keywords maps QGIS expression keywords (case-insensitive) to Starlark.
var keywords = map[string]string{
	"and":   "and",
	"or":    "or",
	"not":   "not",
	"null":  "None",
	"true":  "True",
	"false": "False",
	"in":    "in",
}

// variables maps $-prefixed QGIS variables to Starlark.
var variables = map[string]string{
	"geometry": "geometry",
	"area":     "geometry.area",
	"length":   "geometry.length",
	"x":        "geometry.x",
	"y":        "geometry.y",
	"id":       "feature_id",
}

// Translate rewrites a QGIS-style expression into Starlark:
//
//	"field"       -> attributes.get("field")
//	'text'        -> "text"
//	$area, $x     -> geometry.area, geometry.x
//	AND, OR, NULL -> and, or, None
//	=, <>, ||     -> ==, !=, +
//	IS, IS NOT    -> ==, !=
//
// Anything else is passed through, so plain Starlark is accepted as well.
func Translate(src string) string {
	var b strings.Builder
	rs := []rune(src)
	n := len(rs)
	for i := 0; i < n; {
		r := rs[i]
		switch {
		case r == '"':
			j := i + 1
			for j < n && rs[j] != '"' {
				j++
			}
			b.WriteString(`attributes.get("`)
			b.WriteString(escape(string(rs[i+1 : min(j, n)])))
			b.WriteString(`")`)
			i = j + 1

		case r == '\'':
			var lit strings.Builder
			j := i + 1
			for j < n {
				if rs[j] == '\'' {
					if j+1 < n && rs[j+1] == '\'' {
						lit.WriteRune('\'')
						j += 2
						continue
					}
					break
				}
				lit.WriteRune(rs[j])
				j++
			}
			b.WriteByte('"')
			b.WriteString(escape(lit.String()))
			b.WriteByte('"')
			i = j + 1

		case r == '$':
			j := i + 1
			for j < n && isIdent(rs[j]) {
				j++
			}
			name := strings.ToLower(string(rs[i+1 : j]))
			if v, ok := variables[name]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(string(rs[i:j]))
			}
			i = j

		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < n && isIdent(rs[j]) {
				j++
			}
			word := string(rs[i:j])
			lower := strings.ToLower(word)
			if lower == "is" {
				k := j
				for k < n && unicode.IsSpace(rs[k]) {
					k++
				}
				if k+3 <= n && strings.EqualFold(string(rs[k:k+3]), "not") && (k+3 == n || !isIdent(rs[k+3])) {
					b.WriteString("!=")
					i = k + 3
					continue
				}
				b.WriteString("==")
				i = j
				continue
			}
			if kw, ok := keywords[lower]; ok {
				b.WriteString(kw)
			} else {
				b.WriteString(word)
			}
			i = j

		case r == '<' && i+1 < n && rs[i+1] == '>':
			b.WriteString("!=")
			i += 2

		case r == '|' && i+1 < n && rs[i+1] == '|':
			b.WriteString("+")
			i += 2

		case r == '=':
			prev := rune(0)
			if i > 0 {
				prev = rs[i-1]
			}
			if i+1 < n && rs[i+1] == '=' {
				b.WriteString("==")
				i += 2
				continue
			}
			if strings.ContainsRune("<>!=", prev) {
				b.WriteRune('=')
			} else {
				b.WriteString("==")
			}
			i++

		default:
			b.WriteRune(r)
			i++
		}
	}
	return b.String()
}

func isIdent(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
