package starlark

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"field reference", `"pop" * 2`, `attributes.get("pop") * 2`},
		{"equality and keywords", `"name" = 'Oslo' AND $area > 10`, `attributes.get("name") == "Oslo" and geometry.area > 10`},
		{"not equal", `"a" <> NULL`, `attributes.get("a") != None`},
		{"is not", `"a" IS NOT NULL`, `attributes.get("a") != None`},
		{"is", `"a" is null`, `attributes.get("a") == None`},
		{"quoted quote", `'it''s'`, `"it's"`},
		{"comparison kept", `"x" >= 3 or "x" != 1`, `attributes.get("x") >= 3 or attributes.get("x") != 1`},
		{"concatenation", `'a' || 'b'`, `"a" + "b"`},
		{"variables", `$x + $y`, `geometry.x + geometry.y`},
		{"geometry", `centroid($geometry)`, `centroid(geometry)`},
		{"plain starlark passes", `pop + 1 if pop else 0`, `pop + 1 if pop else 0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Translate(tt.in))
		})
	}
}
