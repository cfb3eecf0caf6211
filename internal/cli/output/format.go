package output

import (
	"fmt"
	"strings"
)

// FormatHeader formats a markdown header of the given level.
func FormatHeader(level int, text string) string {
	if level < 1 {
		level = 1
	}
	return strings.Repeat("#", level) + " " + text
}

// FormatKeyValue formats a markdown list item with a bold key.
func FormatKeyValue(key string, value any) string {
	return fmt.Sprintf("- **%s**: %v", key, value)
}
