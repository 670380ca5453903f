package qa

import "strings"

// EscapeDollars escapes "$" so markdown renderers do not start math mode.
func EscapeDollars(s string) string {
	return strings.ReplaceAll(s, "$", `\$`)
}
