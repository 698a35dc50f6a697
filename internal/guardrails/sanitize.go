package guardrails

import "strings"

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// Sanitize escapes &, <, > and " for safe rendering. Single quotes are left as is.
func Sanitize(text string) string {
	return htmlReplacer.Replace(text)
}
