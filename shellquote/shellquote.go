// Package shellquote builds POSIX-shell-safe argument strings for the
// handful of remote commands the transfer engine issues (mkdir, touch,
// rm, find). It is deliberately minimal: single-quote the argument and
// escape embedded single quotes, which is sufficient for POSIX sh.
package shellquote

import "strings"

// Quote wraps s in single quotes, safe for interpolation into a POSIX
// shell command line.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Join quotes and joins multiple arguments with a single space.
func Join(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}
