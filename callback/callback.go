// Package callback defines the Surface a session uses to report progress
// and to cooperatively check for an abort request, the same way
// abh/rrrgo's RecentTreeSpec takes injected logging hooks rather than
// writing to a package-global logger.
package callback

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/abh/dateferry"
)

// Surface bundles the dated-name pattern with the logging and abort hooks
// the transfer engine polls while it works.
type Surface struct {
	DatedRegex  string
	LogInfo     func(msg string)
	LogError    func(msg string)
	ShouldAbort func() bool
}

// Default returns a Surface with the documented defaults: the catch-all
// dated regex, println-style logging, and an abort hook that never fires.
func Default() *Surface {
	return &Surface{
		DatedRegex: `^.*%Y%m%d.*$`,
		LogInfo:    func(msg string) { fmt.Println("INFO -", msg) },
		LogError:   func(msg string) { fmt.Println("ERROR -", msg) },
		ShouldAbort: func() bool { return false },
	}
}

// FromLogger returns a Surface whose LogInfo/LogError hooks write through
// l, and whose ShouldAbort hook is abort (nil means never abort). This is
// the constructor the session and CLI entry points use in place of
// Default, so every run goes through the same structured logger the rest
// of the service uses.
func FromLogger(l *slog.Logger, datedRegex string, abort func() bool) *Surface {
	if datedRegex == "" {
		datedRegex = `^.*%Y%m%d.*$`
	}
	if abort == nil {
		abort = func() bool { return false }
	}
	return &Surface{
		DatedRegex:  datedRegex,
		LogInfo:     func(msg string) { l.Info(msg) },
		LogError:    func(msg string) { l.Error(msg) },
		ShouldAbort: abort,
	}
}

// Validate checks DatedRegex against the rules spelled out for
// dated_regex: it must start with "^", end with "$", contain exactly
// three distinct %Y/%m/%d tokens, and contain no parentheses. Every
// violated rule is collected into a single ConfigError rather than
// stopping at the first failure.
func (s *Surface) Validate() error {
	var violations []string
	r := s.DatedRegex

	if !strings.HasPrefix(r, "^") {
		violations = append(violations, "dated_regex must start with '^'")
	}
	if !strings.HasSuffix(r, "$") {
		violations = append(violations, "dated_regex must end with '$'")
	}
	if strings.ContainsAny(r, "()") {
		violations = append(violations, "dated_regex must not contain '(' or ')'")
	}

	counts := map[string]int{"%Y": 0, "%m": 0, "%d": 0}
	for _, tok := range []string{"%Y", "%m", "%d"} {
		counts[tok] = strings.Count(r, tok)
	}
	total := counts["%Y"] + counts["%m"] + counts["%d"]
	if total != 3 {
		violations = append(violations, fmt.Sprintf(
			"dated_regex must contain exactly three %%Y/%%m/%%d tokens, found %d", total))
	} else {
		for _, tok := range []string{"%Y", "%m", "%d"} {
			if counts[tok] != 1 {
				violations = append(violations, fmt.Sprintf(
					"dated_regex must contain %s exactly once, found %d", tok, counts[tok]))
			}
		}
	}

	if len(violations) > 0 {
		return &dateferry.ConfigError{Violations: violations}
	}
	return nil
}

// Info logs an informational message, tolerating a nil LogInfo hook.
func (s *Surface) Info(msg string) {
	if s.LogInfo != nil {
		s.LogInfo(msg)
	}
}

// Err logs an error message, tolerating a nil LogError hook.
func (s *Surface) Err(msg string) {
	if s.LogError != nil {
		s.LogError(msg)
	}
}

// Aborted polls the ShouldAbort hook, tolerating a nil hook.
func (s *Surface) Aborted() bool {
	return s.ShouldAbort != nil && s.ShouldAbort()
}
