// Package dateparser maps a filename or directory basename to a calendar
// date using a DateSpec: a regex-and-strftime hybrid that contains exactly
// one each of %Y, %m and %d. It also detects ambiguous specs — patterns
// that could parse the same basename into more than one distinct date —
// and rejects them instead of silently picking one.
package dateparser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Status is the outcome of parsing a single basename against a DateSpec.
type Status int

const (
	NoMatch Status = iota
	Matched
	Ambiguous
)

func (s Status) String() string {
	switch s {
	case NoMatch:
		return "no-match"
	case Matched:
		return "matched"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// semantic identifies which of %Y, %m, %d a capture group stands for.
type semantic int

const (
	semYear semantic = iota
	semMonth
	semDay
)

// DateSpec is a compiled date-matching template. Construct with NewDateSpec.
type DateSpec struct {
	raw        string
	anchoredRe *regexp.Regexp
	bodyRe     *regexp.Regexp
	order      []semantic
}

// Raw returns the original spec string the DateSpec was built from.
func (d *DateSpec) Raw() string { return d.raw }

var tokenOrder = []struct {
	token string
	sem   semantic
}{
	{"%Y", semYear},
	{"%m", semMonth},
	{"%d", semDay},
}

// NewDateSpec validates and compiles spec. spec must be anchored with ^ and
// $, contain exactly one occurrence each of %Y, %m and %d, exactly three
// '%' characters total, and no literal parentheses (no capturing groups of
// its own — the three date tokens are the only groups allowed).
func NewDateSpec(spec string) (*DateSpec, error) {
	if !strings.HasPrefix(spec, "^") || !strings.HasSuffix(spec, "$") {
		return nil, fmt.Errorf("dateparser: spec must be anchored with ^ and $: %q", spec)
	}
	if strings.ContainsAny(spec, "()") {
		return nil, fmt.Errorf("dateparser: spec must not contain capturing groups: %q", spec)
	}
	if strings.Count(spec, "%") != 3 {
		return nil, fmt.Errorf("dateparser: spec must contain exactly three %%-tokens: %q", spec)
	}

	var pattern strings.Builder
	var order []semantic
	seen := map[semantic]bool{}

	for i := 0; i < len(spec); {
		if spec[i] != '%' {
			pattern.WriteByte(spec[i])
			i++
			continue
		}
		matchedToken := false
		for _, t := range tokenOrder {
			if strings.HasPrefix(spec[i:], t.token) {
				if seen[t.sem] {
					return nil, fmt.Errorf("dateparser: duplicate token %s in spec: %q", t.token, spec)
				}
				seen[t.sem] = true
				order = append(order, t.sem)
				switch t.sem {
				case semYear:
					pattern.WriteString(`(\d{4})`)
				default:
					pattern.WriteString(`(\d{2})`)
				}
				i += len(t.token)
				matchedToken = true
				break
			}
		}
		if !matchedToken {
			return nil, fmt.Errorf("dateparser: unsupported %%-token at byte %d in spec: %q", i, spec)
		}
	}

	if !(seen[semYear] && seen[semMonth] && seen[semDay]) {
		return nil, fmt.Errorf("dateparser: spec must contain %%Y, %%m and %%d exactly once each: %q", spec)
	}

	full := pattern.String()
	anchoredRe, err := regexp.Compile(full)
	if err != nil {
		return nil, fmt.Errorf("dateparser: compile spec regex: %w", err)
	}

	start := strings.Index(full, "(")
	end := strings.LastIndex(full, ")")
	body := full[start : end+1]
	bodyRe, err := regexp.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("dateparser: compile ambiguity body regex: %w", err)
	}

	return &DateSpec{raw: spec, anchoredRe: anchoredRe, bodyRe: bodyRe, order: order}, nil
}

// Parse matches name against the spec. maxDate is the most recent date the
// caller will accept; anything parsed beyond it comes back as NoMatch, not
// an error, matching the convention that "too new" and "doesn't match" are
// indistinguishable to callers.
func (d *DateSpec) Parse(name string, maxDate time.Time) (time.Time, Status, error) {
	if d.isAmbiguous(name) {
		return time.Time{}, Ambiguous, nil
	}

	matches := d.anchoredRe.FindStringSubmatch(name)
	if matches == nil {
		return time.Time{}, NoMatch, nil
	}

	var y, m, day int
	for idx, sem := range d.order {
		v, err := strconv.Atoi(matches[idx+1])
		if err != nil {
			return time.Time{}, NoMatch, nil
		}
		switch sem {
		case semYear:
			y = v
		case semMonth:
			m = v
		case semDay:
			day = v
		}
	}

	t, ok := calendarDate(y, m, day)
	if !ok {
		return time.Time{}, NoMatch, nil
	}

	if t.After(maxDate) {
		return time.Time{}, NoMatch, nil
	}

	return t, Matched, nil
}

// isAmbiguous enumerates every substring of name (O(n^2) in len(name),
// acceptable for filenames) and runs the spec's unanchored capturing body
// against each. If the distinct (year, month, day) triples produced have
// cardinality greater than one, the spec is ambiguous for this name — e.g.
// "log-2020111111.txt" can read as 2020-11-11 (with trailing digits) or as
// a different split entirely.
func (d *DateSpec) isAmbiguous(name string) bool {
	type triple struct{ y, m, day string }
	seen := map[triple]struct{}{}

	n := len(name)
	for i := 0; i <= n; i++ {
		for j := i + 1; j <= n; j++ {
			sub := name[i:j]
			m := d.bodyRe.FindStringSubmatch(sub)
			if m == nil {
				continue
			}
			tr := triple{}
			for idx, sem := range d.order {
				switch sem {
				case semYear:
					tr.y = m[idx+1]
				case semMonth:
					tr.m = m[idx+1]
				case semDay:
					tr.day = m[idx+1]
				}
			}
			seen[tr] = struct{}{}
			if len(seen) > 1 {
				return true
			}
		}
	}
	return false
}

func calendarDate(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// MaxDate returns the most recent date eligible for upload given the
// current wall-clock time now: "the most recent date for which at least
// one hour into the following day has elapsed". Before 01:00 local time,
// even yesterday isn't safe yet, so the cutoff rolls back an extra day.
func MaxDate(now time.Time) time.Time {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if now.Hour() > 0 {
		return today.AddDate(0, 0, -1)
	}
	return today.AddDate(0, 0, -2)
}
