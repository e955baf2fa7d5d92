// Package itemlister enumerates the direct children of a source root that
// qualify as transfer items: entries of the right kind (directory or
// regular file) whose basename parses to a calendar date no later than
// the configured cutoff, the same direct-children-only scan abh/rrrgo's
// watcher uses before handing names off to the RECENT aggregator.
package itemlister

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/abh/dateferry"
	"github.com/abh/dateferry/dateparser"
)

// List enumerates the direct children of root, keeping only entries of
// kind whose basename matches spec with a date no later than the result
// of dateparser.MaxDate(now). Symbolic links are excluded regardless of
// kind. If any entry parses ambiguously, the entire call fails with an
// AmbiguousDateError listing every offender and no items are returned.
// The surviving names come back sorted ascending.
func List(root string, kind dateferry.ItemKind, spec *dateparser.DateSpec, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &dateferry.IoError{Path: root, Err: err}
	}

	maxDate := dateparser.MaxDate(now)

	var matched []string
	var ambiguous []string

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		switch kind {
		case dateferry.KindDirectories:
			if !entry.IsDir() {
				continue
			}
		case dateferry.KindFiles:
			if !entry.Type().IsRegular() {
				continue
			}
		default:
			return nil, fmt.Errorf("itemlister: unknown item kind %v", kind)
		}

		name := entry.Name()
		_, status, err := spec.Parse(name, maxDate)
		if err != nil {
			return nil, fmt.Errorf("itemlister: parsing %q: %w", name, err)
		}
		switch status {
		case dateparser.Matched:
			matched = append(matched, name)
		case dateparser.Ambiguous:
			ambiguous = append(ambiguous, name)
		case dateparser.NoMatch:
			// not a dated item, or newer than the cutoff; skip silently.
		}
	}

	if len(ambiguous) > 0 {
		sort.Strings(ambiguous)
		return nil, &dateferry.AmbiguousDateError{Names: ambiguous}
	}

	sort.Strings(matched)
	return matched, nil
}
