package engine

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// NoChangesMarker is recorded in place of a diff when the oracle returned
// the source unchanged. History consumers can rely on the diff field of a
// fix record always being populated.
const NoChangesMarker = "No changes made"

// unifiedDiff renders the patch between the current source and a suggested
// correction in unified format with three lines of context, labeled
// original.py and fixed.py. Identical inputs yield NoChangesMarker.
func unifiedDiff(original, corrected string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(corrected),
		FromFile: "original.py",
		ToFile:   "fixed.py",
		Context:  3,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		return NoChangesMarker
	}
	return text
}
