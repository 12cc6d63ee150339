package grading

import (
	"slices"
	"strings"
)

// MatchesAcceptable reports whether the user's answer normalizes to any of
// the instructor-approved alternatives. An empty list never matches.
func MatchesAcceptable(user string, acceptable []string) bool {
	if len(acceptable) == 0 {
		return false
	}
	normalized := Normalize(user)
	for _, a := range acceptable {
		if Normalize(a) == normalized {
			return true
		}
	}
	return false
}

// normalizedSet returns the sorted, de-duplicated normalized forms of list,
// ignoring entries that normalize to nothing.
func normalizedSet(list []string) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		if n := Normalize(a); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// MergeAcceptable appends the entries of extra missing from base, keeping
// first-seen order. Blank entries are dropped.
func MergeAcceptable(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, a := range list {
			if strings.TrimSpace(a) == "" {
				continue
			}
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}
