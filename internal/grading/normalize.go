package grading

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	operatorSpacing = regexp.MustCompile(`\s*([+\-*/=(){}\[\],])\s*`)
	explicitProduct = regexp.MustCompile(`([0-9a-z])\s*(?:\*|·|\\cdot)\s*([0-9a-z])`)
	wrappedToken    = regexp.MustCompile(`\(([0-9a-z])\)`)

	lower = cases.Lower(language.Und)
)

// Normalize canonicalizes an answer for syntactic comparison. It is a best
// effort rewrite, not a parser: outer whitespace and case are dropped, spaces
// around operators and brackets are removed, products of single characters
// lose their operator (2*x, 2·x and 2\cdot x all become 2x) and parentheses
// around a single character are stripped. The rewrite steps, together with
// case folding and NFC composition, repeat until nothing changes, so
// Normalize is idempotent.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = canonical(s)

	for {
		next := operatorSpacing.ReplaceAllString(s, "$1")
		next = explicitProduct.ReplaceAllString(next, "$1$2")
		next = wrappedToken.ReplaceAllString(next, "$1")
		// Stripping brackets can join a letter with a combining mark.
		next = canonical(next)
		if next == s {
			return s
		}
		s = next
	}
}

func canonical(s string) string {
	return norm.NFC.String(lower.String(s))
}
