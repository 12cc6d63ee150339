package grading

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// NumericTolerance is the absolute difference below which a numeric answer
// matches a numeric reference.
const NumericTolerance = 0.001

// ExactMatch is the cheap syntactic tier. A numeric reference matches when the
// user's answer parses to a number within NumericTolerance of it; any other
// reference matches when both sides normalize to the same string.
func ExactMatch(user string, ref Answer) bool {
	if want, ok := ref.Number(); ok {
		return numericMatch(user, want)
	}
	return Normalize(user) == Normalize(ref.String())
}

// FuzzyMatch is the looser comparison used when the semantic judge cannot be
// reached: numbers compare as in ExactMatch, text ignores all whitespace and case.
func FuzzyMatch(user string, ref Answer) bool {
	if want, ok := ref.Number(); ok {
		return numericMatch(user, want)
	}
	return squash(user) == squash(ref.String())
}

func numericMatch(user string, want float64) bool {
	got, ok := parseLeadingFloat(removeSpace(user))
	return ok && math.Abs(got-want) < NumericTolerance
}

func removeSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func squash(s string) string {
	return strings.ToLower(removeSpace(s))
}

// parseLeadingFloat parses the longest decimal prefix of s, so "4abc" reads
// as 4 and ".5" as 0.5 while "abc" fails. Hex, NaN and digit separators are
// not accepted.
func parseLeadingFloat(s string) (float64, bool) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}
	end := i

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expDigits := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			expDigits++
		}
		if expDigits > 0 {
			end = j
		}
	}

	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
