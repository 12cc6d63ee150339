package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Answer is a reference answer: either free text or a number. Numeric
// references are graded with a tolerance, text references syntactically.
type Answer struct {
	text    string
	number  float64
	numeric bool
}

// TextAnswer wraps a textual reference.
func TextAnswer(s string) Answer { return Answer{text: s} }

// NumberAnswer wraps a numeric reference.
func NumberAnswer(f float64) Answer { return Answer{number: f, numeric: true} }

// IsNumeric reports whether the reference was given as a number.
func (a Answer) IsNumeric() bool { return a.numeric }

// Number returns the numeric value of a numeric reference.
func (a Answer) Number() (float64, bool) { return a.number, a.numeric }

// IsZero reports whether no reference was supplied.
func (a Answer) IsZero() bool { return !a.numeric && a.text == "" }

// String coerces the reference to text. Numbers use the shortest
// representation that round-trips, so 4 prints as "4" and 0.5 as "0.5".
func (a Answer) String() string {
	if a.numeric {
		return strconv.FormatFloat(a.number, 'f', -1, 64)
	}
	return a.text
}

// UnmarshalJSON accepts a JSON string, number or null.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = Answer{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = TextAnswer(s)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("answer must be a string or a number: %w", err)
		}
		*a = NumberAnswer(f)
		return nil
	}
}

// MarshalJSON writes numbers as JSON numbers and text as strings.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.numeric {
		return json.Marshal(a.number)
	}
	return json.Marshal(a.text)
}
