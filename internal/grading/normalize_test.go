package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "whitespace_only", input: "   ", want: ""},
		{name: "case_and_outer_space", input: "  X + X ", want: "x+x"},
		{name: "spaces_around_equals", input: "x = 2", want: "x=2"},
		{name: "set_notation", input: "{1, 2, 3}", want: "{1,2,3}"},
		{name: "interval", input: "[ 0 , 1 )", want: "[0,1)"},
		{name: "star_product", input: "2 * x", want: "2x"},
		{name: "middle_dot_product", input: "2·x", want: "2x"},
		{name: "latex_cdot_product", input: `2 \cdot x`, want: "2x"},
		{name: "chained_product", input: "a*b*c", want: "abc"},
		{name: "wrapped_token", input: "3(x)", want: "3x"},
		{name: "nested_wrapped_token", input: "((x))", want: "x"},
		{name: "wider_parentheses_kept", input: "(x+1)(x-1)", want: "(x+1)(x-1)"},
		{name: "latex_untouched", input: `\frac{1}{2}`, want: `\frac{1}{2}`},
		{name: "inner_space_between_words_kept", input: "no solution", want: "no solution"},
		{name: "decomposed_accent_composed", input: "E\u0301", want: "\u00e9"},
		{name: "accent_composed_after_unwrapping", input: "(e)\u0301", want: "\u00e9"},
		{name: "umlaut_composed_after_unwrapping", input: "(A)\u0308", want: "\u00e4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"  X + X ",
		"2 * x * y",
		`a \cdot (b)`,
		"((((z))))",
		"{3, 1, 2}",
		`\sqrt{ 2 } / 2`,
		"x^2 - 4 = 0",
		"Σ n",
		"1 , 2 ,3",
		"(a)*(b)",
		"(e)\u0301",
		"(a)\u0308",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
