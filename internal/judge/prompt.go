package judge

import (
	"fmt"
	"strings"
)

// SystemPrompt pins the model to a binary verdict.
const SystemPrompt = `You are a precise mathematical answer validator. You only respond with 'CORRECT' or 'INCORRECT'.

Rules:
- Sets are equal regardless of element order: "{1, 2, 3}" and "{3, 1, 2}" are the same answer.
- Algebraically equivalent expressions are equal: "2x", "x + x" and "2*x" are the same answer.
- Typesetting does not matter. Accept any reasonable notation, including LaTeX.`

const userPromptTemplate = `You are a math teacher grading a student's answer. Your task is to determine if the student's answer is mathematically equivalent to the correct answer.

Student's answer: %s
Correct answer: %s

Consider the following:
VERY IMPORTANT: Different but equivalent set ordering (e.g., "{1, 2, 3}" and "{3, 1, 2}" ARE BOTH CORRECT)
1. Different but equivalent mathematical expressions (e.g., "2x" and "x + x")
2. Different but equivalent typesetting (e.g., "2x" and "2*x")
3. Accept any reasonable mathematical notation, including LaTeX.

Respond with ONLY "CORRECT" or "INCORRECT". Do not include any explanation or additional text.`

// UserPrompt renders the grading question for one answer pair.
func UserPrompt(userAnswer, correctAnswer string) string {
	return fmt.Sprintf(userPromptTemplate, userAnswer, correctAnswer)
}

// ParseVerdict reads the model reply. Only CORRECT, ignoring case and
// surrounding whitespace, is a positive verdict.
func ParseVerdict(reply string) bool {
	return strings.ToUpper(strings.TrimSpace(reply)) == "CORRECT"
}

func isIncorrect(reply string) bool {
	return strings.ToUpper(strings.TrimSpace(reply)) == "INCORRECT"
}
