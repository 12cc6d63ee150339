package grading

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// CacheKeyPrefix namespaces verdict keys; bump the version when the key
// payload changes.
const CacheKeyPrefix = "grade:v1:"

type cacheKeyPayload struct {
	User       string   `json:"u"`
	Correct    string   `json:"c"`
	Numeric    bool     `json:"n"`
	Acceptable []string `json:"a,omitempty"`
}

// CacheKey derives the verdict cache key from the raw answers. The numeric
// flag keeps "4" as text apart from 4 as a number. The acceptable answers
// contribute their normalized set, so reordering or re-spacing the list does
// not change the key while a different list does.
func CacheKey(user string, correct Answer, acceptable []string) string {
	payload := cacheKeyPayload{
		User:    user,
		Correct: correct.String(),
		Numeric: correct.IsNumeric(),
	}
	if set := normalizedSet(acceptable); len(set) > 0 {
		payload.Acceptable = set
	}

	// Marshalling a struct of strings and a bool cannot fail.
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return CacheKeyPrefix + hex.EncodeToString(sum[:])
}
