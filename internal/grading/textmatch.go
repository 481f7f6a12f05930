package grading

import "strings"

// Normalize trims surrounding whitespace and case-folds. Answer keys are
// stored already normalized, so grading reduces to set membership without
// re-normalizing the key side.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
