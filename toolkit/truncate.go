package toolkit

import "fmt"

// truncateHeadTail keeps the head and tail of an oversized output, noting
// how much was removed from the middle. Oversized tool results would
// otherwise crowd the model's context window.
func truncateHeadTail(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	half := maxChars / 2
	removed := len(s) - maxChars
	return s[:half] +
		fmt.Sprintf("\n[... output truncated, %d characters removed from the middle ...]\n", removed) +
		s[len(s)-half:]
}
