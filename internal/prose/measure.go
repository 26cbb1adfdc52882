package prose

import (
	"math"
	"strings"
	"unicode/utf8"
)

// CountChars returns the character count as runes (not bytes).
// This correctly handles multi-byte UTF-8 characters.
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// EstimateTokens estimates token count using a word-based heuristic
// (1.3x the whitespace-separated word count).
func EstimateTokens(text string) int {
	words := strings.Fields(strings.TrimSpace(text))
	return int(math.Ceil(float64(len(words)) * 1.3))
}

// Tail returns the last n runes of text, or all of it when shorter.
// A non-positive n yields the empty string.
func Tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	count := utf8.RuneCountInString(text)
	if count <= n {
		return text
	}
	skip := count - n
	for i := range text {
		if skip == 0 {
			return text[i:]
		}
		skip--
	}
	return ""
}
