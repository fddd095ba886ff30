// Package text holds rune-aware helpers for preparing content for
// classifiers and notification messages.
package text

// CountRunes counts Unicode characters rather than bytes, so "Größe" is 5.
func CountRunes(text string) int {
	return len([]rune(text))
}
