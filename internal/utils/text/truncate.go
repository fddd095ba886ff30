package text

// Truncate shortens text to at most maxRunes runes without splitting a
// multi-byte character. It reports whether anything was cut.
// A non-positive maxRunes leaves text unchanged.
func Truncate(text string, maxRunes int) (string, bool) {
	if maxRunes <= 0 || len(text) <= maxRunes {
		return text, false
	}
	n := 0
	for i := range text {
		if n == maxRunes {
			return text[:i], true
		}
		n++
	}
	return text, false
}
