package util

// TruncateRightWithSuffix keeps at most max leading runes of text, appending suffix only if text was shortened.
func TruncateRightWithSuffix(text string, max int, suffix string) string {
	if max <= 0 {
		return suffix
	}

	rs := []rune(text)
	if len(rs) <= max {
		return text
	}

	return string(rs[:max]) + suffix
}
