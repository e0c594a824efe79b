package domain

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TruncateText normalizes text to NFC and cuts it to limit runes.
// A limit of zero or less means unlimited.
func TruncateText(text string, limit int) string {
	text = normalizeText(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	return truncateRunes(text, limit)
}

func normalizeText(text string) string {
	return norm.NFC.String(text)
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
