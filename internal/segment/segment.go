// Package segment splits passages into sentences on a fixed set of
// sentence-final marks shared by English and Chinese text.
package segment

import (
	"strings"
	"unicode"
)

// Split returns the sentences of text in order. A delimiter, together with any
// delimiters that immediately follow it, stays on the sentence it ends.
// Whitespace after a delimiter, zero-width characters included, separates
// sentences and is dropped. Text after the last delimiter is kept.
//
// Decimal numbers such as "3.14" are split at the point.
func Split(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)
	runes := []rune(text)
	flush := func() {
		if s := strings.TrimFunc(current.String(), isSeparator); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)
		if !IsDelimiter(r) {
			continue
		}
		for i+1 < len(runes) && IsDelimiter(runes[i+1]) {
			i++
			current.WriteRune(runes[i])
		}
		for i+1 < len(runes) && isSeparator(runes[i+1]) {
			i++
		}
		flush()
	}
	flush()
	return sentences
}

// IsDelimiter reports whether r ends a sentence.
func IsDelimiter(r rune) bool {
	switch r {
	case '.', '?', '!', '。', '？', '！':
		return true
	}
	return false
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return false
}
