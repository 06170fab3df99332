package snapshot

import "unicode/utf8"

// GA4 reports the same path under several titles when a site serves
// translated variants or the title changed mid-range. readableTitle filters
// out machine-translated Korean titles that pollute Japanese and English
// sites; preferTitle picks the better of two candidates when merging rows.

func readableTitle(title string) bool {
	if title == "" {
		return false
	}

	hasLatin := false
	hasKanji := false
	for _, r := range title {
		switch {
		// Hangul syllables, jamo and compatibility jamo.
		case r >= 0xAC00 && r <= 0xD7AF, r >= 0x1100 && r <= 0x11FF, r >= 0x3130 && r <= 0x318F:
			return false
		// Hiragana and katakana.
		case r >= 0x3040 && r <= 0x309F, r >= 0x30A0 && r <= 0x30FF:
			return true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLatin = true
		// CJK unified ideographs; common on Japanese sites.
		case r >= 0x4E00 && r <= 0x9FFF:
			hasKanji = true
		}
	}
	return hasLatin || hasKanji
}

// preferTitle keeps a readable title over an unreadable one, and the longer
// of two readable titles. Length is counted in runes so multi-byte Japanese
// titles are not favored over shorter-looking Latin ones.
func preferTitle(current, candidate string) string {
	currentOK := readableTitle(current)
	candidateOK := readableTitle(candidate)

	if candidateOK && !currentOK {
		return candidate
	}
	if candidateOK && currentOK && utf8.RuneCountInString(candidate) > utf8.RuneCountInString(current) {
		return candidate
	}
	return current
}
