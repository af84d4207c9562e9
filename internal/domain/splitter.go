package domain

// lastSentenceBoundary returns the rune index just past the last sentence
// ending inside runes[start:end], or -1 when none exists. A sentence ends at
// . ! ? or the Japanese period 。 followed by whitespace or the window edge.
func lastSentenceBoundary(runes []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
			return i + 1
		}
	}
	return -1
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '。'
}
