package discord

import "strings"

// maxMessageLen is Discord's hard limit on message content length, counted
// in characters, not bytes.
const maxMessageLen = 2000

// splitMessage breaks content into chunks that fit Discord's message
// length limit. It prefers breaking on newlines, then on spaces, and only
// cuts mid-word when a single token exceeds the limit. Chunk boundaries
// always fall on rune boundaries.
func splitMessage(content string) []string {
	runes := []rune(content)
	if len(runes) <= maxMessageLen {
		return []string{content}
	}

	var chunks []string
	for len(runes) > maxMessageLen {
		cut := lastRune(runes[:maxMessageLen], '\n')
		if cut < 1 {
			cut = lastRune(runes[:maxMessageLen], ' ')
		}
		if cut < 1 {
			cut = maxMessageLen
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n "))
		runes = trimLeadingBreaks(runes[cut:])
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

func trimLeadingBreaks(rs []rune) []rune {
	for len(rs) > 0 && (rs[0] == '\n' || rs[0] == ' ') {
		rs = rs[1:]
	}
	return rs
}
