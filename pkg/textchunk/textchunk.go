// Package textchunk splits reply text into chunks that fit the
// per-message size limit of the chat network.
package textchunk

import (
	"strings"
	"unicode/utf8"
)

// Split packs input into chunks of at most limit bytes, greedily and
// line-preserving: lines are kept whole when they fit the remaining
// room, a line longer than limit is hard-split. Short input comes back
// as a single chunk; empty input yields one empty chunk.
func Split(input string, limit int) []string {
	if limit <= 0 || len(input) <= limit {
		return []string{input}
	}

	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.Split(input, "\n") {
		for len(line) > limit {
			flush()
			cut := splitPoint(line, limit)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}

		need := len(line)
		if cur.Len() > 0 {
			need++ // joining newline
		}
		if cur.Len()+need > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()

	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}

// splitPoint backs off from limit to the nearest rune boundary so a
// hard split never produces invalid UTF-8.
func splitPoint(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}
