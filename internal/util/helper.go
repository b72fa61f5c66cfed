package util

import (
	"fmt"
	"strings"
)

// CloneSlice clones slice with cloneSize.
// This function will use src length as the clone size if cloneSize is 0.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// WordDump formats data read from a word-addressed memory as hex lines of
// eight words, each prefixed with the word address of its first word.
//
// Every word is two bytes, low byte first. With skipHigh the high byte of each
// word is omitted, which suits regions where only the low byte is meaningful.
func WordDump(address uint32, data []byte, skipHigh bool) []string {
	const wordsPerLine = 8

	var (
		lines []string
		sb    strings.Builder
	)

	for pos, word := 0, 0; pos < len(data); word++ {
		if word%wordsPerLine == 0 {
			fmt.Fprintf(&sb, "%04x:", address+uint32(word)) //nolint:gosec // word is bounded by len(data)
		}

		fmt.Fprintf(&sb, " %02x", data[pos])
		pos++
		if skipHigh {
			pos++
		} else if pos < len(data) {
			fmt.Fprintf(&sb, " %02x", data[pos])
			pos++
		}

		if word%wordsPerLine == wordsPerLine-1 {
			lines = append(lines, sb.String())
			sb.Reset()
		}
	}

	if sb.Len() > 0 {
		lines = append(lines, sb.String())
	}

	return lines
}
