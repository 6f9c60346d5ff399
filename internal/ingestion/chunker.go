package ingestion

import "strings"

var separators = []string{"\n\n", "\n", ". ", " "}

// ChunkText splits text into windows of at most size runes, each starting
// overlap runes before the previous one ended. A window is cut at the last
// paragraph, line, sentence or word break in its second half when there is
// one.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else {
			end = breakPoint(runes, start, end)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func breakPoint(runes []rune, start, end int) int {
	window := string(runes[start:end])
	half := (end - start) / 2
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		cut := len([]rune(window[:idx+len(sep)]))
		if cut > half {
			return start + cut
		}
	}
	return end
}
