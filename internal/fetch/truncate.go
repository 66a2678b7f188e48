package fetch

import "strings"

// TruncateHTML caps html at max bytes without cutting through a tag. The cut
// point backs up to the last complete '>' inside the window so downstream
// parsers never see a half-open tag. Returns the (possibly shortened) HTML and
// whether anything was dropped.
func TruncateHTML(html string, max int) (string, bool) {
	if max <= 0 || len(html) <= max {
		return html, false
	}

	window := html[:max]
	if cut := strings.LastIndexByte(window, '>'); cut >= 0 {
		// Drop any unterminated tag that opened after the last '>'.
		return window[:cut+1], true
	}

	// No tag boundary in range; fall back to a hard byte cut aligned to a
	// UTF-8 rune boundary.
	for max > 0 && (html[max]&0xC0) == 0x80 {
		max--
	}
	return html[:max], true
}

// SplitHTML breaks html into chunks of at most chunkSize bytes, preferring tag
// boundaries so each chunk stands alone for the analysis prompt. maxChunks
// caps the output; the remainder past the cap is dropped.
func SplitHTML(html string, chunkSize, maxChunks int) []string {
	if chunkSize <= 0 || html == "" {
		return nil
	}

	var chunks []string
	rest := html
	for len(rest) > 0 {
		if maxChunks > 0 && len(chunks) >= maxChunks {
			break
		}
		if len(rest) <= chunkSize {
			chunks = append(chunks, rest)
			break
		}
		piece, _ := TruncateHTML(rest, chunkSize)
		if piece == "" {
			// Degenerate input (a single run longer than chunkSize with no
			// boundary); hard-cut to guarantee progress.
			piece = rest[:chunkSize]
		}
		chunks = append(chunks, piece)
		rest = rest[len(piece):]
	}
	return chunks
}
