package transport

import "strings"

// DefaultMaxMessageLen is the message length limit chunking targets.
const DefaultMaxMessageLen = 2000

// ChunkByParagraphs splits text into chunks of at most max characters,
// preferring paragraph boundaries so code blocks and prose stay readable.
// A single paragraph longer than max is hard-split on rune boundaries as
// a last resort.
func ChunkByParagraphs(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxMessageLen
	}
	if len(text) <= max {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		if para == "" {
			continue
		}

		sep := 0
		if current.Len() > 0 {
			sep = 2
		}

		if current.Len()+sep+len(para) <= max {
			if sep > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(para)
			continue
		}

		flush()

		// Paragraph fits a chunk on its own.
		if len(para) <= max {
			current.WriteString(para)
			continue
		}

		// Oversized paragraph: hard-split on rune boundaries.
		for _, piece := range splitRunes(para, max) {
			chunks = append(chunks, piece)
		}
	}
	flush()

	return chunks
}

// splitRunes splits s into pieces of at most max bytes without cutting a
// rune in half.
func splitRunes(s string, max int) []string {
	var pieces []string
	var b strings.Builder
	for _, r := range s {
		if b.Len()+len(string(r)) > max {
			pieces = append(pieces, b.String())
			b.Reset()
		}
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		pieces = append(pieces, b.String())
	}
	return pieces
}
