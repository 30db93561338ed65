package transport

import (
	"strings"
	"testing"
)

func TestChunkByParagraphs(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "empty",
			text: "",
			max:  10,
			want: nil,
		},
		{
			name: "fits in one chunk",
			text: "short message",
			max:  100,
			want: []string{"short message"},
		},
		{
			name: "splits on paragraph boundary",
			text: strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 60),
			max:  100,
			want: []string{strings.Repeat("a", 60), strings.Repeat("b", 60)},
		},
		{
			name: "packs paragraphs that fit together",
			text: "one\n\ntwo\n\n" + strings.Repeat("c", 95),
			max:  100,
			want: []string{"one\n\ntwo", strings.Repeat("c", 95)},
		},
		{
			name: "hard splits oversized paragraph",
			text: strings.Repeat("x", 250),
			max:  100,
			want: []string{strings.Repeat("x", 100), strings.Repeat("x", 100), strings.Repeat("x", 50)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkByParagraphs(tt.text, tt.max)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks, want %d: %q", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunkByParagraphsRespectsLimit(t *testing.T) {
	text := strings.Repeat("word ", 2000) + "\n\n" + strings.Repeat("más", 500)
	for _, chunk := range ChunkByParagraphs(text, DefaultMaxMessageLen) {
		if len(chunk) > DefaultMaxMessageLen {
			t.Errorf("chunk of %d bytes exceeds limit", len(chunk))
		}
	}
}

func TestChunkByParagraphsMultibyte(t *testing.T) {
	// Hard split must not cut a rune in half.
	text := strings.Repeat("é", 150)
	for _, chunk := range ChunkByParagraphs(text, 100) {
		if !isValidUTF8(chunk) {
			t.Errorf("chunk contains broken rune: %q", chunk)
		}
	}
}

func isValidUTF8(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}
