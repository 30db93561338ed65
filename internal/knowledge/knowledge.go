// Package knowledge holds the documentation embedding snapshot and serves
// similarity search over it.
//
// The primary source is a local JSON snapshot produced by the index
// command. Every query embeds the question, ranks all entries by cosine
// similarity, drops anything below the relevance floor, and returns the
// top matches. The snapshot is swapped atomically so reloads never block
// readers.
package knowledge

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
)

const (
	// VectorDimension is the embedding width for text-embedding-ada-002.
	// Stored vectors and query vectors must both have this dimension.
	VectorDimension = 1536

	// RelevanceFloor is the cosine similarity an entry must exceed to be
	// considered related to the query at all. Entries at or below the
	// floor are discarded.
	RelevanceFloor float32 = 0.3

	// DefaultTopK is the number of entries retrieved per query.
	DefaultTopK = 3

	// MaxContextChars caps the assembled context passed to the model.
	MaxContextChars = 2000
)

// ErrUnavailable indicates no knowledge source could be loaded, neither
// the local snapshot nor the database fallback.
var ErrUnavailable = errors.New("knowledge base unavailable")

// Entry is one embedded documentation chunk.
type Entry struct {
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// Match is an entry scored against a query.
type Match struct {
	URL        string
	Content    string
	Similarity float32
}

// Embedder turns text into a vector. Implemented by ai.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FallbackLoader supplies entries when the local snapshot is unreadable.
// Implemented by store.KnowledgeFallback over pgvector.
type FallbackLoader interface {
	LoadAll(ctx context.Context) ([]Entry, error)
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched dimensions or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// rank scores every entry against the query vector, drops entries at or
// below the relevance floor, and returns the topK best matches ordered by
// descending similarity.
func rank(entries []Entry, query []float32, topK int) []Match {
	if topK <= 0 {
		topK = DefaultTopK
	}

	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		sim := cosineSimilarity(e.Embedding, query)
		if sim <= RelevanceFloor {
			continue
		}
		matches = append(matches, Match{
			URL:        e.URL,
			Content:    e.Content,
			Similarity: sim,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// BuildContext joins match contents into a single context block, most
// relevant first, within the maxChars budget. Entries are included whole
// or not at all; assembly stops at the first entry that would overflow the
// budget so the model never sees a truncated chunk.
func BuildContext(matches []Match, maxChars int) string {
	if maxChars <= 0 {
		maxChars = MaxContextChars
	}

	var b strings.Builder
	for _, m := range matches {
		sep := 0
		if b.Len() > 0 {
			sep = 2 // "\n\n"
		}
		if b.Len()+sep+len(m.Content) > maxChars {
			break
		}
		if sep > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
