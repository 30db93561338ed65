// Package prompt builds the chat messages sent to the completion model.
//
// Building is pure: the same input always produces the same messages, so
// prompt shape is covered by plain table tests. The only branching is the
// code-versus-explanation split decided by a Classifier.
package prompt

import (
	"fmt"
	"strings"
)

// Role of the person asking, used to pitch the answer.
type Role string

const (
	RoleUser      Role = "user"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

// DetailLevel controls how expansive the answer should be.
type DetailLevel string

const (
	DetailBrief    DetailLevel = "brief"
	DetailStandard DetailLevel = "standard"
	DetailDetailed DetailLevel = "detailed"
)

// Reference is a source document surfaced alongside the answer.
type Reference struct {
	URL        string
	Similarity float32
}

// Input carries everything the builder needs for one query.
type Input struct {
	Context    string
	Query      string
	Role       Role
	Detail     DetailLevel
	References []Reference
}

// Classifier decides whether a query is asking for code.
type Classifier interface {
	IsCodeQuery(query string) bool
}

// codeIndicators are the keywords that mark a query as code-oriented.
var codeIndicators = []string{
	"code", "function", "implement", "write", "program", "syntax",
	"debug", "error", "example", "script", "development", "api",
	"integration",
}

// KeywordClassifier flags a query as code-oriented when it contains any of
// a fixed set of indicator keywords. Matching is case-insensitive on whole
// substrings, which is deliberately crude: a protocol question mentioning
// "error codes" gets the coding framing, and that has worked well enough
// in practice.
type KeywordClassifier struct {
	indicators []string
}

// NewKeywordClassifier creates a classifier with the default indicators.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{indicators: codeIndicators}
}

// IsCodeQuery implements Classifier.
func (c *KeywordClassifier) IsCodeQuery(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range c.indicators {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

const (
	codingSystem = "You are ross, an expert assistant for protocol developer documentation. " +
		"The user is asking a development question. Answer with working, idiomatic code " +
		"grounded strictly in the provided documentation context. Explain what the code " +
		"does and point out any protocol constraints it must respect. If the context does " +
		"not cover the question, say so instead of guessing."

	explainSystem = "You are ross, an expert assistant for protocol developer documentation. " +
		"Answer the user's question using only the provided documentation context. Be " +
		"accurate and concrete; cite the relevant concepts by name. If the context does " +
		"not cover the question, say so instead of guessing."
)

var roleNotes = map[Role]string{
	RoleDeveloper: "The asker is a developer integrating against the protocol; assume technical fluency.",
	RoleAdmin:     "The asker is an operator administering a deployment; focus on configuration and operational behavior.",
}

var detailNotes = map[DetailLevel]string{
	DetailBrief:    "Keep the answer short: a few sentences or a minimal snippet.",
	DetailDetailed: "Give a thorough answer covering edge cases and related behavior.",
}

// Builder assembles chat messages for the completion model.
type Builder struct {
	classifier Classifier
}

// NewBuilder creates a Builder. A nil classifier falls back to the default
// keyword classifier.
func NewBuilder(classifier Classifier) *Builder {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &Builder{classifier: classifier}
}

// System returns the system prompt text for the given input.
func (b *Builder) System(in Input) string {
	var parts []string
	if b.classifier.IsCodeQuery(in.Query) {
		parts = append(parts, codingSystem)
	} else {
		parts = append(parts, explainSystem)
	}
	if note, ok := roleNotes[in.Role]; ok {
		parts = append(parts, note)
	}
	if note, ok := detailNotes[in.Detail]; ok {
		parts = append(parts, note)
	}
	return strings.Join(parts, " ")
}

// User returns the user prompt text: context block, the question, and the
// sources the answer should reference.
func (b *Builder) User(in Input) string {
	var sb strings.Builder

	if in.Context != "" {
		sb.WriteString("Documentation context:\n")
		sb.WriteString(in.Context)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(in.Query)

	if refs := formatReferences(in.References); refs != "" {
		sb.WriteString("\n\nSources:\n")
		sb.WriteString(refs)
	}

	return sb.String()
}

// formatReferences renders the deduplicated source list, preserving order
// of first appearance.
func formatReferences(refs []Reference) string {
	seen := make(map[string]bool, len(refs))
	var lines []string
	for _, r := range refs {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		lines = append(lines, fmt.Sprintf("- %s (relevance %.2f)", r.URL, r.Similarity))
	}
	return strings.Join(lines, "\n")
}
