package prompt

import (
	"strings"
	"testing"
)

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()

	tests := []struct {
		name  string
		query string
		want  bool
	}{
		{"plain question", "what is the handshake sequence", false},
		{"code keyword", "show me example code for the handshake", true},
		{"case insensitive", "how do I DEBUG a rejected frame", true},
		{"api keyword", "which API endpoint registers a node", true},
		{"substring match", "why do error frames get dropped", true},
		{"empty query", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsCodeQuery(tt.query); got != tt.want {
				t.Errorf("IsCodeQuery(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	b := NewBuilder(nil)

	t.Run("code query uses coding framing", func(t *testing.T) {
		got := b.System(Input{Query: "write a function to open a session"})
		if !strings.Contains(got, "development question") {
			t.Errorf("System = %q, want coding framing", got)
		}
	})

	t.Run("plain query uses explanation framing", func(t *testing.T) {
		got := b.System(Input{Query: "what is a session"})
		if strings.Contains(got, "development question") {
			t.Errorf("System = %q, want explanation framing", got)
		}
	})

	t.Run("role and detail notes appended", func(t *testing.T) {
		got := b.System(Input{
			Query:  "what is a session",
			Role:   RoleAdmin,
			Detail: DetailBrief,
		})
		if !strings.Contains(got, "operator") {
			t.Errorf("System = %q, want admin role note", got)
		}
		if !strings.Contains(got, "short") {
			t.Errorf("System = %q, want brief detail note", got)
		}
	})

	t.Run("unknown role and standard detail add nothing", func(t *testing.T) {
		base := b.System(Input{Query: "what is a session"})
		got := b.System(Input{Query: "what is a session", Role: RoleUser, Detail: DetailStandard})
		if got != base {
			t.Errorf("System = %q, want bare framing %q", got, base)
		}
	})
}

func TestUserPrompt(t *testing.T) {
	b := NewBuilder(nil)

	got := b.User(Input{
		Context: "Sessions are opened with an OPEN frame.",
		Query:   "how do I open a session",
		References: []Reference{
			{URL: "https://docs.example/sessions", Similarity: 0.91},
			{URL: "https://docs.example/frames", Similarity: 0.52},
			{URL: "https://docs.example/sessions", Similarity: 0.91}, // duplicate
		},
	})

	if !strings.Contains(got, "Documentation context:\nSessions are opened") {
		t.Errorf("User prompt missing context block:\n%s", got)
	}
	if !strings.Contains(got, "Question: how do I open a session") {
		t.Errorf("User prompt missing question:\n%s", got)
	}
	if strings.Count(got, "https://docs.example/sessions") != 1 {
		t.Errorf("duplicate reference not collapsed:\n%s", got)
	}
	// Order of first appearance is preserved.
	if strings.Index(got, "sessions") > strings.Index(got, "frames") {
		t.Errorf("reference order not preserved:\n%s", got)
	}
}

func TestUserPromptNoContextNoRefs(t *testing.T) {
	b := NewBuilder(nil)
	got := b.User(Input{Query: "what is a node"})
	if got != "Question: what is a node" {
		t.Errorf("User = %q", got)
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(nil)
	in := Input{
		Context: "ctx",
		Query:   "how do I implement the handshake",
		Role:    RoleDeveloper,
		Detail:  DetailDetailed,
		References: []Reference{
			{URL: "https://docs.example/a", Similarity: 0.8},
		},
	}

	sys, user := b.System(in), b.User(in)
	for i := 0; i < 3; i++ {
		if b.System(in) != sys || b.User(in) != user {
			t.Fatal("prompt building is not deterministic")
		}
	}
}
