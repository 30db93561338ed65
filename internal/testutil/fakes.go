// Package testutil provides shared testing utilities for the ross project.
//
// It contains the deterministic model fakes and the PostgreSQL container
// setup used by integration tests across packages.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/rosslabs/ross/internal/ai"
)

// FakeCompleter provides deterministic chat completions for testing. It
// matches the last user message against registered patterns and returns
// the corresponding response; first match wins.
//
// Thread-safe for concurrent use.
type FakeCompleter struct {
	mu       sync.Mutex
	rules    []completerRule
	fallback string
	err      error
	calls    []CompleterCall
}

type completerRule struct {
	pattern  string // substring match, lowercase
	response string
}

// CompleterCall records a single call to the fake.
type CompleterCall struct {
	Messages []ai.Message
	Model    string
	Response string
}

// NewFakeCompleter creates a fake with the given fallback response,
// returned when no pattern matches.
func NewFakeCompleter(fallback string) *FakeCompleter {
	return &FakeCompleter{fallback: fallback}
}

// AddResponse registers a pattern-response pair. A call whose last user
// message contains the pattern (case-insensitive) gets the response.
func (f *FakeCompleter) AddResponse(pattern, response string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, completerRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// Fail makes every subsequent call return err.
func (f *FakeCompleter) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Complete implements the completion interface consumers define.
func (f *FakeCompleter) Complete(_ context.Context, msgs []ai.Message, opts ai.CompleteOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}

	var userText string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == ai.RoleUser {
			userText = msgs[i].Content
			break
		}
	}

	response := f.fallback
	lower := strings.ToLower(userText)
	for _, r := range f.rules {
		if strings.Contains(lower, r.pattern) {
			response = r.response
			break
		}
	}

	f.calls = append(f.calls, CompleterCall{
		Messages: msgs,
		Model:    opts.Model,
		Response: response,
	})
	return response, nil
}

// Calls returns a copy of all recorded calls.
func (f *FakeCompleter) Calls() []CompleterCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]CompleterCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

// FakeEmbedder provides deterministic embedding vectors for testing.
//
// By default it derives a normalized vector from the text with SHA-256,
// so the same text always embeds identically. Explicit vectors can be
// registered for precise cosine similarity control.
//
// Thread-safe for concurrent use.
type FakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
	err     error
}

// NewFakeEmbedder creates a fake embedder with the given vector dimension.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	return &FakeEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a text. Use this to control
// exact similarity between test inputs.
func (e *FakeEmbedder) SetVector(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

// Fail makes every subsequent call return err.
func (e *FakeEmbedder) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Embed implements the embedder interface consumers define.
func (e *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return deterministicVector(text, e.dim), nil
}

// deterministicVector generates a normalized vector from text using
// SHA-256. The same text always produces the same vector.
func deterministicVector(text string, dim int) []float32 {
	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}
