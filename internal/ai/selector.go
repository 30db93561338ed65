package ai

import "sync/atomic"

// ModelSelector tracks which chat model answers should use. It starts at
// the configured base model and is promoted to a fine-tuned model when a
// training job succeeds. Safe for concurrent use: answers read it on every
// query while the training scheduler writes it.
type ModelSelector struct {
	current atomic.Value // string
}

// NewModelSelector creates a selector starting at the base model.
func NewModelSelector(base string) *ModelSelector {
	s := &ModelSelector{}
	s.current.Store(base)
	return s
}

// Current returns the model identifier completions should use.
func (s *ModelSelector) Current() string {
	v, _ := s.current.Load().(string)
	return v
}

// Promote switches the selector to a new model. Empty identifiers are
// ignored so a failed training cycle can never blank out the model.
func (s *ModelSelector) Promote(model string) {
	if model == "" {
		return
	}
	s.current.Store(model)
}
