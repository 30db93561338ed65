// Package answer implements the query-to-response flow: retrieve relevant
// documentation, build the prompt, run the completion, classify the
// exchange, and persist the interaction.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rosslabs/ross/internal/ai"
	"github.com/rosslabs/ross/internal/knowledge"
	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/prompt"
	"github.com/rosslabs/ross/internal/store"
)

// Completion parameters. The low temperature keeps answers anchored to the
// documentation context; 800 tokens is enough for an explanation plus a
// code snippet without flooding the channel.
const (
	AnswerTemperature   = 0.15
	AnswerMaxTokens     = 800
	analysisTemperature = 0.1
	analysisMaxTokens   = 200
)

// Apology is sent to the user when the answer flow fails. Internal detail
// stays in the logs.
const Apology = "Sorry, I ran into a problem answering that. Please try again in a moment."

// Retriever finds documentation entries similar to a query.
// Implemented by knowledge.Store.
type Retriever interface {
	FindSimilar(ctx context.Context, query string, topK int) ([]knowledge.Match, error)
}

// Completer runs a chat completion. Implemented by ai.Client.
type Completer interface {
	Complete(ctx context.Context, msgs []ai.Message, opts ai.CompleteOptions) (string, error)
}

// InteractionWriter persists answered queries. Implemented by
// store.Interactions.
type InteractionWriter interface {
	Insert(ctx context.Context, in store.Interaction) error
}

// Service answers documentation questions.
type Service struct {
	retriever    Retriever
	completer    Completer
	interactions InteractionWriter
	prompts      *prompt.Builder
	models       *ai.ModelSelector
	topK         int
	logger       log.Logger
}

// NewService wires the answer flow. interactions may be nil when nothing
// should be persisted (one-off CLI queries).
func NewService(
	retriever Retriever,
	completer Completer,
	interactions InteractionWriter,
	prompts *prompt.Builder,
	models *ai.ModelSelector,
	topK int,
	logger log.Logger,
) *Service {
	if topK <= 0 {
		topK = knowledge.DefaultTopK
	}
	return &Service{
		retriever:    retriever,
		completer:    completer,
		interactions: interactions,
		prompts:      prompts,
		models:       models,
		topK:         topK,
		logger:       logger,
	}
}

// Option adjusts a single Answer call.
type Option func(*Options)

// Options are the per-call knobs. Exported so alternate Answerer
// implementations can apply the same options.
type Options struct {
	Role   prompt.Role
	Detail prompt.DetailLevel
	TopK   int
}

// WithRole pitches the answer at the given asker role.
func WithRole(role prompt.Role) Option {
	return func(o *Options) { o.Role = role }
}

// WithDetail sets the requested answer depth.
func WithDetail(detail prompt.DetailLevel) Option {
	return func(o *Options) { o.Detail = detail }
}

// WithTopK overrides the retrieval count for this call.
func WithTopK(topK int) Option {
	return func(o *Options) { o.TopK = topK }
}

// Result is an answered query.
type Result struct {
	Response   string
	References []prompt.Reference
	Topics     []string
	Tags       []string
}

// Answer runs the full flow for one query. On failure it returns the
// user-facing Apology as the response alongside the error, so callers can
// always send Result.Response to the channel.
//
// A persistence failure does not fail the answer: the user already has a
// good response at that point, losing the analytics row is the lesser harm.
func (s *Service) Answer(ctx context.Context, query, username string, opts ...Option) (Result, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	topK := o.TopK
	if topK <= 0 {
		topK = s.topK
	}

	matches, err := s.retriever.FindSimilar(ctx, query, topK)
	if err != nil {
		s.logger.Error("retrieval failed", "username", username, "error", err)
		return Result{Response: Apology}, fmt.Errorf("retrieving context: %w", err)
	}

	refs := make([]prompt.Reference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, prompt.Reference{URL: m.URL, Similarity: m.Similarity})
	}

	in := prompt.Input{
		Context:    knowledge.BuildContext(matches, knowledge.MaxContextChars),
		Query:      query,
		Role:       o.Role,
		Detail:     o.Detail,
		References: refs,
	}

	response, err := s.completer.Complete(ctx, []ai.Message{
		ai.SystemMessage(s.prompts.System(in)),
		ai.UserMessage(s.prompts.User(in)),
	}, ai.CompleteOptions{
		Model:       s.models.Current(),
		MaxTokens:   AnswerMaxTokens,
		Temperature: AnswerTemperature,
	})
	if err != nil {
		s.logger.Error("completion failed", "username", username, "error", err)
		return Result{Response: Apology}, fmt.Errorf("generating answer: %w", err)
	}

	// Classification is best-effort; a broken classifier never blocks the
	// answer.
	topics, tags := s.analyze(ctx, query)

	if s.interactions != nil {
		err := s.interactions.Insert(ctx, store.Interaction{
			Username: username,
			Query:    query,
			Response: response,
			Topics:   topics,
			Tags:     tags,
		})
		if err != nil {
			s.logger.Warn("recording interaction failed", "username", username, "error", err)
		}
	}

	return Result{
		Response:   response,
		References: refs,
		Topics:     topics,
		Tags:       tags,
	}, nil
}

const analysisSystem = "You classify protocol documentation questions. " +
	"Respond with strict JSON only, no prose and no code fences, in the shape " +
	`{"topics": ["..."], "tags": ["..."]}. Topics name the protocol areas the ` +
	"question covers; tags are short free-form labels."

type analysisResult struct {
	Topics []string `json:"topics"`
	Tags   []string `json:"tags"`
}

// analyze asks the model to classify the question text. Any failure
// degrades to empty lists with a warning; models wrap JSON in markdown
// fences often enough that those are stripped before parsing.
func (s *Service) analyze(ctx context.Context, query string) (topics, tags []string) {
	out, err := s.completer.Complete(ctx, []ai.Message{
		ai.SystemMessage(analysisSystem),
		ai.UserMessage(query),
	}, ai.CompleteOptions{
		Model:       s.models.Current(),
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
	})
	if err != nil {
		s.logger.Warn("classification call failed", "error", err)
		return nil, nil
	}

	var res analysisResult
	if err := json.Unmarshal([]byte(stripCodeFences(out)), &res); err != nil {
		s.logger.Warn("classification output unparseable", "output", out, "error", err)
		return nil, nil
	}
	return res.Topics, res.Tags
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, leaving other text untouched.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop a language tag like "json" on the fence line.
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		if first != "" && !strings.ContainsAny(first, "{[") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
