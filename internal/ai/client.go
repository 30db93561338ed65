package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/rosslabs/ross/internal/log"
)

// Default models. ada-002 matches the dimensionality of the stored
// knowledge embeddings; see knowledge.VectorDimension.
const (
	DefaultChatModel      = "gpt-3.5-turbo"
	DefaultEmbeddingModel = "text-embedding-ada-002"
)

// Client talks to the OpenAI API. It is safe for concurrent use.
type Client struct {
	api            openai.Client
	limiter        *rate.Limiter
	chatModel      string
	embeddingModel string
	logger         log.Logger
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL        string
	chatModel      string
	embeddingModel string
	rps            float64
	burst          int
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) { c.baseURL = baseURL }
}

// WithChatModel sets the default chat model.
func WithChatModel(model string) Option {
	return func(c *clientConfig) { c.chatModel = model }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(c *clientConfig) { c.embeddingModel = model }
}

// WithRateLimit caps outbound requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) {
		c.rps = rps
		c.burst = burst
	}
}

// NewClient creates an OpenAI client.
func NewClient(apiKey string, logger log.Logger, opts ...Option) *Client {
	cfg := clientConfig{
		chatModel:      DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	var limiter *rate.Limiter
	if cfg.rps > 0 {
		burst := cfg.burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.rps), burst)
	}

	return &Client{
		api:            openai.NewClient(reqOpts...),
		limiter:        limiter,
		chatModel:      cfg.chatModel,
		embeddingModel: cfg.embeddingModel,
		logger:         logger,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embed: text is empty")
	}
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("embed: rate limit wait: %w", err)
	}

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          openai.EmbeddingModel(c.embeddingModel),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Complete runs a chat completion and returns the assistant's reply text.
func (c *Client) Complete(ctx context.Context, msgs []Message, opts CompleteOptions) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("complete: no messages")
	}
	if err := c.wait(ctx); err != nil {
		return "", fmt.Errorf("complete: rate limit wait: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = c.chatModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(msgs),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// UploadTrainingFile uploads a JSONL dataset for fine-tuning and returns
// the provider file ID.
func (c *Client) UploadTrainingFile(ctx context.Context, path string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", fmt.Errorf("upload: rate limit wait: %w", err)
	}

	f, err := os.Open(path) // #nosec G304 -- path is a file this process just wrote
	if err != nil {
		return "", fmt.Errorf("opening training file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			c.logger.Warn("closing training file", "path", path, "error", cerr)
		}
	}()

	file, err := c.api.Files.New(ctx, openai.FileNewParams{
		File:    f,
		Purpose: openai.FilePurposeFineTune,
	})
	if err != nil {
		return "", fmt.Errorf("uploading training file: %w", err)
	}
	return file.ID, nil
}

// CreateFineTune submits a fine-tuning job and returns its ID.
func (c *Client) CreateFineTune(ctx context.Context, fileID, model string, hp Hyperparameters) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", fmt.Errorf("fine-tune: rate limit wait: %w", err)
	}

	params := openai.FineTuningJobNewParams{
		Model:        openai.FineTuningJobNewParamsModel(model),
		TrainingFile: fileID,
	}
	if hp.Epochs > 0 {
		params.Hyperparameters.NEpochs = openai.FineTuningJobNewParamsHyperparametersNEpochsUnion{
			OfInt: openai.Int(int64(hp.Epochs)),
		}
	}
	if hp.LearningRateMultiplier > 0 {
		params.Hyperparameters.LearningRateMultiplier = openai.FineTuningJobNewParamsHyperparametersLearningRateMultiplierUnion{
			OfFloat: openai.Float(hp.LearningRateMultiplier),
		}
	}
	if hp.BatchSize > 0 {
		params.Hyperparameters.BatchSize = openai.FineTuningJobNewParamsHyperparametersBatchSizeUnion{
			OfInt: openai.Int(int64(hp.BatchSize)),
		}
	}

	job, err := c.api.FineTuning.Jobs.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("creating fine-tune job: %w", err)
	}

	c.logger.Info("fine-tune job submitted", "job_id", job.ID, "model", model)
	return job.ID, nil
}

// JobStatus fetches the current state of a fine-tuning job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (TrainingJob, error) {
	if err := c.wait(ctx); err != nil {
		return TrainingJob{}, fmt.Errorf("job status: rate limit wait: %w", err)
	}

	job, err := c.api.FineTuning.Jobs.Get(ctx, jobID)
	if err != nil {
		return TrainingJob{}, fmt.Errorf("fetching fine-tune job %s: %w", jobID, err)
	}

	return TrainingJob{
		ID:             job.ID,
		Status:         Status(job.Status),
		FineTunedModel: job.FineTunedModel,
		Error:          job.Error.Message,
	}, nil
}

// ListEvents returns recent progress events for a fine-tuning job, newest
// first.
func (c *Client) ListEvents(ctx context.Context, jobID string) ([]JobEvent, error) {
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("list events: rate limit wait: %w", err)
	}

	page, err := c.api.FineTuning.Jobs.ListEvents(ctx, jobID, openai.FineTuningJobListEventsParams{
		Limit: openai.Int(20),
	})
	if err != nil {
		return nil, fmt.Errorf("listing fine-tune events for %s: %w", jobID, err)
	}

	events := make([]JobEvent, 0, len(page.Data))
	for _, ev := range page.Data {
		events = append(events, JobEvent{
			Level:   string(ev.Level),
			Message: ev.Message,
		})
	}
	return events, nil
}
