// Package rlhf turns reviewer feedback into fine-tuning runs.
//
// The cycle is: collect recent feedback, label it into training examples,
// write a JSONL dataset, upload it, submit a fine-tuning job, and poll the
// job until it finishes. A succeeded job's model is promoted so subsequent
// answers use it.
package rlhf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rosslabs/ross/internal/ai"
	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/store"
)

var (
	// ErrModelNotAvailable indicates the configured base model is not in
	// the fine-tunable allow-list. Checked before anything is uploaded.
	ErrModelNotAvailable = errors.New("model not available for fine-tuning")

	// ErrNoTrainingData indicates the feedback set produced no examples.
	ErrNoTrainingData = errors.New("no training data")

	// ErrTrainingFailed indicates the provider reported the job failed.
	ErrTrainingFailed = errors.New("training job failed")

	// ErrTrainingCancelled indicates the job was cancelled provider-side.
	ErrTrainingCancelled = errors.New("training job cancelled")

	// ErrTrainingTimeout indicates the job did not reach a terminal state
	// within the configured wait budget. The job itself keeps running.
	ErrTrainingTimeout = errors.New("timed out waiting for training job")
)

// AllowedModels is the set of base models fine-tuning may target.
var AllowedModels = map[string]bool{
	"gpt-3.5-turbo":      true,
	"gpt-3.5-turbo-0125": true,
	"gpt-3.5-turbo-1106": true,
	"babbage-002":        true,
	"davinci-002":        true,
}

// DefaultHyperparameters for feedback fine-tuning runs. One epoch with a
// small learning-rate multiplier: the dataset is tiny and the base model
// should shift, not be overwritten.
var DefaultHyperparameters = ai.Hyperparameters{
	Epochs:                 1,
	LearningRateMultiplier: 0.1,
	BatchSize:              4,
}

// TrainingClient is the provider surface the trainer needs. Implemented
// by ai.Client.
type TrainingClient interface {
	UploadTrainingFile(ctx context.Context, path string) (string, error)
	CreateFineTune(ctx context.Context, fileID, model string, hp ai.Hyperparameters) (string, error)
	JobStatus(ctx context.Context, jobID string) (ai.TrainingJob, error)
	ListEvents(ctx context.Context, jobID string) ([]ai.JobEvent, error)
}

// Example is one JSONL training record in the chat fine-tuning format.
type Example struct {
	Messages []ai.Message `json:"messages"`
}

// TrainerConfig configures a Trainer.
type TrainerConfig struct {
	// Model is the base model to fine-tune. Must be in AllowedModels.
	Model string

	// Dir is where dataset files are written before upload. Empty means
	// the OS temp directory.
	Dir string

	// PollInterval between job status checks.
	PollInterval time.Duration

	// MaxWait bounds WaitForModel. Zero waits until ctx is cancelled.
	MaxWait time.Duration
}

// Trainer runs individual fine-tuning jobs.
type Trainer struct {
	client       TrainingClient
	model        string
	dir          string
	pollInterval time.Duration
	maxWait      time.Duration
	logger       log.Logger
}

// NewTrainer creates a trainer. The base model is validated here so a
// misconfigured service fails at startup, not mid-cycle.
func NewTrainer(client TrainingClient, cfg TrainerConfig, logger log.Logger) (*Trainer, error) {
	if !AllowedModels[cfg.Model] {
		return nil, fmt.Errorf("%w: %q", ErrModelNotAvailable, cfg.Model)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Minute
	}

	return &Trainer{
		client:       client,
		model:        cfg.Model,
		dir:          dir,
		pollInterval: poll,
		maxWait:      cfg.MaxWait,
		logger:       logger,
	}, nil
}

// Labeling frames. Positive examples teach the model to imitate the
// answer; negative ones mark it as what not to produce; a reviewer reply
// supplies the preferred wording directly.
const (
	positiveFrame = "You are ross, an assistant for protocol developer documentation. " +
		"The following is a high-quality answer. Follow this example."
	negativeFrame = "You are ross, an assistant for protocol developer documentation. " +
		"The following answer was rated poor and needs improvement. Do not answer like this."
	reinforceFrame = "You are ross, an assistant for protocol developer documentation. " +
		"A reviewer supplied this improved answer. Prefer responses like it."
)

// BuildDataset labels feedback entries into training examples. Each entry
// yields one example; entries carrying a reviewer reply yield a second,
// reinforcement example pairing the query with the reviewer's wording.
func BuildDataset(entries []store.FeedbackEntry) []Example {
	var out []Example
	for _, e := range entries {
		frame := positiveFrame
		if e.Type == store.FeedbackNegative {
			frame = negativeFrame
		}
		out = append(out, Example{Messages: []ai.Message{
			ai.SystemMessage(frame),
			ai.UserMessage(e.Query),
			ai.AssistantMessage(e.Response),
		}})

		if e.Reply != "" {
			out = append(out, Example{Messages: []ai.Message{
				ai.SystemMessage(reinforceFrame),
				ai.UserMessage(e.Query),
				ai.AssistantMessage(e.Reply),
			}})
		}
	}
	return out
}

// writeDataset writes examples as JSONL to a uniquely named file in the
// trainer's working directory.
func (t *Trainer) writeDataset(examples []Example) (string, error) {
	if err := os.MkdirAll(t.dir, 0o750); err != nil {
		return "", fmt.Errorf("creating dataset directory: %w", err)
	}

	path := filepath.Join(t.dir, "training-"+uuid.NewString()+".jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating dataset file: %w", err)
	}

	enc := json.NewEncoder(f)
	for _, ex := range examples {
		if err := enc.Encode(ex); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("encoding training example: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("closing dataset file: %w", err)
	}
	return path, nil
}

// CreateTrainingJob builds the dataset, uploads it, and submits a
// fine-tuning job. The local dataset file is removed once uploaded; the
// provider has the authoritative copy from then on. Returns the job ID.
func (t *Trainer) CreateTrainingJob(ctx context.Context, entries []store.FeedbackEntry) (string, error) {
	if !AllowedModels[t.model] {
		return "", fmt.Errorf("%w: %q", ErrModelNotAvailable, t.model)
	}

	examples := BuildDataset(entries)
	if len(examples) == 0 {
		return "", ErrNoTrainingData
	}

	path, err := t.writeDataset(examples)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			t.logger.Warn("removing dataset file", "path", path, "error", err)
		}
	}()

	fileID, err := t.client.UploadTrainingFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("uploading dataset: %w", err)
	}

	jobID, err := t.client.CreateFineTune(ctx, fileID, t.model, DefaultHyperparameters)
	if err != nil {
		return "", fmt.Errorf("submitting fine-tune job: %w", err)
	}

	t.logger.Info("training job created",
		"job_id", jobID,
		"model", t.model,
		"examples", len(examples))
	return jobID, nil
}

// logEventHistory dumps the provider's event trail for a dead job so the
// failure can be diagnosed from the logs alone.
func (t *Trainer) logEventHistory(ctx context.Context, jobID string) {
	events, err := t.client.ListEvents(ctx, jobID)
	if err != nil {
		t.logger.Warn("fetching training job events", "job_id", jobID, "error", err)
		return
	}
	for _, ev := range events {
		t.logger.Warn("training job event",
			"job_id", jobID,
			"level", ev.Level,
			"message", ev.Message)
	}
}

// WaitForModel polls the job until it reaches a terminal state and
// returns the fine-tuned model identifier on success. Respects the
// trainer's MaxWait; a zero MaxWait waits until ctx is cancelled.
func (t *Trainer) WaitForModel(ctx context.Context, jobID string) (string, error) {
	var deadline <-chan time.Time
	if t.maxWait > 0 {
		timer := time.NewTimer(t.maxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		job, err := t.client.JobStatus(ctx, jobID)
		if err != nil {
			// Transient polling errors shouldn't abandon a running job.
			t.logger.Warn("polling training job failed", "job_id", jobID, "error", err)
		} else {
			switch job.Status {
			case ai.StatusSucceeded:
				t.logger.Info("training job succeeded",
					"job_id", jobID,
					"fine_tuned_model", job.FineTunedModel)
				return job.FineTunedModel, nil
			case ai.StatusFailed:
				t.logEventHistory(ctx, jobID)
				return "", fmt.Errorf("%w: %s", ErrTrainingFailed, job.Error)
			case ai.StatusCancelled:
				t.logEventHistory(ctx, jobID)
				return "", fmt.Errorf("%w: %s", ErrTrainingCancelled, jobID)
			default:
				t.logger.Debug("training job in progress", "job_id", jobID, "status", job.Status)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			return "", fmt.Errorf("%w: %s after %s", ErrTrainingTimeout, jobID, t.maxWait)
		case <-ticker.C:
		}
	}
}
