package rlhf

import (
	"context"
	"fmt"

	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/store"
)

// FeedbackSource supplies recent reviewer feedback. Implemented by
// feedback.Manager.
type FeedbackSource interface {
	Recent(ctx context.Context, lookbackDays int) ([]store.FeedbackEntry, error)
}

// Pipeline gates training on having enough fresh feedback and runs one
// cycle end to end.
type Pipeline struct {
	source       FeedbackSource
	trainer      *Trainer
	lookbackDays int
	minFeedback  int
	logger       log.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(source FeedbackSource, trainer *Trainer, lookbackDays, minFeedback int, logger log.Logger) *Pipeline {
	return &Pipeline{
		source:       source,
		trainer:      trainer,
		lookbackDays: lookbackDays,
		minFeedback:  minFeedback,
		logger:       logger,
	}
}

// RunTrainingCycle collects recent feedback and submits a training job
// when the threshold is met. Returns the job ID, or "" when the cycle was
// skipped for lack of feedback. A skipped cycle is not an error; thin
// weeks happen.
func (p *Pipeline) RunTrainingCycle(ctx context.Context) (string, error) {
	entries, err := p.source.Recent(ctx, p.lookbackDays)
	if err != nil {
		return "", fmt.Errorf("collecting feedback: %w", err)
	}

	if len(entries) < p.minFeedback {
		p.logger.Info("training cycle skipped, not enough feedback",
			"feedback", len(entries),
			"required", p.minFeedback)
		return "", nil
	}

	jobID, err := p.trainer.CreateTrainingJob(ctx, entries)
	if err != nil {
		return "", fmt.Errorf("running training cycle: %w", err)
	}
	return jobID, nil
}
