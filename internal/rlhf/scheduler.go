package rlhf

import (
	"context"
	"sync"
	"time"

	"github.com/rosslabs/ross/internal/ai"
	"github.com/rosslabs/ross/internal/log"
)

// Scheduler runs training cycles on a fixed interval: once at startup,
// then on every tick. When a cycle submits a job, a watcher goroutine
// polls it and promotes the resulting model on success, so a long
// training run never blocks the next cycle check.
type Scheduler struct {
	pipeline *Pipeline
	trainer  *Trainer
	models   *ai.ModelSelector
	interval time.Duration
	logger   log.Logger

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler. models may be nil when no promotion
// is wanted (the train command just reports the job ID).
func NewScheduler(pipeline *Pipeline, trainer *Trainer, models *ai.ModelSelector, interval time.Duration, logger log.Logger) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		trainer:  trainer,
		models:   models,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, then waits for any in-flight job
// watchers to stop. A failed cycle is logged and the schedule continues;
// one bad cycle must not kill the loop for good.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.wg.Wait()

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes a single training cycle and starts a watcher for any
// submitted job. Panics are contained here: a crash in one cycle is a
// logged failure, not a dead scheduler.
func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("training cycle panicked", "panic", r)
		}
	}()

	start := time.Now()
	jobID, err := s.pipeline.RunTrainingCycle(ctx)
	if err != nil {
		s.logger.Warn("training cycle failed", "error", err)
		return
	}
	if jobID == "" {
		return
	}

	s.logger.Info("training cycle submitted job",
		"job_id", jobID,
		"elapsed", time.Since(start))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watch(ctx, jobID)
	}()
}

// watch polls one job to completion and promotes its model.
func (s *Scheduler) watch(ctx context.Context, jobID string) {
	model, err := s.trainer.WaitForModel(ctx, jobID)
	if err != nil {
		s.logger.Warn("training job did not produce a model",
			"job_id", jobID,
			"error", err)
		return
	}

	if s.models != nil {
		s.models.Promote(model)
		s.logger.Info("fine-tuned model promoted",
			"job_id", jobID,
			"model", model)
	}
}
