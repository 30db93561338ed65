package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rosslabs/ross/internal/ai"
	"github.com/rosslabs/ross/internal/config"
	"github.com/rosslabs/ross/internal/feedback"
	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/rlhf"
	"github.com/rosslabs/ross/internal/store"
)

var trainWait bool

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one training cycle on demand",
	Long: `Collect recent reviewer feedback and, when there is enough of it,
submit a fine-tuning job. With --wait the command polls the job to
completion and prints the resulting model identifier.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrain()
	},
}

func init() {
	trainCmd.Flags().BoolVar(&trainWait, "wait", false, "poll the submitted job until it finishes")
	rootCmd.AddCommand(trainCmd)
}

func runTrain() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	aiClient := ai.NewClient(cfg.OpenAI.APIKey, logger, aiOptions(cfg)...)

	trainer, err := rlhf.NewTrainer(aiClient, rlhf.TrainerConfig{
		Model:        cfg.OpenAI.FineTuneModel,
		PollInterval: cfg.RLHF.PollInterval,
		MaxWait:      cfg.RLHF.MaxWait,
	}, logger)
	if err != nil {
		return fmt.Errorf("configuring trainer: %w", err)
	}

	manager := feedback.NewManager(store.NewFeedback(pool, logger), logger, nil)
	pipeline := rlhf.NewPipeline(manager, trainer, cfg.RLHF.LookbackDays, cfg.RLHF.MinFeedback, logger)

	jobID, err := pipeline.RunTrainingCycle(ctx)
	if err != nil {
		return fmt.Errorf("running training cycle: %w", err)
	}
	if jobID == "" {
		fmt.Println("Not enough recent feedback to train on; nothing submitted.")
		return nil
	}
	fmt.Printf("Training job submitted: %s\n", jobID)

	if !trainWait {
		return nil
	}

	model, err := trainer.WaitForModel(ctx, jobID)
	if err != nil {
		return fmt.Errorf("waiting for training job: %w", err)
	}
	fmt.Printf("Fine-tuned model ready: %s\n", model)
	return nil
}
