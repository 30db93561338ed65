package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rosslabs/ross/db"
	"github.com/rosslabs/ross/internal/ai"
	"github.com/rosslabs/ross/internal/answer"
	"github.com/rosslabs/ross/internal/bot"
	"github.com/rosslabs/ross/internal/config"
	"github.com/rosslabs/ross/internal/feedback"
	"github.com/rosslabs/ross/internal/knowledge"
	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/observability"
	"github.com/rosslabs/ross/internal/prompt"
	"github.com/rosslabs/ross/internal/rlhf"
	"github.com/rosslabs/ross/internal/store"
	"github.com/rosslabs/ross/internal/transport"
)

const tracingShutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot",
	Long: `Run the bot: answer questions on the attached gateway, log
transcripts, collect reviewer feedback, and run the periodic training
cycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: true})
	logger.Info("starting ross", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Datadog.Enabled {
		shutdown, err := observability.SetupDatadog(ctx, observability.Config{
			AgentHost:   cfg.Datadog.AgentHost,
			Environment: cfg.Datadog.Environment,
			ServiceName: cfg.Datadog.ServiceName,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
			defer shutdownCancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("flushing traces failed", "error", err)
			}
		}()
	}

	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	pool, err := store.NewPool(ctx, cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	interactions := store.NewInteractions(pool, logger)
	feedbackStore := store.NewFeedback(pool, logger)
	fallback := store.NewKnowledgeFallback(pool, logger)

	aiClient := ai.NewClient(cfg.OpenAI.APIKey, logger, aiOptions(cfg)...)
	models := ai.NewModelSelector(cfg.OpenAI.ChatModel)

	knowledgeStore := knowledge.NewStore(cfg.Knowledge.File, aiClient, fallback, logger)
	if err := knowledgeStore.Load(ctx); err != nil {
		// FindSimilar retries on first use; answers fail cleanly until a
		// source comes back.
		logger.Warn("knowledge base unavailable at startup", "error", err)
	}

	answers := answer.NewService(knowledgeStore, aiClient, interactions,
		prompt.NewBuilder(nil), models, cfg.Knowledge.TopK, logger)

	trainer, err := rlhf.NewTrainer(aiClient, rlhf.TrainerConfig{
		Model:        cfg.OpenAI.FineTuneModel,
		PollInterval: cfg.RLHF.PollInterval,
		MaxWait:      cfg.RLHF.MaxWait,
	}, logger)
	if err != nil {
		return fmt.Errorf("configuring trainer: %w", err)
	}

	manager := feedback.NewManager(feedbackStore, logger, nil)
	pipeline := rlhf.NewPipeline(manager, trainer, cfg.RLHF.LookbackDays, cfg.RLHF.MinFeedback, logger)
	scheduler := rlhf.NewScheduler(pipeline, trainer, models, cfg.RLHF.Interval, logger)

	gateway := transport.NewConsole(os.Stdin, os.Stdout, logger)
	collector := feedback.NewCollector(feedbackStore, gateway, logger)

	b := bot.New(gateway, answers, collector, pipeline, interactions, bot.Config{
		CommandPrefix: cfg.Bot.CommandPrefix,
		LogChannel:    cfg.Bot.LogChannel,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// Input ending is a normal shutdown; take the scheduler down too.
		defer cancel()
		if err := gateway.Run(gctx, b.Handler()); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("ross stopped")
	return nil
}

// aiOptions maps provider configuration onto client options.
func aiOptions(cfg *config.Config) []ai.Option {
	opts := []ai.Option{
		ai.WithChatModel(cfg.OpenAI.ChatModel),
		ai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		ai.WithRateLimit(cfg.OpenAI.RequestsPerSecond, cfg.OpenAI.Burst),
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, ai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	return opts
}
