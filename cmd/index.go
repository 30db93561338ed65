package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rosslabs/ross/db"
	"github.com/rosslabs/ross/internal/ai"
	"github.com/rosslabs/ross/internal/config"
	"github.com/rosslabs/ross/internal/knowledge"
	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/scrape"
	"github.com/rosslabs/ross/internal/store"
)

var (
	indexDepth   int
	indexDomains []string
	indexNoDB    bool
)

var indexCmd = &cobra.Command{
	Use:   "index <start-url>",
	Short: "Build the documentation knowledge base",
	Long: `Crawl a documentation site, embed each page, and write the
knowledge snapshot the bot answers from. The same entries are upserted
into the Postgres fallback table unless --no-db is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(args[0])
	},
}

func init() {
	indexCmd.Flags().IntVar(&indexDepth, "depth", 2, "crawl depth from the start URL")
	indexCmd.Flags().StringSliceVar(&indexDomains, "domains", nil, "additional allowed domains (the start URL's domain is always allowed)")
	indexCmd.Flags().BoolVar(&indexNoDB, "no-db", false, "skip the Postgres fallback table")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(startURL string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo})

	start, err := url.Parse(startURL)
	if err != nil || start.Hostname() == "" {
		return fmt.Errorf("invalid start URL %q", startURL)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	crawler := scrape.NewCrawler(scrape.Config{
		AllowedDomains: append([]string{start.Hostname()}, indexDomains...),
		MaxDepth:       indexDepth,
		Parallelism:    cfg.Scraper.Parallelism,
		Delay:          time.Duration(cfg.Scraper.DelayMs) * time.Millisecond,
		Timeout:        time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond,
	}, logger)

	pages, err := crawler.Crawl(ctx, startURL)
	if err != nil {
		return fmt.Errorf("crawling %s: %w", startURL, err)
	}
	if len(pages) == 0 {
		return fmt.Errorf("no readable pages found at %s", startURL)
	}

	aiClient := ai.NewClient(cfg.OpenAI.APIKey, logger, aiOptions(cfg)...)

	entries := make([]knowledge.Entry, 0, len(pages))
	for _, page := range pages {
		vec, err := aiClient.Embed(ctx, page.Content)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", page.URL, err)
		}
		entries = append(entries, knowledge.Entry{
			URL:       page.URL,
			Content:   page.Content,
			Embedding: vec,
		})
		logger.Info("page embedded", "url", page.URL, "chars", len(page.Content))
	}

	knowledgeStore := knowledge.NewStore(cfg.Knowledge.File, aiClient, nil, logger)
	if err := knowledgeStore.WriteSnapshot(entries); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	if !indexNoDB {
		if err := db.Migrate(cfg.DatabaseURL()); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		pool, err := store.NewPool(ctx, cfg.DatabaseURL())
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		fallback := store.NewKnowledgeFallback(pool, logger)
		if err := fallback.Upsert(ctx, entries); err != nil {
			return fmt.Errorf("updating fallback table: %w", err)
		}
	}

	fmt.Printf("Indexed %d pages into %s\n", len(entries), cfg.Knowledge.File)
	return nil
}
