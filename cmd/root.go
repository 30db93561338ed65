// Package cmd holds the ross CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ross",
	Short: "ross - protocol documentation Q&A bot",
	Long: `ross answers protocol documentation questions in chat.

Answers are grounded in a scraped documentation knowledge base, and
reviewer reactions on logged transcripts feed a periodic fine-tuning
cycle that improves the answering model over time.

Commands:
  serve    run the bot (answering, feedback collection, training loop)
  index    build the documentation knowledge base offline
  train    run one training cycle on demand
  version  show version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
