package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the configuration for values that would break the service
// at runtime. Called by Load; exported so tests and callers that build a
// Config by hand can check it too.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	}
	if strings.TrimSpace(c.OpenAI.ChatModel) == "" {
		return fmt.Errorf("%w: chat_model is empty", ErrInvalidChatModel)
	}
	if strings.TrimSpace(c.OpenAI.EmbeddingModel) == "" {
		return fmt.Errorf("%w: embedding_model is empty", ErrInvalidEmbeddingModel)
	}

	if strings.TrimSpace(c.Knowledge.File) == "" {
		return fmt.Errorf("%w: knowledge.file is empty", ErrInvalidKnowledgeFile)
	}
	if c.Knowledge.TopK < 1 || c.Knowledge.TopK > 50 {
		return fmt.Errorf("%w: got %d, want 1-50", ErrInvalidTopK, c.Knowledge.TopK)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}

	if c.RLHF.Interval < time.Minute {
		return fmt.Errorf("%w: got %s, want >= 1m", ErrInvalidTrainingInterval, c.RLHF.Interval)
	}
	if c.RLHF.MinFeedback < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidMinFeedback, c.RLHF.MinFeedback)
	}
	if c.RLHF.LookbackDays < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidLookback, c.RLHF.LookbackDays)
	}

	return nil
}
