package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/rosslabs/ross/internal/knowledge"
	"github.com/rosslabs/ross/internal/log"
)

const (
	loadKnowledgeSQL = `
		SELECT url, content, embedding
		FROM knowledge_entries
		ORDER BY id`

	upsertKnowledgeSQL = `
		INSERT INTO knowledge_entries (url, content, embedding, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (url) DO UPDATE SET
			content    = EXCLUDED.content,
			embedding  = EXCLUDED.embedding,
			updated_at = now()`
)

// KnowledgeFallback keeps a secondary copy of the documentation embeddings
// in pgvector. The bot only reads it when the local snapshot file is
// unreadable; the index command writes it alongside the snapshot.
type KnowledgeFallback struct {
	db     querier
	logger log.Logger
}

// NewKnowledgeFallback creates the fallback store.
func NewKnowledgeFallback(db querier, logger log.Logger) *KnowledgeFallback {
	return &KnowledgeFallback{db: db, logger: logger}
}

// LoadAll returns every stored entry. Implements knowledge.FallbackLoader.
func (s *KnowledgeFallback) LoadAll(ctx context.Context) ([]knowledge.Entry, error) {
	rows, err := s.db.Query(ctx, loadKnowledgeSQL)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge entries: %w", err)
	}
	defer rows.Close()

	var out []knowledge.Entry
	for rows.Next() {
		var e knowledge.Entry
		var vec pgvector.Vector
		if err := rows.Scan(&e.URL, &e.Content, &vec); err != nil {
			return nil, fmt.Errorf("scanning knowledge entry: %w", err)
		}
		e.Embedding = vec.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge entries: %w", err)
	}

	s.logger.Debug("knowledge fallback loaded", "entries", len(out))
	return out, nil
}

// Upsert writes entries into the fallback table, replacing any previous
// content for the same URL.
func (s *KnowledgeFallback) Upsert(ctx context.Context, entries []knowledge.Entry) error {
	for _, e := range entries {
		vec := pgvector.NewVector(e.Embedding)
		if _, err := s.db.Exec(ctx, upsertKnowledgeSQL, e.URL, e.Content, vec); err != nil {
			return fmt.Errorf("upserting knowledge entry %q: %w", e.URL, err)
		}
	}

	s.logger.Info("knowledge fallback updated", "entries", len(entries))
	return nil
}
