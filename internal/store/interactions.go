package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rosslabs/ross/internal/log"
)

// Interaction is one answered query with its classification.
type Interaction struct {
	ID        int64
	CreatedAt time.Time
	Username  string
	Query     string
	Response  string
	Topics    []string
	Tags      []string
}

const (
	insertInteractionSQL = `
		INSERT INTO interactions (username, query, response, topics, tags)
		VALUES ($1, $2, $3, $4, $5)`

	recentInteractionsSQL = `
		SELECT id, created_at, username, query, response, topics, tags
		FROM interactions
		WHERE created_at >= $1
		ORDER BY created_at DESC`
)

// Interactions records answered queries for analytics and audit.
type Interactions struct {
	db     querier
	logger log.Logger
}

// NewInteractions creates an interaction store.
func NewInteractions(db querier, logger log.Logger) *Interactions {
	return &Interactions{db: db, logger: logger}
}

// Insert records an interaction. Topics and tags may be empty; nil slices
// are stored as empty arrays.
func (s *Interactions) Insert(ctx context.Context, in Interaction) error {
	topics := in.Topics
	if topics == nil {
		topics = []string{}
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	if _, err := s.db.Exec(ctx, insertInteractionSQL,
		in.Username, in.Query, in.Response, topics, tags); err != nil {
		return fmt.Errorf("inserting interaction: %w", err)
	}

	s.logger.Debug("interaction recorded", "username", in.Username, "topics", topics)
	return nil
}

// Recent returns interactions created at or after since, newest first.
func (s *Interactions) Recent(ctx context.Context, since time.Time) ([]Interaction, error) {
	rows, err := s.db.Query(ctx, recentInteractionsSQL, since)
	if err != nil {
		return nil, fmt.Errorf("querying recent interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.ID, &in.CreatedAt, &in.Username, &in.Query,
			&in.Response, &in.Topics, &in.Tags); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating interactions: %w", err)
	}
	return out, nil
}
