package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rosslabs/ross/internal/log"
)

// FeedbackType is the polarity of a reviewer reaction.
type FeedbackType string

const (
	FeedbackPositive FeedbackType = "positive"
	FeedbackNegative FeedbackType = "negative"
)

// User identifies a chat user on a feedback entry.
type User struct {
	ID   string
	Name string
}

// FeedbackEntry is one reviewer's verdict on one logged interaction.
// Keyed by (MessageID, ReviewerID): the same reviewer reacting again to
// the same transcript updates the entry in place.
type FeedbackEntry struct {
	MessageID    string
	Reviewer     User
	OriginalUser User
	Query        string
	Response     string
	Type         FeedbackType
	Reply        string
	UpdatedAt    time.Time
}

const (
	upsertFeedbackSQL = `
		INSERT INTO feedback (
			message_id, reviewer_id, reviewer_name,
			original_user_id, original_username,
			query, response, feedback_type, reply, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (message_id, reviewer_id) DO UPDATE SET
			feedback_type = EXCLUDED.feedback_type,
			reply         = EXCLUDED.reply,
			updated_at    = now()`

	deleteFeedbackSQL = `
		DELETE FROM feedback
		WHERE message_id = $1 AND reviewer_id = $2`

	recentFeedbackSQL = `
		SELECT message_id, reviewer_id, reviewer_name,
		       original_user_id, original_username,
		       query, response, feedback_type, reply, updated_at
		FROM feedback
		WHERE updated_at >= $1
		ORDER BY updated_at DESC`
)

// Feedback stores reviewer reactions. The ON CONFLICT upsert makes
// recording idempotent without a read-modify-write cycle, so concurrent
// reactions from the same reviewer can't race into duplicate rows.
type Feedback struct {
	db     querier
	logger log.Logger
}

// NewFeedback creates a feedback store.
func NewFeedback(db querier, logger log.Logger) *Feedback {
	return &Feedback{db: db, logger: logger}
}

// Upsert records a reviewer's verdict, replacing any previous verdict by
// the same reviewer on the same message.
func (s *Feedback) Upsert(ctx context.Context, e FeedbackEntry) error {
	if _, err := s.db.Exec(ctx, upsertFeedbackSQL,
		e.MessageID, e.Reviewer.ID, e.Reviewer.Name,
		e.OriginalUser.ID, e.OriginalUser.Name,
		e.Query, e.Response, string(e.Type), e.Reply); err != nil {
		return fmt.Errorf("upserting feedback: %w", err)
	}

	s.logger.Info("feedback recorded",
		"message_id", e.MessageID,
		"reviewer", e.Reviewer.Name,
		"type", e.Type)
	return nil
}

// Delete removes a reviewer's verdict on a message. Deleting a verdict
// that doesn't exist is not an error.
func (s *Feedback) Delete(ctx context.Context, messageID, reviewerID string) error {
	tag, err := s.db.Exec(ctx, deleteFeedbackSQL, messageID, reviewerID)
	if err != nil {
		return fmt.Errorf("deleting feedback: %w", err)
	}

	if tag.RowsAffected() > 0 {
		s.logger.Info("feedback removed", "message_id", messageID, "reviewer_id", reviewerID)
	}
	return nil
}

// Recent returns feedback updated at or after since, newest first.
func (s *Feedback) Recent(ctx context.Context, since time.Time) ([]FeedbackEntry, error) {
	rows, err := s.db.Query(ctx, recentFeedbackSQL, since)
	if err != nil {
		return nil, fmt.Errorf("querying recent feedback: %w", err)
	}
	defer rows.Close()

	var out []FeedbackEntry
	for rows.Next() {
		var e FeedbackEntry
		var typ string
		if err := rows.Scan(&e.MessageID, &e.Reviewer.ID, &e.Reviewer.Name,
			&e.OriginalUser.ID, &e.OriginalUser.Name,
			&e.Query, &e.Response, &typ, &e.Reply, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		e.Type = FeedbackType(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feedback: %w", err)
	}
	return out, nil
}
