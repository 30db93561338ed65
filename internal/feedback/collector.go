// Package feedback turns reviewer reactions on logged transcripts into
// stored feedback entries.
//
// A reaction only counts when every gate passes: recognized emoji, human
// reviewer with the admin role, bot-authored target message, and a
// parseable transcript attachment. Anything else is ignored without
// response; reviewers aren't notified about reactions that didn't count.
package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/store"
	"github.com/rosslabs/ross/internal/transcript"
	"github.com/rosslabs/ross/internal/transport"
)

// Store is the persistence surface the collector needs. Implemented by
// store.Feedback.
type Store interface {
	Upsert(ctx context.Context, e store.FeedbackEntry) error
	Delete(ctx context.Context, messageID, reviewerID string) error
}

// Fetcher is the transport subset used to resolve reactions back to the
// transcript they were placed on.
type Fetcher interface {
	FetchMessage(ctx context.Context, ref transport.MessageRef) (transport.Message, error)
	ReadAttachment(ctx context.Context, att transport.Attachment) ([]byte, error)
}

// polarity maps recognized emoji to a feedback type. Skin-tone variants
// count the same as the base emoji. Other emoji expressing sentiment
// (hearts, claps) deliberately do not count; only the two explicit
// verdict emoji carry meaning.
var polarity = map[string]store.FeedbackType{
	"👍": store.FeedbackPositive,
	"👍🏻": store.FeedbackPositive,
	"👍🏼": store.FeedbackPositive,
	"👍🏽": store.FeedbackPositive,
	"👍🏾": store.FeedbackPositive,
	"👍🏿": store.FeedbackPositive,
	"thumbsup": store.FeedbackPositive,
	"+1":       store.FeedbackPositive,
	"👎": store.FeedbackNegative,
	"👎🏻": store.FeedbackNegative,
	"👎🏼": store.FeedbackNegative,
	"👎🏽": store.FeedbackNegative,
	"👎🏾": store.FeedbackNegative,
	"👎🏿": store.FeedbackNegative,
	"thumbsdown": store.FeedbackNegative,
	"-1":         store.FeedbackNegative,
}

// Collector records qualifying reactions as feedback.
type Collector struct {
	store     Store
	transport Fetcher
	logger    log.Logger
}

// NewCollector creates a collector.
func NewCollector(st Store, tr Fetcher, logger log.Logger) *Collector {
	return &Collector{store: st, transport: tr, logger: logger}
}

// HandleReactionAdd processes a new reaction. Non-qualifying reactions
// are dropped silently; only infrastructure failures (message fetch,
// database) return an error.
func (c *Collector) HandleReactionAdd(ctx context.Context, r transport.Reaction) error {
	typ, ok := c.qualifyReviewer(r)
	if !ok {
		return nil
	}

	msg, err := c.transport.FetchMessage(ctx, r.Ref)
	if err != nil {
		return fmt.Errorf("fetching reacted message: %w", err)
	}
	if !msg.Author.IsBot {
		return nil
	}
	if len(msg.Attachments) == 0 {
		return nil
	}

	data, err := c.transport.ReadAttachment(ctx, msg.Attachments[0])
	if err != nil {
		return fmt.Errorf("reading transcript attachment: %w", err)
	}

	lg, err := transcript.Parse(data)
	if err != nil {
		// A reaction on a bot message without a valid transcript (status
		// posts, old formats) is not feedback.
		if errors.Is(err, transcript.ErrMissingField) {
			c.logger.Warn("reaction on unparseable transcript ignored",
				"message_id", r.Ref.MessageID,
				"reviewer", r.Reactor.Name,
				"error", err)
			return nil
		}
		return fmt.Errorf("parsing transcript: %w", err)
	}

	return c.store.Upsert(ctx, store.FeedbackEntry{
		MessageID:    r.Ref.MessageID,
		Reviewer:     store.User{ID: r.Reactor.ID, Name: r.Reactor.Name},
		OriginalUser: store.User{ID: lg.UserID, Name: lg.Username},
		Query:        lg.Query,
		Response:     lg.Response,
		Type:         typ,
		Reply:        r.Reply,
	})
}

// HandleReactionRemove deletes the reviewer's verdict when a qualifying
// reaction is withdrawn. Removing a verdict that was never recorded is a
// no-op.
func (c *Collector) HandleReactionRemove(ctx context.Context, r transport.Reaction) error {
	if _, ok := c.qualifyReviewer(r); !ok {
		return nil
	}
	return c.store.Delete(ctx, r.Ref.MessageID, r.Reactor.ID)
}

// qualifyReviewer applies the gates that depend only on the reaction
// itself: recognized emoji, human reactor, admin role.
func (c *Collector) qualifyReviewer(r transport.Reaction) (store.FeedbackType, bool) {
	typ, ok := polarity[r.Emoji]
	if !ok {
		return "", false
	}
	if r.Reactor.IsBot || !r.Reactor.IsAdmin {
		return "", false
	}
	return typ, true
}
