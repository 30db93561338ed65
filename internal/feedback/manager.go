package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/store"
)

// RecentStore reads back stored feedback. Implemented by store.Feedback.
type RecentStore interface {
	Recent(ctx context.Context, since time.Time) ([]store.FeedbackEntry, error)
}

// Manager exposes the collected feedback to the training pipeline.
type Manager struct {
	store  RecentStore
	logger log.Logger
	now    func() time.Time
}

// NewManager creates a manager. now is replaceable for tests; nil means
// time.Now.
func NewManager(st RecentStore, logger log.Logger, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{store: st, logger: logger, now: now}
}

// Recent returns feedback from the last lookbackDays days, newest first.
func (m *Manager) Recent(ctx context.Context, lookbackDays int) ([]store.FeedbackEntry, error) {
	cutoff := m.now().AddDate(0, 0, -lookbackDays)
	entries, err := m.store.Recent(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("collecting recent feedback: %w", err)
	}

	m.logger.Debug("recent feedback collected",
		"entries", len(entries),
		"lookback_days", lookbackDays)
	return entries, nil
}
