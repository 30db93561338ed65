package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/store"
)

// cutoffStore records the cutoff it was queried with.
type cutoffStore struct {
	cutoff  time.Time
	entries []store.FeedbackEntry
}

func (c *cutoffStore) Recent(_ context.Context, since time.Time) ([]store.FeedbackEntry, error) {
	c.cutoff = since
	return c.entries, nil
}

func TestManagerRecentCutoff(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	st := &cutoffStore{entries: []store.FeedbackEntry{{MessageID: "m"}}}
	m := NewManager(st, log.NewNop(), func() time.Time { return now })

	got, err := m.Recent(context.Background(), 7)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent returned %d entries, want 1", len(got))
	}

	want := now.AddDate(0, 0, -7)
	if !st.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", st.cutoff, want)
	}
}
