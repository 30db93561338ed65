package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/rosslabs/ross/internal/knowledge"
	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/store"
	"github.com/rosslabs/ross/internal/testutil"
)

func TestFeedbackUpsertIdempotent(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	fb := store.NewFeedback(db.Pool, log.NewNop())

	entry := store.FeedbackEntry{
		MessageID:    "msg-1",
		Reviewer:     store.User{ID: "rev-1", Name: "alice"},
		OriginalUser: store.User{ID: "u-1", Name: "bob"},
		Query:        "how do I open a session",
		Response:     "send an OPEN frame",
		Type:         store.FeedbackPositive,
	}

	// Same verdict recorded twice stays one row.
	if err := fb.Upsert(ctx, entry); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if err := fb.Upsert(ctx, entry); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := fb.Recent(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent returned %d entries, want 1", len(got))
	}
	if got[0].Type != store.FeedbackPositive {
		t.Errorf("Type = %q, want positive", got[0].Type)
	}

	// A changed verdict updates in place.
	entry.Type = store.FeedbackNegative
	entry.Reply = "misses the auth step"
	if err := fb.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert changed verdict: %v", err)
	}

	got, err = fb.Recent(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Recent after change: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent returned %d entries after change, want 1", len(got))
	}
	if got[0].Type != store.FeedbackNegative || got[0].Reply != "misses the auth step" {
		t.Errorf("entry not updated in place: %+v", got[0])
	}
}

func TestFeedbackPerReviewerRows(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	fb := store.NewFeedback(db.Pool, log.NewNop())

	base := store.FeedbackEntry{
		MessageID:    "msg-1",
		OriginalUser: store.User{ID: "u-1", Name: "bob"},
		Query:        "q",
		Response:     "r",
		Type:         store.FeedbackPositive,
	}

	// Two reviewers on the same message are independent rows.
	a := base
	a.Reviewer = store.User{ID: "rev-a", Name: "alice"}
	b := base
	b.Reviewer = store.User{ID: "rev-b", Name: "ben"}
	b.Type = store.FeedbackNegative

	if err := fb.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert a: %v", err)
	}
	if err := fb.Upsert(ctx, b); err != nil {
		t.Fatalf("Upsert b: %v", err)
	}

	got, err := fb.Recent(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(got))
	}

	// Removing one reviewer's verdict leaves the other's.
	if err := fb.Delete(ctx, "msg-1", "rev-a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = fb.Recent(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Recent after delete: %v", err)
	}
	if len(got) != 1 || got[0].Reviewer.ID != "rev-b" {
		t.Fatalf("Recent after delete = %+v, want only rev-b", got)
	}

	// Deleting a verdict that doesn't exist is not an error.
	if err := fb.Delete(ctx, "msg-1", "rev-a"); err != nil {
		t.Fatalf("Delete of absent verdict: %v", err)
	}
}

func TestInteractionsInsertAndRecent(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ints := store.NewInteractions(db.Pool, log.NewNop())

	in := store.Interaction{
		Username: "bob",
		Query:    "what is a frame",
		Response: "the basic unit",
		Topics:   []string{"framing"},
		Tags:     []string{"basics"},
	}
	if err := ints.Insert(ctx, in); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Nil topics/tags store as empty arrays, not NULLs.
	if err := ints.Insert(ctx, store.Interaction{
		Username: "carol", Query: "q", Response: "r",
	}); err != nil {
		t.Fatalf("Insert without topics: %v", err)
	}

	got, err := ints.Recent(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d interactions, want 2", len(got))
	}

	// Out-of-window cutoff excludes everything.
	got, err = ints.Recent(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Recent future cutoff: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Recent with future cutoff returned %d interactions", len(got))
	}
}

func TestKnowledgeFallbackRoundTrip(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	kf := store.NewKnowledgeFallback(db.Pool, log.NewNop())

	vec := make([]float32, knowledge.VectorDimension)
	vec[0] = 1

	entries := []knowledge.Entry{
		{URL: "https://docs.example/a", Content: "alpha", Embedding: vec},
	}
	if err := kf.Upsert(ctx, entries); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Re-upserting the same URL replaces content instead of duplicating.
	entries[0].Content = "alpha v2"
	if err := kf.Upsert(ctx, entries); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := kf.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("LoadAll returned %d entries, want 1", len(got))
	}
	if got[0].Content != "alpha v2" {
		t.Errorf("Content = %q, want alpha v2", got[0].Content)
	}
	if len(got[0].Embedding) != knowledge.VectorDimension {
		t.Errorf("Embedding dimension = %d, want %d", len(got[0].Embedding), knowledge.VectorDimension)
	}
}
