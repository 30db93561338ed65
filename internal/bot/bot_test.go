package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/rosslabs/ross/internal/answer"
	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/prompt"
	"github.com/rosslabs/ross/internal/store"
	"github.com/rosslabs/ross/internal/testutil"
	"github.com/rosslabs/ross/internal/transcript"
	"github.com/rosslabs/ross/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAnswerer struct {
	mu      sync.Mutex
	result  answer.Result
	err     error
	queries []string
	opts    []answer.Options
}

func (f *fakeAnswerer) Answer(_ context.Context, query, _ string, opts ...answer.Option) (answer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)

	var o answer.Options
	for _, opt := range opts {
		opt(&o)
	}
	f.opts = append(f.opts, o)

	if f.err != nil {
		return answer.Result{Response: answer.Apology}, f.err
	}
	return f.result, nil
}

type fakeReactions struct {
	mu      sync.Mutex
	added   []transport.Reaction
	removed []transport.Reaction
	err     error
}

func (f *fakeReactions) HandleReactionAdd(_ context.Context, r transport.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, r)
	return f.err
}

func (f *fakeReactions) HandleReactionRemove(_ context.Context, r transport.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, r)
	return f.err
}

type fakeTrainRunner struct {
	jobID string
	err   error
	calls int
}

func (f *fakeTrainRunner) RunTrainingCycle(context.Context) (string, error) {
	f.calls++
	return f.jobID, f.err
}

type fakeInteractions struct {
	since   time.Time
	entries []store.Interaction
	err     error
}

func (f *fakeInteractions) Recent(_ context.Context, since time.Time) ([]store.Interaction, error) {
	f.since = since
	return f.entries, f.err
}

func userMessage(content string, admin bool) transport.Message {
	return transport.Message{
		Ref:     transport.MessageRef{ChannelID: "general", MessageID: "q-1"},
		Author:  transport.User{ID: "u1", Name: "casey", IsAdmin: admin},
		Content: content,
	}
}

func newTestBot(tr transport.Transport, answers Answerer, opts ...Option) *Bot {
	opts = append([]Option{WithIndicatorInterval(time.Hour)}, opts...)
	return New(tr, answers, &fakeReactions{}, nil, nil,
		Config{LogChannel: "ross-bot-logs"}, log.NewNop(), opts...)
}

func TestAskAnswersInThreadAndLogsTranscript(t *testing.T) {
	tr := testutil.NewFakeTransport()
	answers := &fakeAnswerer{result: answer.Result{Response: "Send an OPEN frame first."}}
	b := newTestBot(tr, answers)

	b.handleMessage(context.Background(), userMessage("!ask how do I open a session?", false))

	if len(answers.queries) != 1 || answers.queries[0] != "how do I open a session?" {
		t.Fatalf("queries = %q", answers.queries)
	}

	sent := tr.Sent()
	if len(sent) < 3 {
		t.Fatalf("sent %d messages, want placeholder + answer + transcript: %+v", len(sent), sent)
	}

	// Placeholder first, in the asking channel.
	if sent[0].Ref.ChannelID != "general" || sent[0].Text != answer.IndicatorStages[0] {
		t.Errorf("placeholder = %+v", sent[0])
	}

	// Answer goes into a thread, not the channel.
	var inThread bool
	for _, m := range sent[1:] {
		if strings.HasPrefix(m.Ref.ChannelID, "thread:") && m.Text == "Send an OPEN frame first." {
			inThread = true
		}
	}
	if !inThread {
		t.Errorf("answer not delivered to a thread: %+v", sent)
	}

	// Transcript lands in the log channel and parses back.
	var logged *testutil.SentMessage
	for i := range sent {
		if sent[i].Ref.ChannelID == "ross-bot-logs" && sent[i].Filename != "" {
			logged = &sent[i]
		}
	}
	if logged == nil {
		t.Fatalf("no transcript posted to the log channel: %+v", sent)
	}
	lg, err := transcript.Parse(logged.Content)
	if err != nil {
		t.Fatalf("posted transcript unparseable: %v", err)
	}
	if lg.Username != "casey" || lg.UserID != "u1" {
		t.Errorf("transcript user = %q (%q)", lg.Username, lg.UserID)
	}
	if lg.Query != "how do I open a session?" || lg.Response != "Send an OPEN frame first." {
		t.Errorf("transcript query/response = %q / %q", lg.Query, lg.Response)
	}
}

func TestExplainRequestsDetailedAnswer(t *testing.T) {
	tr := testutil.NewFakeTransport()
	answers := &fakeAnswerer{result: answer.Result{Response: "long answer"}}
	b := newTestBot(tr, answers)

	b.handleMessage(context.Background(), userMessage("!explain framing", true))

	if len(answers.opts) != 1 {
		t.Fatalf("opts = %+v", answers.opts)
	}
	if answers.opts[0].Detail != prompt.DetailDetailed {
		t.Errorf("detail = %q, want detailed", answers.opts[0].Detail)
	}
	if answers.opts[0].Role != prompt.RoleAdmin {
		t.Errorf("role = %q, want admin for an admin asker", answers.opts[0].Role)
	}
}

func TestAnswerFailureEditsPlaceholderOnly(t *testing.T) {
	tr := testutil.NewFakeTransport()
	answers := &fakeAnswerer{err: errors.New("provider down")}
	b := newTestBot(tr, answers)

	b.handleMessage(context.Background(), userMessage("!ask anything", false))

	sent := tr.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want only the placeholder: %+v", len(sent), sent)
	}
	edits := tr.Edits(sent[0].Ref)
	if len(edits) != 1 || edits[0] != answer.Apology {
		t.Errorf("placeholder edits = %q, want the apology", edits)
	}
	for _, m := range sent {
		if m.Ref.ChannelID == "ross-bot-logs" {
			t.Errorf("failed answer must not be logged: %+v", m)
		}
	}
}

func TestThreadFollowUpAnswersInPlace(t *testing.T) {
	tr := testutil.NewFakeTransport()
	answers := &fakeAnswerer{result: answer.Result{Response: "first answer"}}
	b := newTestBot(tr, answers)

	b.handleMessage(context.Background(), userMessage("!ask opening question", false))

	var threadID string
	for _, m := range tr.Sent() {
		if strings.HasPrefix(m.Ref.ChannelID, "thread:") {
			threadID = m.Ref.ChannelID
		}
	}
	if threadID == "" {
		t.Fatal("no thread opened for the first question")
	}

	before := len(tr.Sent())
	followUp := transport.Message{
		Ref:      transport.MessageRef{ChannelID: threadID, MessageID: "q-2"},
		Author:   transport.User{ID: "u1", Name: "casey"},
		Content:  "and how do I close it?",
		ThreadID: threadID,
	}
	b.handleMessage(context.Background(), followUp)

	if len(answers.queries) != 2 || answers.queries[1] != "and how do I close it?" {
		t.Fatalf("queries = %q", answers.queries)
	}

	for _, m := range tr.Sent()[before:] {
		if strings.HasPrefix(m.Ref.ChannelID, "thread:thread:") {
			t.Errorf("follow-up opened a nested thread: %+v", m)
		}
	}
}

func TestBareMessagesOutsideThreadsIgnored(t *testing.T) {
	tr := testutil.NewFakeTransport()
	answers := &fakeAnswerer{}
	b := newTestBot(tr, answers)

	b.handleMessage(context.Background(), userMessage("just chatting", false))
	b.handleMessage(context.Background(), transport.Message{
		Ref:      transport.MessageRef{ChannelID: "general"},
		Author:   transport.User{ID: "u2", Name: "sam"},
		Content:  "in someone else's thread",
		ThreadID: "thread:not-ours",
	})

	if len(answers.queries) != 0 {
		t.Errorf("queries = %q, want none", answers.queries)
	}
	if len(tr.Sent()) != 0 {
		t.Errorf("sent = %+v, want none", tr.Sent())
	}
}

func TestBotMessagesIgnored(t *testing.T) {
	tr := testutil.NewFakeTransport()
	answers := &fakeAnswerer{}
	b := newTestBot(tr, answers)

	msg := userMessage("!ask something", false)
	msg.Author.IsBot = true
	b.handleMessage(context.Background(), msg)

	if len(answers.queries) != 0 || len(tr.Sent()) != 0 {
		t.Errorf("bot-authored command was handled")
	}
}

func TestLearnCommand(t *testing.T) {
	tests := []struct {
		name    string
		admin   bool
		trainer *fakeTrainRunner
		want    string
		calls   int
	}{
		{
			name:    "submits a job",
			admin:   true,
			trainer: &fakeTrainRunner{jobID: "job-9"},
			want:    "job-9",
			calls:   1,
		},
		{
			name:    "not enough feedback",
			admin:   true,
			trainer: &fakeTrainRunner{},
			want:    "Not enough fresh feedback",
			calls:   1,
		},
		{
			name:    "cycle failure",
			admin:   true,
			trainer: &fakeTrainRunner{err: errors.New("boom")},
			want:    "failed",
			calls:   1,
		},
		{
			name:    "refused for non-admins",
			admin:   false,
			trainer: &fakeTrainRunner{jobID: "job-9"},
			want:    "reviewer-only",
			calls:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := testutil.NewFakeTransport()
			b := New(tr, &fakeAnswerer{}, &fakeReactions{}, tt.trainer, nil,
				Config{}, log.NewNop(), WithIndicatorInterval(time.Hour))

			b.handleMessage(context.Background(), userMessage("!learn", tt.admin))

			if tt.trainer.calls != tt.calls {
				t.Errorf("trainer calls = %d, want %d", tt.trainer.calls, tt.calls)
			}
			sent := tr.Sent()
			if len(sent) != 1 || !strings.Contains(sent[0].Text, tt.want) {
				t.Errorf("reply = %+v, want text containing %q", sent, tt.want)
			}
		})
	}
}

func TestAnalyseCommand(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	reader := &fakeInteractions{entries: []store.Interaction{
		{Username: "casey", Topics: []string{"handshake"}, Tags: []string{"code"}},
		{Username: "casey", Topics: []string{"handshake", "framing"}},
		{Username: "sam", Topics: []string{"framing"}},
	}}

	tr := testutil.NewFakeTransport()
	b := New(tr, &fakeAnswerer{}, &fakeReactions{}, nil, reader,
		Config{}, log.NewNop(), WithIndicatorInterval(time.Hour),
		WithClock(func() time.Time { return now }))

	b.handleMessage(context.Background(), userMessage("!analyse", true))

	if want := now.AddDate(0, 0, -7); !reader.since.Equal(want) {
		t.Errorf("lookback cutoff = %v, want %v", reader.since, want)
	}

	sent := tr.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %+v", sent)
	}
	report := sent[0].Text
	for _, want := range []string{"3 answered queries", "2 users", "handshake (2)", "framing (2)", "code (1)"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestAnalyseRefusedForNonAdmins(t *testing.T) {
	reader := &fakeInteractions{}
	tr := testutil.NewFakeTransport()
	b := New(tr, &fakeAnswerer{}, &fakeReactions{}, nil, reader,
		Config{}, log.NewNop(), WithIndicatorInterval(time.Hour))

	b.handleMessage(context.Background(), userMessage("!analyse", false))

	sent := tr.Sent()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "reviewer-only") {
		t.Errorf("reply = %+v", sent)
	}
}

func TestReactionsRoutedToCollector(t *testing.T) {
	reactions := &fakeReactions{}
	tr := testutil.NewFakeTransport()
	b := New(tr, &fakeAnswerer{}, reactions, nil, nil,
		Config{}, log.NewNop(), WithIndicatorInterval(time.Hour))
	h := b.Handler()

	r := transport.Reaction{
		Ref:     transport.MessageRef{ChannelID: "ross-bot-logs", MessageID: "m-1"},
		Reactor: transport.User{ID: "a1", Name: "admin", IsAdmin: true},
		Emoji:   "👍",
	}
	h.OnReactionAdd(context.Background(), r)
	h.OnReactionRemove(context.Background(), r)

	if len(reactions.added) != 1 || len(reactions.removed) != 1 {
		t.Errorf("routed add=%d remove=%d, want 1/1", len(reactions.added), len(reactions.removed))
	}
}

func TestBuildReportEmpty(t *testing.T) {
	got := buildReport(nil, 7)
	if !strings.Contains(got, "No answered queries") {
		t.Errorf("empty report = %q", got)
	}
}
