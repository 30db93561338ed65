// Package bot glues platform events to the core services: messages and
// commands to the answer flow, reactions to the feedback collector.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rosslabs/ross/internal/answer"
	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/prompt"
	"github.com/rosslabs/ross/internal/store"
	"github.com/rosslabs/ross/internal/transcript"
	"github.com/rosslabs/ross/internal/transport"
)

// Answerer runs the answer flow. Implemented by answer.Service.
type Answerer interface {
	Answer(ctx context.Context, query, username string, opts ...answer.Option) (answer.Result, error)
}

// ReactionSink receives reviewer reactions. Implemented by
// feedback.Collector.
type ReactionSink interface {
	HandleReactionAdd(ctx context.Context, r transport.Reaction) error
	HandleReactionRemove(ctx context.Context, r transport.Reaction) error
}

// TrainingRunner runs one on-demand training cycle. Implemented by
// rlhf.Pipeline.
type TrainingRunner interface {
	RunTrainingCycle(ctx context.Context) (string, error)
}

// InteractionReader serves the usage report. Implemented by
// store.Interactions.
type InteractionReader interface {
	Recent(ctx context.Context, since time.Time) ([]store.Interaction, error)
}

// Config holds the bot's channel-facing settings.
type Config struct {
	// CommandPrefix starts every command, "!" by default.
	CommandPrefix string

	// LogChannel receives transcript attachments. Empty disables
	// transcript logging, which also disables reaction feedback.
	LogChannel string
}

// Bot routes inbound events.
type Bot struct {
	transport    transport.Transport
	answers      Answerer
	reactions    ReactionSink
	trainer      TrainingRunner
	interactions InteractionReader
	cfg          Config
	logger       log.Logger

	now               func() time.Time
	indicatorInterval time.Duration

	mu      sync.Mutex
	threads map[string]struct{}
}

// Option adjusts bot construction.
type Option func(*Bot)

// WithIndicatorInterval overrides the progress-indicator cadence.
func WithIndicatorInterval(d time.Duration) Option {
	return func(b *Bot) { b.indicatorInterval = d }
}

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// New creates a bot. trainer and interactions may be nil; the matching
// admin commands then report themselves as unavailable.
func New(
	tr transport.Transport,
	answers Answerer,
	reactions ReactionSink,
	trainer TrainingRunner,
	interactions InteractionReader,
	cfg Config,
	logger log.Logger,
	opts ...Option,
) *Bot {
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	b := &Bot{
		transport:    tr,
		answers:      answers,
		reactions:    reactions,
		trainer:      trainer,
		interactions: interactions,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		threads:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns the event handler to run a gateway with.
func (b *Bot) Handler() transport.Handler {
	return transport.Handler{
		OnMessage:        b.handleMessage,
		OnReactionAdd:    b.handleReactionAdd,
		OnReactionRemove: b.handleReactionRemove,
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg transport.Message) {
	if msg.Author.IsBot {
		return
	}
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}

	if !strings.HasPrefix(content, b.cfg.CommandPrefix) {
		// Bare messages only count inside threads the bot opened; they are
		// follow-up questions there.
		if msg.ThreadID != "" && b.ownsThread(msg.ThreadID) {
			b.answerQuery(ctx, msg.ThreadID, msg, content, prompt.DetailStandard, true)
		}
		return
	}

	name, rest, _ := strings.Cut(content[len(b.cfg.CommandPrefix):], " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "ask":
		b.commandAsk(ctx, msg, rest, prompt.DetailStandard)
	case "explain":
		b.commandAsk(ctx, msg, rest, prompt.DetailDetailed)
	case "learn":
		b.commandLearn(ctx, msg)
	case "analyse", "analyze":
		b.commandAnalyse(ctx, msg)
	default:
		b.logger.Debug("unknown command ignored", "command", name, "username", msg.Author.Name)
	}
}

func (b *Bot) handleReactionAdd(ctx context.Context, r transport.Reaction) {
	if err := b.reactions.HandleReactionAdd(ctx, r); err != nil {
		b.logger.Error("handling reaction failed",
			"message_id", r.Ref.MessageID,
			"reviewer", r.Reactor.Name,
			"error", err)
	}
}

func (b *Bot) handleReactionRemove(ctx context.Context, r transport.Reaction) {
	if err := b.reactions.HandleReactionRemove(ctx, r); err != nil {
		b.logger.Error("handling reaction removal failed",
			"message_id", r.Ref.MessageID,
			"reviewer", r.Reactor.Name,
			"error", err)
	}
}

func (b *Bot) commandAsk(ctx context.Context, msg transport.Message, query string, detail prompt.DetailLevel) {
	if query == "" {
		b.send(ctx, msg.Ref.ChannelID, "Ask me something, e.g. `"+b.cfg.CommandPrefix+"ask how do I open a session?`")
		return
	}
	b.answerQuery(ctx, msg.Ref.ChannelID, msg, query, detail, false)
}

// answerQuery runs one query end to end: placeholder with animated
// progress, the answer itself, delivery (threaded unless already in one),
// and the transcript to the log channel.
func (b *Bot) answerQuery(ctx context.Context, channelID string, msg transport.Message, query string, detail prompt.DetailLevel, inThread bool) {
	placeholder, err := b.transport.Send(ctx, channelID, answer.IndicatorStages[0])
	if err != nil {
		b.logger.Error("sending placeholder failed", "channel", channelID, "error", err)
		return
	}

	ind := answer.StartIndicator(ctx, b.transport, placeholder, b.indicatorInterval, b.logger)
	defer ind.Stop()

	role := prompt.RoleUser
	if msg.Author.IsAdmin {
		role = prompt.RoleAdmin
	}
	res, err := b.answers.Answer(ctx, query, msg.Author.Name,
		answer.WithRole(role), answer.WithDetail(detail))
	ind.Stop()

	if err != nil {
		b.logger.Error("answering failed", "username", msg.Author.Name, "error", err)
		b.edit(ctx, placeholder, res.Response)
		return
	}

	b.deliver(ctx, placeholder, query, res.Response, inThread)
	b.logTranscript(ctx, channelID, msg, query, res.Response)
}

// deliver posts the answer. Fresh questions get a thread on the
// placeholder; follow-ups stay in their thread. When the platform cannot
// open a thread the answer lands in the channel instead.
func (b *Bot) deliver(ctx context.Context, placeholder transport.MessageRef, query, response string, inThread bool) {
	chunks := transport.ChunkByParagraphs(response, transport.DefaultMaxMessageLen)
	if len(chunks) == 0 {
		return
	}

	target := placeholder.ChannelID
	if !inThread {
		threadID, err := b.transport.CreateThread(ctx, placeholder, threadTitle(query))
		if err == nil {
			b.registerThread(threadID)
			b.edit(ctx, placeholder, "💬 "+threadTitle(query))
			for _, chunk := range chunks {
				b.send(ctx, threadID, chunk)
			}
			return
		}
		b.logger.Warn("creating thread failed, answering in channel", "error", err)
	}

	b.edit(ctx, placeholder, chunks[0])
	for _, chunk := range chunks[1:] {
		b.send(ctx, target, chunk)
	}
}

// logTranscript posts the interaction transcript to the log channel,
// where reviewer reactions turn it into feedback.
func (b *Bot) logTranscript(ctx context.Context, channelID string, msg transport.Message, query, response string) {
	if b.cfg.LogChannel == "" {
		return
	}

	text := transcript.Render(transcript.Log{
		Username: msg.Author.Name,
		UserID:   msg.Author.ID,
		Query:    query,
		Channel:  channelID,
		Response: response,
		When:     b.now().UTC(),
	})
	name := fmt.Sprintf("transcript-%s.txt", msg.Ref.MessageID)
	caption := "📝 Interaction from " + msg.Author.Name

	if _, err := b.transport.SendFile(ctx, b.cfg.LogChannel, name, []byte(text), caption); err != nil {
		b.logger.Error("posting transcript failed", "channel", b.cfg.LogChannel, "error", err)
	}
}

func (b *Bot) commandLearn(ctx context.Context, msg transport.Message) {
	if !msg.Author.IsAdmin {
		b.send(ctx, msg.Ref.ChannelID, "Sorry, `"+b.cfg.CommandPrefix+"learn` is reviewer-only.")
		return
	}
	if b.trainer == nil {
		b.send(ctx, msg.Ref.ChannelID, "Training is not enabled on this deployment.")
		return
	}

	jobID, err := b.trainer.RunTrainingCycle(ctx)
	switch {
	case err != nil:
		b.logger.Error("on-demand training cycle failed", "username", msg.Author.Name, "error", err)
		b.send(ctx, msg.Ref.ChannelID, "Training cycle failed, see the logs.")
	case jobID == "":
		b.send(ctx, msg.Ref.ChannelID, "Not enough fresh feedback to train on yet.")
	default:
		b.send(ctx, msg.Ref.ChannelID, "Training job submitted: "+jobID)
	}
}

func (b *Bot) ownsThread(threadID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.threads[threadID]
	return ok
}

func (b *Bot) registerThread(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads[threadID] = struct{}{}
}

func (b *Bot) send(ctx context.Context, channelID, text string) {
	if _, err := b.transport.Send(ctx, channelID, text); err != nil {
		b.logger.Error("sending message failed", "channel", channelID, "error", err)
	}
}

func (b *Bot) edit(ctx context.Context, ref transport.MessageRef, text string) {
	if err := b.transport.Edit(ctx, ref, text); err != nil {
		b.logger.Error("editing message failed", "message_id", ref.MessageID, "error", err)
	}
}

// threadTitle derives a thread name from the query, truncated on a rune
// boundary to stay within platform name limits.
func threadTitle(query string) string {
	const maxRunes = 80
	runes := []rune(strings.TrimSpace(query))
	if len(runes) <= maxRunes {
		return string(runes)
	}
	return string(runes[:maxRunes-1]) + "…"
}
