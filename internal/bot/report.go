package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rosslabs/ross/internal/store"
	"github.com/rosslabs/ross/internal/transport"
)

// reportDays is the lookback window of the !analyse command.
const reportDays = 7

func (b *Bot) commandAnalyse(ctx context.Context, msg transport.Message) {
	if !msg.Author.IsAdmin {
		b.send(ctx, msg.Ref.ChannelID, "Sorry, `"+b.cfg.CommandPrefix+"analyse` is reviewer-only.")
		return
	}
	if b.interactions == nil {
		b.send(ctx, msg.Ref.ChannelID, "Usage analytics are not enabled on this deployment.")
		return
	}

	since := b.now().AddDate(0, 0, -reportDays)
	entries, err := b.interactions.Recent(ctx, since)
	if err != nil {
		b.logger.Error("loading interactions for report failed", "error", err)
		b.send(ctx, msg.Ref.ChannelID, "Could not build the usage report, see the logs.")
		return
	}

	b.send(ctx, msg.Ref.ChannelID, buildReport(entries, reportDays))
}

// buildReport summarizes answered queries: volume, distinct askers, and
// the most frequent topics and tags.
func buildReport(entries []store.Interaction, days int) string {
	if len(entries) == 0 {
		return fmt.Sprintf("📊 No answered queries in the last %d days.", days)
	}

	users := make(map[string]struct{})
	topics := make(map[string]int)
	tags := make(map[string]int)
	for _, e := range entries {
		users[e.Username] = struct{}{}
		for _, t := range e.Topics {
			topics[t]++
		}
		for _, t := range e.Tags {
			tags[t]++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Last %d days: %d answered queries from %d users.",
		days, len(entries), len(users))
	if line := topCounts(topics, 5); line != "" {
		sb.WriteString("\nTop topics: " + line)
	}
	if line := topCounts(tags, 5); line != "" {
		sb.WriteString("\nTop tags: " + line)
	}
	return sb.String()
}

// topCounts renders the n most frequent entries as "name (count)", ties
// broken alphabetically so the report is stable.
func topCounts(counts map[string]int, n int) string {
	type kv struct {
		name  string
		count int
	}
	items := make([]kv, 0, len(counts))
	for name, count := range counts {
		items = append(items, kv{name, count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		return items[i].name < items[j].name
	})
	if len(items) > n {
		items = items[:n]
	}

	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%s (%d)", it.name, it.count)
	}
	return strings.Join(parts, ", ")
}
