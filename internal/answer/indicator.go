package answer

import (
	"context"
	"time"

	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/transport"
)

// MessageEditor edits an existing chat message in place. Implemented by
// any transport.Transport.
type MessageEditor interface {
	Edit(ctx context.Context, ref transport.MessageRef, text string) error
}

// IndicatorStages are the texts the progress indicator cycles through.
// The caller sends the first stage as the placeholder message; the
// indicator advances from there and holds on the last stage.
var IndicatorStages = []string{
	"Analyzing your query... 🤔",
	"Fetching relevant information... 🔍",
	"Composing a thoughtful response... ✍️",
	"Almost done! Finalizing... 🛠️",
}

const indicatorInterval = 2 * time.Second

// Indicator animates a placeholder message while an answer is generated.
// It is decorative only: the answer flow never waits on it, and Stop is
// guaranteed to end it no matter how the answer turned out.
type Indicator struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartIndicator spawns the animation goroutine. interval <= 0 uses the
// default 2s cadence. Always Stop the returned indicator, usually via
// defer.
func StartIndicator(ctx context.Context, editor MessageEditor, ref transport.MessageRef, interval time.Duration, logger log.Logger) *Indicator {
	if interval <= 0 {
		interval = indicatorInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	ind := &Indicator{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go ind.run(ctx, editor, ref, interval, logger)
	return ind
}

// Stop cancels the animation and waits for the goroutine to exit.
// Idempotent.
func (i *Indicator) Stop() {
	i.cancel()
	<-i.done
}

func (i *Indicator) run(ctx context.Context, editor MessageEditor, ref transport.MessageRef, interval time.Duration, logger log.Logger) {
	defer close(i.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// The placeholder already shows stage 0.
	stage := 1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if stage >= len(IndicatorStages) {
			continue
		}
		if err := editor.Edit(ctx, ref, IndicatorStages[stage]); err != nil {
			// The placeholder is likely gone; stop touching it.
			logger.Debug("progress indicator edit failed", "error", err)
			return
		}
		stage++
	}
}
