package answer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingEditor struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingEditor) Edit(_ context.Context, _ transport.MessageRef, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingEditor) edits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func TestIndicatorAdvancesThroughStages(t *testing.T) {
	editor := &recordingEditor{}
	ref := transport.MessageRef{ChannelID: "c", MessageID: "m"}

	ind := StartIndicator(context.Background(), editor, ref, time.Millisecond, log.NewNop())

	deadline := time.After(2 * time.Second)
	for len(editor.edits()) < len(IndicatorStages)-1 {
		select {
		case <-deadline:
			ind.Stop()
			t.Fatalf("indicator stalled after edits %q", editor.edits())
		case <-time.After(time.Millisecond):
		}
	}
	ind.Stop()

	// Stage 0 is the placeholder itself; edits walk the remaining stages
	// in order and stop once the last one is shown.
	got := editor.edits()
	if len(got) != len(IndicatorStages)-1 {
		t.Fatalf("indicator made %d edits, want %d: %q", len(got), len(IndicatorStages)-1, got)
	}
	for i, text := range got {
		if want := IndicatorStages[i+1]; text != want {
			t.Errorf("edit %d = %q, want %q", i, text, want)
		}
	}
}

func TestIndicatorStopBeforeFirstTick(t *testing.T) {
	editor := &recordingEditor{}
	ind := StartIndicator(context.Background(), editor, transport.MessageRef{}, time.Hour, log.NewNop())
	ind.Stop()

	if n := len(editor.edits()); n != 0 {
		t.Errorf("indicator edited %d times before its first tick", n)
	}
}

func TestIndicatorStopsOnEditFailure(t *testing.T) {
	editor := &recordingEditor{err: errors.New("message deleted")}
	ind := StartIndicator(context.Background(), editor, transport.MessageRef{}, time.Millisecond, log.NewNop())

	// The goroutine exits on its own; Stop must still return promptly.
	time.Sleep(10 * time.Millisecond)
	ind.Stop()
}
