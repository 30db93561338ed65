package rlhf

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rosslabs/ross/internal/ai"
	"github.com/rosslabs/ross/internal/log"
	"github.com/rosslabs/ross/internal/store"
)

type createCall struct {
	fileID string
	model  string
	hp     ai.Hyperparameters
}

// fakeTrainClient scripts the provider side of a training run.
type fakeTrainClient struct {
	mu          sync.Mutex
	uploads     []string // dataset file contents at upload time
	uploadErr   error
	createErr   error
	createCalls []createCall
	statuses    []ai.TrainingJob // consumed one per poll; last repeats
	statusErr   error
	polls       int
	events      []ai.JobEvent
	eventCalls  int
}

func (f *fakeTrainClient) UploadTrainingFile(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	f.uploads = append(f.uploads, string(data))
	return "file-1", nil
}

func (f *fakeTrainClient) CreateFineTune(_ context.Context, fileID, model string, hp ai.Hyperparameters) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createCalls = append(f.createCalls, createCall{fileID: fileID, model: model, hp: hp})
	return "job-1", nil
}

func (f *fakeTrainClient) JobStatus(_ context.Context, jobID string) (ai.TrainingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return ai.TrainingJob{}, f.statusErr
	}
	idx := f.polls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.polls++
	job := f.statuses[idx]
	job.ID = jobID
	return job, nil
}

func (f *fakeTrainClient) ListEvents(_ context.Context, _ string) ([]ai.JobEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls++
	return f.events, nil
}

func newTestTrainer(t *testing.T, client TrainingClient, maxWait time.Duration) *Trainer {
	t.Helper()
	tr, err := NewTrainer(client, TrainerConfig{
		Model:        "gpt-3.5-turbo",
		Dir:          t.TempDir(),
		PollInterval: time.Millisecond,
		MaxWait:      maxWait,
	}, log.NewNop())
	if err != nil {
		t.Fatalf("NewTrainer: %v", err)
	}
	return tr
}

func someFeedback(n int) []store.FeedbackEntry {
	out := make([]store.FeedbackEntry, n)
	for i := range out {
		typ := store.FeedbackPositive
		if i%2 == 1 {
			typ = store.FeedbackNegative
		}
		out[i] = store.FeedbackEntry{
			MessageID: "msg",
			Query:     "how do I open a session",
			Response:  "Send an OPEN frame.",
			Type:      typ,
		}
	}
	return out
}

func TestNewTrainerRejectsUnknownModel(t *testing.T) {
	_, err := NewTrainer(&fakeTrainClient{}, TrainerConfig{Model: "gpt-oss-superb"}, log.NewNop())
	if !errors.Is(err, ErrModelNotAvailable) {
		t.Fatalf("NewTrainer = %v, want ErrModelNotAvailable", err)
	}
}

func TestBuildDataset(t *testing.T) {
	entries := []store.FeedbackEntry{
		{Query: "q1", Response: "r1", Type: store.FeedbackPositive},
		{Query: "q2", Response: "r2", Type: store.FeedbackNegative},
		{Query: "q3", Response: "r3", Type: store.FeedbackNegative, Reply: "better r3"},
	}

	got := BuildDataset(entries)

	// Three entries, one of which carries a reviewer reply and yields a
	// reinforcement example on top of its own.
	if len(got) != 4 {
		t.Fatalf("BuildDataset produced %d examples, want 4", len(got))
	}

	if !strings.Contains(got[0].Messages[0].Content, "Follow this example") {
		t.Errorf("positive frame missing: %q", got[0].Messages[0].Content)
	}
	if !strings.Contains(got[1].Messages[0].Content, "needs improvement") {
		t.Errorf("negative frame missing: %q", got[1].Messages[0].Content)
	}
	if !strings.Contains(got[3].Messages[0].Content, "reviewer") {
		t.Errorf("reinforcement frame missing: %q", got[3].Messages[0].Content)
	}
	if got[3].Messages[2].Content != "better r3" {
		t.Errorf("reinforcement assistant message = %q, want reviewer reply", got[3].Messages[2].Content)
	}

	for i, ex := range got {
		if len(ex.Messages) != 3 {
			t.Errorf("example %d has %d messages, want 3", i, len(ex.Messages))
		}
	}
}

func TestCreateTrainingJob(t *testing.T) {
	client := &fakeTrainClient{}
	tr := newTestTrainer(t, client, 0)

	jobID, err := tr.CreateTrainingJob(context.Background(), someFeedback(3))
	if err != nil {
		t.Fatalf("CreateTrainingJob: %v", err)
	}
	if jobID != "job-1" {
		t.Errorf("jobID = %q", jobID)
	}

	// The uploaded dataset is valid JSONL in the chat format.
	if len(client.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(client.uploads))
	}
	scanner := bufio.NewScanner(strings.NewReader(client.uploads[0]))
	lines := 0
	for scanner.Scan() {
		var ex Example
		if err := json.Unmarshal(scanner.Bytes(), &ex); err != nil {
			t.Fatalf("line %d is not a valid example: %v", lines, err)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("dataset has %d lines, want 3", lines)
	}

	// Fixed hyperparameters go out with the job.
	if len(client.createCalls) != 1 {
		t.Fatalf("createCalls = %d, want 1", len(client.createCalls))
	}
	call := client.createCalls[0]
	if call.fileID != "file-1" || call.model != "gpt-3.5-turbo" {
		t.Errorf("create call = %+v", call)
	}
	if call.hp != DefaultHyperparameters {
		t.Errorf("hyperparameters = %+v, want %+v", call.hp, DefaultHyperparameters)
	}
}

func TestCreateTrainingJobCleansUpDataset(t *testing.T) {
	client := &fakeTrainClient{}
	tr := newTestTrainer(t, client, 0)

	if _, err := tr.CreateTrainingJob(context.Background(), someFeedback(2)); err != nil {
		t.Fatalf("CreateTrainingJob: %v", err)
	}

	// The local dataset file is gone after upload.
	files, err := os.ReadDir(tr.dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("dataset directory still holds %d files", len(files))
	}
}

func TestCreateTrainingJobNoData(t *testing.T) {
	tr := newTestTrainer(t, &fakeTrainClient{}, 0)
	if _, err := tr.CreateTrainingJob(context.Background(), nil); !errors.Is(err, ErrNoTrainingData) {
		t.Fatalf("CreateTrainingJob = %v, want ErrNoTrainingData", err)
	}
}

func TestWaitForModel(t *testing.T) {
	t.Run("succeeds after progress", func(t *testing.T) {
		client := &fakeTrainClient{statuses: []ai.TrainingJob{
			{Status: ai.StatusQueued},
			{Status: ai.StatusRunning},
			{Status: ai.StatusSucceeded, FineTunedModel: "ft:gpt-3.5-turbo:org::abc"},
		}}
		tr := newTestTrainer(t, client, time.Second)

		model, err := tr.WaitForModel(context.Background(), "job-1")
		if err != nil {
			t.Fatalf("WaitForModel: %v", err)
		}
		if model != "ft:gpt-3.5-turbo:org::abc" {
			t.Errorf("model = %q", model)
		}
	})

	t.Run("failed job", func(t *testing.T) {
		client := &fakeTrainClient{statuses: []ai.TrainingJob{
			{Status: ai.StatusFailed, Error: "insufficient examples"},
		}}
		tr := newTestTrainer(t, client, time.Second)

		_, err := tr.WaitForModel(context.Background(), "job-1")
		if !errors.Is(err, ErrTrainingFailed) {
			t.Fatalf("WaitForModel = %v, want ErrTrainingFailed", err)
		}
		if !strings.Contains(err.Error(), "insufficient examples") {
			t.Errorf("provider error not carried: %v", err)
		}
		if client.eventCalls != 1 {
			t.Errorf("event history fetched %d times, want 1", client.eventCalls)
		}
	})

	t.Run("cancelled job", func(t *testing.T) {
		client := &fakeTrainClient{statuses: []ai.TrainingJob{
			{Status: ai.StatusCancelled},
		}}
		tr := newTestTrainer(t, client, time.Second)

		if _, err := tr.WaitForModel(context.Background(), "job-1"); !errors.Is(err, ErrTrainingCancelled) {
			t.Fatalf("WaitForModel = %v, want ErrTrainingCancelled", err)
		}
	})

	t.Run("times out on a stuck job", func(t *testing.T) {
		client := &fakeTrainClient{statuses: []ai.TrainingJob{
			{Status: ai.StatusRunning},
		}}
		tr := newTestTrainer(t, client, 20*time.Millisecond)

		if _, err := tr.WaitForModel(context.Background(), "job-1"); !errors.Is(err, ErrTrainingTimeout) {
			t.Fatalf("WaitForModel = %v, want ErrTrainingTimeout", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		client := &fakeTrainClient{statuses: []ai.TrainingJob{
			{Status: ai.StatusRunning},
		}}
		tr := newTestTrainer(t, client, 0)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := tr.WaitForModel(ctx, "job-1"); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("WaitForModel = %v, want DeadlineExceeded", err)
		}
	})

	t.Run("transient poll errors tolerated", func(t *testing.T) {
		client := &fakeTrainClient{statuses: []ai.TrainingJob{
			{Status: ai.StatusSucceeded, FineTunedModel: "ft:x"},
		}}
		// First poll errors, then the scripted statuses apply.
		client.statusErr = errors.New("blip")
		tr := newTestTrainer(t, client, time.Second)

		done := make(chan struct{})
		go func() {
			defer close(done)
			time.Sleep(5 * time.Millisecond)
			client.mu.Lock()
			client.statusErr = nil
			client.mu.Unlock()
		}()

		model, err := tr.WaitForModel(context.Background(), "job-1")
		<-done
		if err != nil {
			t.Fatalf("WaitForModel: %v", err)
		}
		if model != "ft:x" {
			t.Errorf("model = %q", model)
		}
	})
}
