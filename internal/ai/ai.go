// Package ai wraps the OpenAI API behind the small surface the bot needs:
// embeddings, chat completions, and the fine-tuning lifecycle (file upload,
// job submission, status polling).
//
// Consumers depend on interfaces they define themselves; this package only
// provides the concrete client plus the shared message and job types those
// interfaces speak.
package ai

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn. The JSON shape matches the OpenAI chat
// format so training examples can embed messages directly.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// CompleteOptions controls a single chat completion request.
type CompleteOptions struct {
	// Model overrides the client's default chat model when non-empty.
	Model string

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int64

	// Temperature controls sampling randomness.
	Temperature float64
}

// Hyperparameters for a fine-tuning job. Zero values fall back to the
// provider's automatic choices.
type Hyperparameters struct {
	Epochs                 int
	LearningRateMultiplier float64
	BatchSize              int
}

// Status of a fine-tuning job as reported by the provider.
type Status string

const (
	StatusValidating Status = "validating_files"
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the job has finished, successfully or not.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TrainingJob is a snapshot of a fine-tuning job.
type TrainingJob struct {
	ID     string
	Status Status

	// FineTunedModel is the resulting model identifier. Only set once the
	// job has succeeded.
	FineTunedModel string

	// Error carries the provider's failure message for failed jobs.
	Error string
}

// JobEvent is a progress event emitted by a running fine-tuning job.
type JobEvent struct {
	Level   string
	Message string
}
