package domain

import (
	"context"
	"time"
)

// Embedder converts free text into a fixed-dimension numeric vector.
// Implementations must be deterministic for identical input.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	// EmbedBatch preserves input order and length.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Chunker splits a document into overlapping chunks suitable for embedding.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorIndex persists embedded chunks and supports similarity search.
// Implementations must allow concurrent readers and serialize mutations.
type VectorIndex interface {
	Upsert(chunk Chunk, vector []float64) error
	Delete(chunkID string)
	DeleteDocument(documentID string) int
	Search(vector []float64, owner string, k int, minScore float64) []SearchResult
	Save(path string) error
	// Load replaces the index contents from disk. A missing, corrupt or
	// dimension-mismatched file leaves the index empty and returns a
	// non-nil warning so the caller can decide to re-ingest; it is never
	// fatal to startup.
	Load(path string) error
	Len() int
}

// Retriever produces a ranked context set for a query. An empty result is a
// valid outcome, not an error.
type Retriever interface {
	Retrieve(ctx context.Context, query, owner string, maxChunks int, minScore float64) ([]SearchResult, error)
}

// TokenSource supplies a valid bearer token for the model service.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate discards the cached token so the next Token call refreshes.
	// Called after a 401-class rejection of a token believed valid.
	Invalidate()
}

// Generator sends prompts to the remote instruction-tuned model.
type Generator interface {
	Answer(ctx context.Context, prompt string) (string, error)
	Summarize(ctx context.Context, text string, maxWords int) (string, error)
	ExtractTasks(ctx context.Context, text string, ref time.Time) (TaskExtraction, error)
	Classify(ctx context.Context, message string) (Intent, error)
}

// Summarizer produces a brief summary of the provided text locally,
// without a model call.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Messenger delivers a message to a user over the chat channel.
type Messenger interface {
	Send(ctx context.Context, to, body string) error
}

// TaskStore persists tasks, reminders and conversation history.
type TaskStore interface {
	SaveTask(ctx context.Context, task Task) error
	SaveReminder(ctx context.Context, reminder Reminder) error
	MarkReminderSent(ctx context.Context, id string) error
	DeleteReminder(ctx context.Context, id string) error
	Tasks(ctx context.Context, owner string) ([]Task, error)
	Reminders(ctx context.Context, owner string) ([]Reminder, error)
	UpcomingReminders(ctx context.Context, within time.Duration) ([]Reminder, error)
	AppendMessage(ctx context.Context, owner string, msg Message) error
	History(ctx context.Context, owner string, limit int) ([]Message, error)
}

// Assistant defines the operations exposed by the application core.
type Assistant interface {
	Ingest(ctx context.Context, owner, documentID, text string, meta DocumentMetadata) (int, error)
	Query(ctx context.Context, owner, question string, history []Message) (Answer, error)
	Summarize(ctx context.Context, owner, text string) (string, error)
	ExtractTasks(ctx context.Context, owner, text string, ref time.Time) (TaskExtraction, error)
	HandleMessage(ctx context.Context, owner, text string) (string, error)
}
