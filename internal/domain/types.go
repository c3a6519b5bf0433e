package domain

import "time"

// Document is a single ingested source unit. Documents are immutable once
// stored; a re-upload supersedes the old content under a new ID.
type Document struct {
	ID       string
	Owner    string
	Text     string
	Metadata DocumentMetadata
}

// DocumentMetadata carries source information for an ingested document.
type DocumentMetadata struct {
	Filename   string
	MimeType   string
	UploadedAt time.Time
}

// Chunk is a contiguous slice of a document's text, the unit of embedding
// and retrieval. Chunks are never mutated after creation.
type Chunk struct {
	ID         string
	DocumentID string
	Owner      string
	Index      int
	Text       string
	// Overlap is the number of leading bytes repeated from the previous
	// chunk of the same document.
	Overlap int
}

// SearchResult is a matching chunk with its cosine similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Intent is the classified purpose of an incoming chat message.
type Intent string

const (
	IntentQuestion  Intent = "question"
	IntentSummarize Intent = "summarize"
	IntentReminder  Intent = "reminder"
	IntentNote      Intent = "note"
	IntentTask      Intent = "task"
	IntentGeneral   Intent = "general"
)

// Task is an action item extracted from free text. DueDate is nil when the
// text carried no resolvable time expression.
type Task struct {
	ID          string
	Owner       string
	Description string
	DueDate     *time.Time
	Priority    string
	Confidence  float64
	CreatedAt   time.Time
}

// Reminder is a scheduled notification for a user.
type Reminder struct {
	ID      string
	Owner   string
	Message string
	At      time.Time
	Sent    bool
}

// Message is one turn of a user's conversation history.
type Message struct {
	Role string // "user" or "assistant"
	Text string
	At   time.Time
}

// ParseOutcome describes how well the model's task-extraction output could
// be interpreted.
type ParseOutcome int

const (
	Parsed ParseOutcome = iota
	PartiallyParsed
	Unparseable
)

// TaskExtraction is the result of running task extraction over a text.
type TaskExtraction struct {
	Outcome   ParseOutcome
	Tasks     []Task
	Reminders []Reminder
}

// Answer is the response to a knowledge query: the generated text plus the
// ids of the chunks that were placed in the prompt.
type Answer struct {
	Text          string
	CitedChunkIDs []string
}
