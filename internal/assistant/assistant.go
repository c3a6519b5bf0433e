// Package assistant wires the retrieval pipeline, the generation model and
// the task store into the operations the transport layers expose.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"secondbrain/internal/domain"
	"secondbrain/internal/log"
	"secondbrain/internal/prompt"
)

// Config bounds the retrieval and prompt sizes per request.
type Config struct {
	IndexPath    string
	MaxChunks    int
	MinScore     float64
	MaxPromptLen int
	HistoryTurns int
}

// Service implements domain.Assistant.
type Service struct {
	cfg       Config
	chunker   domain.Chunker
	embedder  domain.Embedder
	index     domain.VectorIndex
	retriever domain.Retriever
	assembler *prompt.Assembler
	model     domain.Generator
	fallback  domain.Summarizer
	store     domain.TaskStore
	logger    log.Logger
}

func New(cfg Config, chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex,
	retriever domain.Retriever, assembler *prompt.Assembler, model domain.Generator,
	fallback domain.Summarizer, store domain.TaskStore, logger log.Logger) *Service {
	if cfg.MaxChunks == 0 {
		cfg.MaxChunks = 5
	}
	if cfg.MaxPromptLen == 0 {
		cfg.MaxPromptLen = 4000
	}
	if cfg.HistoryTurns == 0 {
		cfg.HistoryTurns = 10
	}
	return &Service{
		cfg: cfg, chunker: chunker, embedder: embedder, index: index,
		retriever: retriever, assembler: assembler, model: model,
		fallback: fallback, store: store, logger: logger,
	}
}

// Ingest chunks, embeds and indexes a document. Either every chunk lands
// in the index or none does; a mid-batch failure rolls back the inserted
// chunks so a retry starts clean.
func (s *Service) Ingest(ctx context.Context, owner, documentID, text string, meta domain.DocumentMetadata) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: empty document", domain.ErrValidation)
	}
	if documentID == "" {
		documentID = uuid.NewString()
	}
	doc := domain.Document{ID: documentID, Owner: owner, Text: text, Metadata: meta}
	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return 0, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed document: %w", err)
	}

	for i, ch := range chunks {
		if err := s.index.Upsert(ch, vectors[i]); err != nil {
			s.index.DeleteDocument(documentID)
			return 0, fmt.Errorf("index chunk %d: %w", i, err)
		}
	}
	s.persistIndex()
	s.logger.Info("document ingested", "owner", owner, "document", documentID, "chunks", len(chunks))
	return len(chunks), nil
}

// Query answers a question from the owner's indexed content. Empty
// retrieval still reaches the model; the prompt then carries an explicit
// no-context admission instead of silence.
func (s *Service) Query(ctx context.Context, owner, question string, history []domain.Message) (domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Answer{}, fmt.Errorf("%w: empty question", domain.ErrValidation)
	}
	results, err := s.retriever.Retrieve(ctx, question, owner, s.cfg.MaxChunks, s.cfg.MinScore)
	if err != nil {
		return domain.Answer{}, err
	}
	promptText, cited := s.assembler.Assemble(results, history, question, s.cfg.MaxPromptLen)
	text, err := s.model.Answer(ctx, promptText)
	if err != nil {
		return domain.Answer{}, err
	}
	return domain.Answer{Text: text, CitedChunkIDs: cited}, nil
}

// Summarize prefers the model and degrades to the local frequency
// summarizer when the model is unreachable.
func (s *Service) Summarize(ctx context.Context, owner, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: nothing to summarize", domain.ErrValidation)
	}
	out, err := s.model.Summarize(ctx, text, 100)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, domain.ErrModelUnavailable) || errors.Is(err, domain.ErrTimeout) {
		s.logger.Warn("model summarize failed, using local summarizer", "owner", owner, "error", err)
		return s.fallback.Summarize(text, 5)
	}
	return "", err
}

// ExtractTasks runs extraction and persists whatever was recovered, with
// the owner stamped on every item.
func (s *Service) ExtractTasks(ctx context.Context, owner, text string, ref time.Time) (domain.TaskExtraction, error) {
	ext, err := s.model.ExtractTasks(ctx, text, ref)
	if err != nil {
		return domain.TaskExtraction{}, err
	}
	for i := range ext.Tasks {
		ext.Tasks[i].Owner = owner
		if err := s.store.SaveTask(ctx, ext.Tasks[i]); err != nil {
			return domain.TaskExtraction{}, err
		}
	}
	for i := range ext.Reminders {
		ext.Reminders[i].Owner = owner
		if err := s.store.SaveReminder(ctx, ext.Reminders[i]); err != nil {
			return domain.TaskExtraction{}, err
		}
	}
	return ext, nil
}

// HandleMessage is the chat entry point: classify, route, record both
// sides of the turn.
func (s *Service) HandleMessage(ctx context.Context, owner, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty message", domain.ErrValidation)
	}
	if err := s.store.AppendMessage(ctx, owner, domain.Message{Role: "user", Text: text, At: time.Now()}); err != nil {
		s.logger.Warn("record user turn failed", "owner", owner, "error", err)
	}

	intent, err := s.model.Classify(ctx, text)
	if err != nil {
		intent = keywordIntent(text)
		s.logger.Warn("intent classification failed, using keyword routing", "owner", owner, "intent", intent, "error", err)
	}

	reply, err := s.dispatch(ctx, owner, text, intent)
	if err != nil {
		return "", err
	}
	if err := s.store.AppendMessage(ctx, owner, domain.Message{Role: "assistant", Text: reply, At: time.Now()}); err != nil {
		s.logger.Warn("record assistant turn failed", "owner", owner, "error", err)
	}
	return reply, nil
}

func (s *Service) dispatch(ctx context.Context, owner, text string, intent domain.Intent) (string, error) {
	switch intent {
	case domain.IntentReminder, domain.IntentTask:
		ext, err := s.ExtractTasks(ctx, owner, text, time.Now())
		if err != nil {
			return "", err
		}
		return renderExtraction(ext), nil

	case domain.IntentNote:
		n, err := s.Ingest(ctx, owner, "", text, domain.DocumentMetadata{
			MimeType: "text/plain", UploadedAt: time.Now(),
		})
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "There was nothing to save.", nil
		}
		return "Noted. I'll remember that.", nil

	case domain.IntentSummarize:
		history, err := s.store.History(ctx, owner, s.cfg.HistoryTurns)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, msg := range history {
			b.WriteString(msg.Text)
			b.WriteString("\n")
		}
		if strings.TrimSpace(b.String()) == "" {
			return "There's nothing to summarize yet.", nil
		}
		return s.Summarize(ctx, owner, b.String())

	default: // question and general both go through retrieval
		history, err := s.store.History(ctx, owner, s.cfg.HistoryTurns)
		if err != nil {
			s.logger.Warn("history load failed", "owner", owner, "error", err)
		}
		answer, err := s.Query(ctx, owner, text, history)
		if err != nil {
			return "", err
		}
		return answer.Text, nil
	}
}

func renderExtraction(ext domain.TaskExtraction) string {
	if len(ext.Tasks) == 0 && len(ext.Reminders) == 0 {
		return "I couldn't find a concrete task in that. Try rephrasing with what needs doing and when."
	}
	var b strings.Builder
	for _, r := range ext.Reminders {
		fmt.Fprintf(&b, "Reminder set: %s at %s.\n", r.Message, r.At.Format("Mon Jan 2 15:04"))
	}
	for _, t := range ext.Tasks {
		if t.DueDate != nil {
			fmt.Fprintf(&b, "Task added: %s (due %s).\n", t.Description, t.DueDate.Format("Mon Jan 2 15:04"))
		} else {
			fmt.Fprintf(&b, "Task added: %s.\n", t.Description)
		}
	}
	if ext.Outcome == domain.PartiallyParsed {
		b.WriteString("I may have missed some details, double-check the times.")
	}
	return strings.TrimSpace(b.String())
}

func keywordIntent(text string) domain.Intent {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "remind me"):
		return domain.IntentReminder
	case strings.HasPrefix(lower, "summarize") || strings.HasPrefix(lower, "summary"):
		return domain.IntentSummarize
	case strings.HasPrefix(lower, "note:") || strings.HasPrefix(lower, "remember that"):
		return domain.IntentNote
	case strings.Contains(lower, "need to") || strings.Contains(lower, "have to") || strings.Contains(lower, "todo"):
		return domain.IntentTask
	case strings.Contains(lower, "?"):
		return domain.IntentQuestion
	default:
		return domain.IntentGeneral
	}
}

func (s *Service) persistIndex() {
	if s.cfg.IndexPath == "" {
		return
	}
	if err := s.index.Save(s.cfg.IndexPath); err != nil {
		s.logger.Error("index save failed", "path", s.cfg.IndexPath, "error", err)
	}
}
