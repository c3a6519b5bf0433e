// Package granite is the HTTP client for the hosted instruction-tuned
// generation model. One Generate core carries the transport concerns
// (bearer auth, rate limiting, retry); the exported modes are thin prompt
// wrappers over it.
package granite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"secondbrain/internal/domain"
	"secondbrain/internal/log"
)

const apiVersion = "2023-05-29"

// Config identifies the deployment the client talks to.
type Config struct {
	BaseURL   string
	ModelID   string
	ProjectID string
	Timeout   time.Duration
	// RequestsPerSecond caps outbound generation calls. Zero means 2.
	RequestsPerSecond float64
	Burst             int
}

// Params are the per-call generation parameters sent to the model.
type Params struct {
	MaxNewTokens  int      `json:"max_new_tokens"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// Client implements domain.Generator against the text-generation endpoint.
type Client struct {
	cfg     Config
	tokens  domain.TokenSource
	client  *http.Client
	limiter *rate.Limiter
	logger  log.Logger
}

func NewClient(cfg Config, tokens domain.TokenSource, logger log.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst == 0 {
		cfg.Burst = 4
	}
	return &Client{
		cfg:     cfg,
		tokens:  tokens,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// Generate runs one text-generation call. A 401 invalidates the cached
// token and retries once with a fresh one; a 5xx or network failure
// retries once and then surfaces ErrModelUnavailable with the upstream
// status preserved.
func (c *Client) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", domain.ErrValidation)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}

	payload, err := json.Marshal(struct {
		ModelID    string `json:"model_id"`
		ProjectID  string `json:"project_id"`
		Input      string `json:"input"`
		Parameters Params `json:"parameters"`
	}{c.cfg.ModelID, c.cfg.ProjectID, prompt, p})
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/ml/v1/text/generation?version=" + apiVersion

	var authRetried, transientRetried bool
	for {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %v", domain.ErrTimeout, err)
			}
			if !transientRetried {
				transientRetried = true
				c.logger.Warn("generation call failed, retrying", "error", err)
				continue
			}
			return "", fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return parseGenerated(body)
		case resp.StatusCode == http.StatusUnauthorized:
			c.tokens.Invalidate()
			if !authRetried {
				authRetried = true
				c.logger.Warn("generation call rejected token, refreshing")
				continue
			}
			return "", &domain.UpstreamError{Kind: domain.ErrAuthFailed, Status: resp.StatusCode, Body: string(body)}
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			if !transientRetried {
				transientRetried = true
				c.logger.Warn("generation call failed, retrying", "status", resp.StatusCode)
				continue
			}
			return "", &domain.UpstreamError{Kind: domain.ErrModelUnavailable, Status: resp.StatusCode, Body: string(body)}
		default:
			return "", &domain.UpstreamError{Kind: domain.ErrValidation, Status: resp.StatusCode, Body: string(body)}
		}
	}
}

func parseGenerated(body []byte) (string, error) {
	var out struct {
		Results []struct {
			GeneratedText string `json:"generated_text"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if len(out.Results) == 0 {
		return "", fmt.Errorf("generation response without results")
	}
	return cleanGenerated(out.Results[0].GeneratedText), nil
}

// artifactMarkers are sequences the model sometimes emits after the real
// answer; everything from the first marker on is discarded.
var artifactMarkers = []string{
	"<|endoftext|>",
	"<|",
	"\nQuestion:",
	"\nHuman:",
	"\nUser:",
}

func cleanGenerated(text string) string {
	for _, marker := range artifactMarkers {
		if i := strings.Index(text, marker); i >= 0 {
			text = text[:i]
		}
	}
	return strings.TrimSpace(text)
}

// Answer generates a reply for an already-assembled prompt.
func (c *Client) Answer(ctx context.Context, prompt string) (string, error) {
	return c.Generate(ctx, prompt, Params{
		MaxNewTokens:  500,
		Temperature:   0.7,
		TopP:          0.9,
		StopSequences: []string{"\nQuestion:"},
	})
}

const summarizeInputLimit = 6000

// Summarize asks the model for a summary of at most maxWords words.
func (c *Client) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	if maxWords <= 0 {
		maxWords = 100
	}
	text = strings.TrimSpace(text)
	if len(text) > summarizeInputLimit {
		text = text[:summarizeInputLimit]
	}
	prompt := fmt.Sprintf("Summarize the following text in at most %d words. Keep the key facts and drop filler.\n\nText:\n%s\n\nSummary:", maxWords, text)
	return c.Generate(ctx, prompt, Params{
		MaxNewTokens: maxWords * 2,
		Temperature:  0.3,
	})
}

var knownIntents = map[string]domain.Intent{
	"question":  domain.IntentQuestion,
	"summarize": domain.IntentSummarize,
	"reminder":  domain.IntentReminder,
	"note":      domain.IntentNote,
	"task":      domain.IntentTask,
	"general":   domain.IntentGeneral,
}

// Classify maps an incoming message to one intent. Anything the model
// returns outside the known set degrades to IntentGeneral.
func (c *Client) Classify(ctx context.Context, message string) (domain.Intent, error) {
	prompt := "Classify the user message into exactly one category: question, summarize, reminder, note, task, general.\nReply with the category word only.\n\nMessage: " + strings.TrimSpace(message) + "\nCategory:"
	raw, err := c.Generate(ctx, prompt, Params{MaxNewTokens: 8, Temperature: 0})
	if err != nil {
		return "", err
	}
	word := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexAny(word, " \n\t.,"); i >= 0 {
		word = word[:i]
	}
	if intent, ok := knownIntents[word]; ok {
		return intent, nil
	}
	c.logger.Warn("unrecognized intent from model", "raw", raw)
	return domain.IntentGeneral, nil
}
