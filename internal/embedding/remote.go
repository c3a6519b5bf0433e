package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"secondbrain/internal/domain"
)

// RemoteClient talks to an OpenAI-compatible embeddings endpoint. Both the
// OpenAI response shape and the Ollama-native shape are accepted, so a
// local Ollama deployment works unchanged.
type RemoteClient struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
}

// RemoteConfig configures the remote embeddings client. Dimension pins the
// expected vector size; a response of a different length is rejected so the
// index never mixes dimensions.
type RemoteConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

func NewRemoteClient(cfg RemoteConfig) (*RemoteClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("remote embedder requires a configured dimension")
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &RemoteClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: t},
	}, nil
}

func (c *RemoteClient) Name() string { return "remote" }

func (c *RemoteClient) Dimension() int { return c.dimension }

func (c *RemoteClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrEmbedding)
	}
	vecs, err := c.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *RemoteClient) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: empty text at %d", domain.ErrEmbedding, i)
		}
	}
	return c.request(ctx, texts)
}

func (c *RemoteClient) request(ctx context.Context, inputs []string) ([][]float64, error) {
	body, _ := json.Marshal(map[string]any{
		"input": inputs,
		"model": c.model,
	})

	var payload []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrTimeout, err))
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("embeddings endpoint: %s", resp.Status)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("%w: embeddings endpoint: %s", domain.ErrEmbedding, resp.Status))
		}
		payload, err = io.ReadAll(resp.Body)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return c.parse(payload, len(inputs))
}

func (c *RemoteClient) parse(payload []byte, want int) ([][]float64, error) {
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) == want {
		out := make([][]float64, want)
		for _, d := range openaiOut.Data {
			if d.Index < 0 || d.Index >= want {
				return nil, fmt.Errorf("%w: embedding index %d out of range", domain.ErrEmbedding, d.Index)
			}
			out[d.Index] = d.Embedding
		}
		return c.check(out)
	}
	// Ollama-native shape, single input only
	var ollamaOut struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && want == 1 && len(ollamaOut.Embedding) > 0 {
		return c.check([][]float64{ollamaOut.Embedding})
	}
	return nil, fmt.Errorf("%w: no embedding in response", domain.ErrEmbedding)
}

func (c *RemoteClient) check(vecs [][]float64) ([][]float64, error) {
	for i, v := range vecs {
		if len(v) != c.dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", domain.ErrEmbedding, i, len(v), c.dimension)
		}
	}
	return vecs, nil
}
