package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"study-retrieval-engine/internal/types"
)

// OpenAIClient talks to an OpenAI-compatible /embeddings endpoint. Local
// servers such as infinity or TEI speak the same protocol, usually without
// an API key.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	client     *http.Client
	maxRetries int
}

// OpenAIConfig configures the client. APIKeyEnv names the environment
// variable holding the key; leave it empty for keyless local backends.
type OpenAIConfig struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base URL not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model not set")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension %d must be positive", cfg.Dimension)
	}

	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}

	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 5
	}

	return &OpenAIClient{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: t},
		maxRetries: retries,
	}, nil
}

func (c *OpenAIClient) Dimension() int { return c.dimension }

func (c *OpenAIClient) Embed(ctx context.Context, text string) (types.Vector, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([]types.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type reqBody struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	data, err := json.Marshal(reqBody{Input: texts, Model: c.model})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt < c.maxRetries {
				if err := sleepCtx(ctx, retryDelay(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("embeddings request failed: %s", resp.Status)
			if attempt < c.maxRetries {
				// Respect Retry-After if provided
				delay := retryDelay(attempt)
				if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
					delay = time.Duration(secs) * time.Second
				}
				if err := sleepCtx(ctx, delay); err != nil {
					return nil, err
				}
			}
			continue
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("embeddings request rejected with %s: %w", resp.Status, ErrUnavailable)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				if err := sleepCtx(ctx, retryDelay(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		return c.decode(payload, len(texts))
	}

	return nil, fmt.Errorf("embeddings request failed after %d attempts: %v: %w", c.maxRetries+1, lastErr, ErrUnavailable)
}

// decode parses an OpenAI-compatible response, reordering rows by their
// index field since backends may return them out of order.
func (c *OpenAIClient) decode(payload []byte, want int) ([]types.Vector, error) {
	var out struct {
		Data []struct {
			Index     int          `json:"index"`
			Embedding types.Vector `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("malformed embeddings response: %v: %w", err, ErrUnavailable)
	}
	if len(out.Data) != want {
		return nil, fmt.Errorf("got %d embeddings for %d inputs: %w", len(out.Data), want, ErrUnavailable)
	}

	vecs := make([]types.Vector, want)
	for _, row := range out.Data {
		if row.Index < 0 || row.Index >= want {
			return nil, fmt.Errorf("embedding index %d out of range: %w", row.Index, ErrUnavailable)
		}
		if len(row.Embedding) != c.dimension {
			return nil, fmt.Errorf("model returned %d-dimensional vector, want %d: %w", len(row.Embedding), c.dimension, ErrUnavailable)
		}
		vecs[row.Index] = row.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("no embedding for input %d: %w", i, ErrUnavailable)
		}
	}
	return vecs, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryDelay backs off exponentially from 200ms, capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

var _ Embedder = (*OpenAIClient)(nil)
