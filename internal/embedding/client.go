// Package embedding resolves text to dense vectors through an
// OpenAI-compatible embedding service, with a shared TTL cache in front.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docscope/backend/internal/config"
)

// serviceTimeout bounds a single embedding call, independent of the request
// deadline.
const serviceTimeout = 10 * time.Second

// retry schedule for ingestion-side calls.
const (
	maxRetries    = 4
	retryBaseWait = 500 * time.Millisecond
)

// The service contract delivers L2-normalized vectors; anything further off
// than this is a misconfigured model, not rounding error.
const normTolerance = 1e-4

type Client struct {
	api    *openai.Client
	model  string
	dim    int
	cache  *Cache
	logger *slog.Logger
}

func NewClient(cfg config.EmbeddingConfig, logger *slog.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.ServiceURL
	apiCfg.HTTPClient = &http.Client{Timeout: serviceTimeout}
	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		model:  cfg.Model,
		dim:    cfg.Dim,
		cache:  NewCache(cfg.CacheTTL),
		logger: logger,
	}
}

// Dim is the configured vector dimensionality.
func (c *Client) Dim() int { return c.dim }

// Embed resolves one text, consulting the cache first. A hit bypasses the
// HTTP call entirely.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vecs, err := c.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, vecs[0])
	return vecs[0], nil
}

// EmbedBatch resolves several texts in one call, used by ingestion. Results
// are cached individually.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := c.call(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, t := range texts {
		c.cache.Put(Key(t), vecs[i])
	}
	return vecs, nil
}

// EmbedWithRetry retries transient failures with exponential backoff. The
// ingestion pipeline inserts a null embedding when this gives up.
func (c *Client) EmbedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	wait := retryBaseWait
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
		vec, err := c.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		c.logger.Warn("embedding call failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", maxRetries+1, lastErr)
}

func (c *Client) call(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding service: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding service returned out-of-range index %d", d.Index)
		}
		if len(d.Embedding) != c.dim {
			return nil, fmt.Errorf("embedding dimension mismatch: expected %d got %d", c.dim, len(d.Embedding))
		}
		if err := checkNorm(d.Embedding); err != nil {
			return nil, err
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func checkNorm(vec []float32) error {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if math.Abs(norm-1) > normTolerance {
		return fmt.Errorf("embedding is not unit-normalized (|v| = %.6f)", norm)
	}
	return nil
}
