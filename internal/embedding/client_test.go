package embedding

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscope/backend/internal/config"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingDatum struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Object string           `json:"object"`
	Data   []embeddingDatum `json:"data"`
	Model  string           `json:"model"`
}

// unitVector builds a deterministic L2-normalized vector whose direction
// encodes n, so tests can tell inputs apart.
func unitVector(dim int, n float64) []float32 {
	norm := math.Sqrt(n*n + 1)
	vec := make([]float32, dim)
	vec[0] = float32(n / norm)
	vec[1] = float32(1 / norm)
	return vec
}

// fakeService is an OpenAI-compatible embeddings endpoint that counts calls
// and returns a deterministic vector per input.
func fakeService(t *testing.T, calls *atomic.Int64, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embeddingResponse{Object: "list", Model: req.Model}
		for i, text := range req.Input {
			resp.Data = append(resp.Data, embeddingDatum{
				Object: "embedding", Index: i, Embedding: unitVector(dim, float64(len(text))),
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func testConfig(url string, dim int) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		ServiceURL: url + "/v1",
		APIKey:     "test-key",
		Model:      "test-model",
		Dim:        dim,
		CacheTTL:   time.Hour,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestEmbedCachesWithinTTL(t *testing.T) {
	var calls atomic.Int64
	srv := fakeService(t, &calls, 3)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, 3), discardLogger())
	ctx := context.Background()

	first, err := c.Embed(ctx, "quantum computing")
	require.NoError(t, err)
	require.Len(t, first, 3)

	// A repeat within the TTL must not reach the service, whitespace included.
	second, err := c.Embed(ctx, "  quantum computing ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load())

	_, err = c.Embed(ctx, "something else")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestEmbedBatchKeepsInputOrder(t *testing.T) {
	var calls atomic.Int64
	srv := fakeService(t, &calls, 2)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, 2), discardLogger())
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, unitVector(2, 1), vecs[0])
	assert.Equal(t, unitVector(2, 3), vecs[1])
	assert.Equal(t, int64(1), calls.Load())

	// Batch results feed the single-text cache.
	_, err = c.Embed(context.Background(), "bbb")
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestEmbedDimensionMismatch(t *testing.T) {
	var calls atomic.Int64
	srv := fakeService(t, &calls, 5)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, 3), discardLogger())
	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestEmbedWithRetryRecovers(t *testing.T) {
	var calls atomic.Int64
	var failures atomic.Int64
	failures.Store(1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failures.Add(-1) >= 0 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(embeddingResponse{
			Data: []embeddingDatum{{Index: 0, Embedding: []float32{0.6, 0.8}}},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, 2), discardLogger())
	vec, err := c.EmbedWithRetry(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, vec)
	assert.Equal(t, int64(2), calls.Load())
}

func TestEmbedRejectsUnnormalizedVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{
			Data: []embeddingDatum{{Index: 0, Embedding: []float32{3, 4}}},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, 2), discardLogger())
	_, err := c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit-normalized")
}

func TestEmbedWithRetryHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, 2), discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.EmbedWithRetry(ctx, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
