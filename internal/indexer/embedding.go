package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// Embedder computes a fixed-dimension embedding vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. Calls are
// rate limited so a large page cannot flood the backend.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAIEmbedder builds an embedder from the embedding.* config keys.
func NewOpenAIEmbedder() *OpenAIEmbedder {
	baseURL := viper.GetString("embedding.api_url")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := viper.GetString("embedding.model")
	if model == "" {
		model = "text-embedding-ada-002"
	}
	dims := viper.GetInt("embedding.dimensions")
	if dims <= 0 {
		dims = 1536
	}
	return &OpenAIEmbedder{
		baseURL: baseURL,
		apiKey:  viper.GetString("embedding.api_key"),
		model:   model,
		dims:    dims,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(embeddingRequest{
		Model: e.model,
		Input: strings.ReplaceAll(text, "\n", " "),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/embeddings", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	vec := out.Data[0].Embedding
	if len(vec) != e.dims {
		return nil, fmt.Errorf("embed: got %d dimensions, want %d", len(vec), e.dims)
	}
	return vec, nil
}
