package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// Provider turns text into an embedding. It is a black box to the engine and
// may fail or be absent at runtime.
type Provider interface {
	CreateEmbedding(ctx context.Context, text string) ([]float64, error)
}

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "nomic-embed-text"

// DefaultDMRBaseURL returns the default DMR API endpoint (Docker Desktop).
func DefaultDMRBaseURL() string {
	return "http://127.0.0.1:12434/engines/v1"
}

// DefaultOllamaBaseURL returns the default Ollama API endpoint.
func DefaultOllamaBaseURL() string {
	return "http://localhost:11434/v1"
}

// OpenAIProvider generates embeddings through any OpenAI-compatible API
// (Ollama, DMR, OpenAI itself).
type OpenAIProvider struct {
	client  *openai.Client
	baseURL string
	model   string
}

// NewOpenAIProvider creates a provider for the given base URL. apiKey may be
// empty for local runtimes.
func NewOpenAIProvider(baseURL, apiKey string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(cfg),
		baseURL: baseURL,
		model:   DefaultModel,
	}
}

// NewOllamaProvider creates a provider using Ollama (no Docker required).
func NewOllamaProvider() *OpenAIProvider {
	return NewOpenAIProvider(DefaultOllamaBaseURL(), "")
}

// SetModel changes the embedding model (default: nomic-embed-text).
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Model returns the configured model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// CreateEmbedding generates an embedding for a single text.
func (p *OpenAIProvider) CreateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, errors.New("empty text input")
	}

	embeddings, err := p.CreateBatchEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return embeddings[0], nil
}

// CreateBatchEmbedding generates embeddings for multiple texts in a single API call.
func (p *OpenAIProvider) CreateBatchEmbedding(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(p.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}

	// Sort by index to ensure correct order
	sort.Slice(resp.Data, func(i, j int) bool {
		return resp.Data[i].Index < resp.Data[j].Index
	})

	embeddings := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float64, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float64(f)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}
