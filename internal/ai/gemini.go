package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
	// OutputDimensionality truncates vectors so they fit the post table.
	// Zero keeps the model's native size.
	OutputDimensionality int `json:"output_dimensionality"`
}

type geminiEmbedProvider struct {
	apiKey string
	dims   int

	mu     sync.Mutex
	client *genai.Client
}

func (p *geminiEmbedProvider) Name() string {
	return "gemini"
}

// clientFor creates the genai client on first use and reuses it for every
// chunk of an ingest run.
func (p *geminiEmbedProvider) clientFor(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *geminiEmbedProvider) contentConfig(taskType string) *genai.EmbedContentConfig {
	if taskType == "" && p.dims <= 0 {
		return nil
	}
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	if p.dims > 0 {
		dims := int32(p.dims)
		cfg.OutputDimensionality = &dims
	}
	return cfg
}

func (p *geminiEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	client, err := p.clientFor(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.EmbedContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		p.contentConfig(taskType),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed with %s: %w", model, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini: %s returned no vector for %d chars of post text", model, len(text))
	}
	return resp.Embeddings[0].Values, nil
}

func createGeminiEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.OutputDimensionality < 0 {
		return nil, fmt.Errorf("gemini: output_dimensionality must not be negative, got %d", cfg.OutputDimensionality)
	}
	return &geminiEmbedProvider{
		apiKey: strings.TrimSpace(cfg.APIKey),
		dims:   cfg.OutputDimensionality,
	}, nil
}

func init() {
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}
