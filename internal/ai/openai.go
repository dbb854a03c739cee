package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type openAIEmbedProvider struct {
	name   string
	apiKey string
	client *openai.Client
}

func newOpenAIEmbedProvider(name, apiKey, baseURL string, httpClient *http.Client) *openAIEmbedProvider {
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = baseURL
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return &openAIEmbedProvider{
		name:   name,
		apiKey: apiKey,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (p *openAIEmbedProvider) Name() string {
	return p.name
}

func (p *openAIEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	_ = taskType
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("%s embeddings request: %w", p.name, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%s response has no data[0].embedding", p.name)
	}
	return resp.Data[0].Embedding, nil
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return newOpenAIEmbedProvider("openai", strings.TrimSpace(cfg.APIKey), baseURL, nil), nil
}

func init() {
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
