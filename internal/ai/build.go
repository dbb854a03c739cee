package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/postvec/internal/config"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
)

// Build creates the configured embedder. Fallback providers are tried in
// order after the primary one. apiKeys fills in the api_key of providers
// whose config leaves it empty.
func Build(cfg config.EmbedderConfig, model string, apiKeys map[string]string, timeout time.Duration) (IEmbedder, error) {
	entries := make([]EmbedderEntry, 0, 1+len(cfg.Fallbacks))
	for _, item := range append([]config.EmbedderConfig{cfg}, cfg.Fallbacks...) {
		provider, err := NewEmbedProvider(item.Provider, withAPIKey(item.Provider, item.Data, apiKeys))
		if err != nil {
			return nil, err
		}
		entries = append(entries, EmbedderEntry{
			Name:     provider.Name() + ":" + model,
			Embedder: NewEmbedder(provider, model),
		})
	}
	var out IEmbedder = entries[0].Embedder
	if len(entries) > 1 {
		out = NewGroupEmbedder(entries)
	}
	return WithTimeout(out, timeout), nil
}

func withAPIKey(provider string, data interface{}, apiKeys map[string]string) interface{} {
	key := apiKeys[provider]
	m, ok := data.(map[string]interface{})
	if data != nil && !ok {
		return data
	}
	out := map[string]interface{}{}
	for k, v := range m {
		out[k] = v
	}
	if existing, _ := out["api_key"].(string); existing == "" && key != "" {
		out["api_key"] = key
	}
	return out
}

type timeoutEmbedder struct {
	next    IEmbedder
	timeout time.Duration
}

// WithTimeout bounds every Embed call. An expired deadline is reported as
// ErrTimeout.
func WithTimeout(next IEmbedder, timeout time.Duration) IEmbedder {
	if timeout <= 0 {
		return next
	}
	return &timeoutEmbedder{next: next, timeout: timeout}
}

func (e *timeoutEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	vec, err := e.next.Embed(ctx, text, taskType)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding after %s: %w", appErr.ErrTimeout, e.timeout, err)
		}
		return nil, err
	}
	return vec, nil
}

func (e *timeoutEmbedder) ModelName() string {
	return e.next.ModelName()
}
