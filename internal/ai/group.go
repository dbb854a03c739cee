package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

// fallbackEmbedder asks the configured providers in order. Providers without
// credentials are passed over quietly; real failures are logged and kept so
// that an all-failed call reports every provider.
type fallbackEmbedder struct {
	items []EmbedderEntry
}

func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	return &fallbackEmbedder{items: items}
}

func (g *fallbackEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var errs []error
	for _, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, text, taskType)
		if err == nil {
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", item.Name, err))
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, ErrUnavailable) {
			logutil.GetLogger(ctx).Debug("embedding provider not configured, trying next", zap.String("provider", item.Name))
			continue
		}
		logutil.GetLogger(ctx).Warn("embedding provider failed, trying next",
			zap.String("provider", item.Name),
			zap.Int("text_len", len(text)),
			zap.Error(err),
		)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no embedding provider configured: %w", ErrUnavailable)
	}
	return nil, errors.Join(errs...)
}

// ModelName joins the entry names so cached vectors are keyed by the whole
// provider chain.
func (g *fallbackEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name != "" {
			names = append(names, item.Name)
		}
	}
	return strings.Join(names, "|")
}
