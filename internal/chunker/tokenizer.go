package chunker

import (
	"context"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// TokenCounter is bound to one embedding model's tokenization scheme.
type TokenCounter interface {
	CountTokens(text string) int
	Name() string
}

const defaultEncoding = "cl100k_base"

var modelEncodings = map[string]string{
	"text-embedding-3-small": "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
	"text-embedding-ada-002": "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"gpt-4":                  "cl100k_base",
}

func EncodingForModel(model string) string {
	if enc, ok := modelEncodings[strings.TrimSpace(model)]; ok {
		return enc
	}
	return defaultEncoding
}

var loaderOnce sync.Once

type tiktokenCounter struct {
	name string
	enc  *tiktoken.Tiktoken
}

func (c *tiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *tiktokenCounter) Name() string {
	return c.name
}

// NewTiktokenCounter loads the BPE ranks for the model's encoding from the
// embedded offline loader.
func NewTiktokenCounter(model string) (TokenCounter, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	encoding := EncodingForModel(model)
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &tiktokenCounter{name: encoding, enc: enc}, nil
}

// NewCounter returns the tiktoken counter for model, or the heuristic
// estimator when the encoding cannot be loaded.
func NewCounter(ctx context.Context, model string) TokenCounter {
	counter, err := NewTiktokenCounter(model)
	if err == nil {
		return counter
	}
	logutil.GetLogger(ctx).Warn("tiktoken unavailable, falling back to estimator",
		zap.String("model", model),
		zap.Error(err),
	)
	return Estimator{}
}

// Estimator approximates tokens as one per word plus one per non-ASCII rune.
type Estimator struct{}

func (Estimator) Name() string {
	return "estimate"
}

func (Estimator) CountTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
