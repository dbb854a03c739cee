package normalize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	KindMarkdown = "markdown"
	KindText     = "text"
)

// Normalizer turns post HTML into text suitable for chunking and embedding.
type Normalizer interface {
	Normalize(ctx context.Context, content string) (string, error)
	Name() string
}

// New resolves the normalizer once. Markdown conversion always falls back to
// plain text extraction when it fails.
func New(kind string) (Normalizer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMarkdown:
		return WithFallback(NewMarkdown(), PlainText{}), nil
	case KindText:
		return PlainText{}, nil
	default:
		return nil, fmt.Errorf("unsupported normalizer: %s", kind)
	}
}

type markdownNormalizer struct {
	conv *md.Converter
}

func NewMarkdown() Normalizer {
	return &markdownNormalizer{conv: md.NewConverter("", true, nil)}
}

func (n *markdownNormalizer) Name() string {
	return KindMarkdown
}

func (n *markdownNormalizer) Normalize(ctx context.Context, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := n.conv.ConvertString(content)
	if err != nil {
		return "", fmt.Errorf("convert html to markdown: %w", err)
	}
	return strings.TrimSpace(out), nil
}

type fallbackNormalizer struct {
	primary  Normalizer
	fallback Normalizer
}

func WithFallback(primary, fallback Normalizer) Normalizer {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &fallbackNormalizer{primary: primary, fallback: fallback}
}

func (n *fallbackNormalizer) Name() string {
	return n.primary.Name() + "|" + n.fallback.Name()
}

func (n *fallbackNormalizer) Normalize(ctx context.Context, content string) (string, error) {
	out, err := n.primary.Normalize(ctx, content)
	if err == nil {
		return out, nil
	}
	logutil.GetLogger(ctx).Warn("normalizer failed, using fallback",
		zap.String("normalizer", n.primary.Name()),
		zap.Error(err),
	)
	return n.fallback.Normalize(ctx, content)
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "table": true, "blockquote": true, "pre": true, "section": true, "article": true,
}

var manyNewlines = regexp.MustCompile(`\n{3,}`)

// PlainText extracts visible text, keeping block boundaries as line breaks.
type PlainText struct{}

func (PlainText) Name() string {
	return KindText
}

func (PlainText) Normalize(ctx context.Context, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(content))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			out := manyNewlines.ReplaceAllString(sb.String(), "\n\n")
			return strings.TrimSpace(out), nil
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				skip++
			}
			if blockTags[tag] {
				sb.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if blockTags[tag] {
				sb.WriteString("\n")
			}
		}
	}
}
