package chunker

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/model"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
)

// StructuredSplitter cuts markdown into sections at H1/H2 headings, merges
// small neighbouring sections while they fit the budget and re-chunks any
// section that is too large on its own with the line-greedy algorithm.
type StructuredSplitter struct {
	budget  int
	counter TokenCounter
	md      goldmark.Markdown
}

func NewStructuredSplitter(budget int, counter TokenCounter) *StructuredSplitter {
	return &StructuredSplitter{budget: budget, counter: counter, md: goldmark.New()}
}

func (s *StructuredSplitter) Budget() int {
	return s.budget
}

type section struct {
	text   string
	tokens int
}

func (s *StructuredSplitter) Split(ctx context.Context, docID int64, markdown string) ([]model.Chunk, error) {
	if s.counter == nil {
		return nil, appErr.ErrTokenizerUnavailable
	}
	logger := logutil.GetLogger(ctx).With(zap.Int64("doc_id", docID))
	sections := s.sections(markdown)
	logger.Debug("markdown sections detected", zap.Int("sections", len(sections)))

	var (
		chunks  []model.Chunk
		buf     strings.Builder
		bufToks int
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, model.Chunk{Text: buf.String(), TokenCount: bufToks})
		buf.Reset()
		bufToks = 0
	}
	for _, sec := range sections {
		if sec.tokens > s.budget {
			flush()
			logger.Debug("oversized section, falling back to line packing", zap.Int("tokens", sec.tokens))
			sub, err := Chunk(sec.text, s.budget, s.counter)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, sub...)
			continue
		}
		if buf.Len() > 0 && bufToks+sec.tokens > s.budget {
			flush()
		}
		buf.WriteString(sec.text)
		bufToks += sec.tokens
	}
	flush()

	if err := checkLossless(markdown, chunks); err != nil {
		logger.Warn("structured chunking mismatch, using line packing", zap.Error(err))
		return NewLineSplitter(s.budget, s.counter).Split(ctx, docID, markdown)
	}
	logger.Debug("structured chunking completed", zap.Int("chunks", len(chunks)))
	return renumber(chunks, docID), nil
}

// sections returns byte ranges of the source covering it completely, each
// starting at an H1/H2 heading line (except possibly the first).
func (s *StructuredSplitter) sections(markdown string) []section {
	if markdown == "" {
		return nil
	}
	source := []byte(markdown)
	doc := s.md.Parser().Parse(text.NewReader(source))

	cuts := []int{0}
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		heading, ok := node.(*ast.Heading)
		if !ok || heading.Level > 2 || heading.Lines().Len() == 0 {
			continue
		}
		start := lineStart(source, heading.Lines().At(0).Start)
		if start > cuts[len(cuts)-1] {
			cuts = append(cuts, start)
		}
	}
	cuts = append(cuts, len(source))

	out := make([]section, 0, len(cuts)-1)
	for i := 0; i+1 < len(cuts); i++ {
		part := markdown[cuts[i]:cuts[i+1]]
		if part == "" {
			continue
		}
		tokens := 0
		for _, line := range SplitLines(part) {
			tokens += s.counter.CountTokens(line)
		}
		out = append(out, section{text: part, tokens: tokens})
	}
	return out
}

func lineStart(source []byte, pos int) int {
	if pos > len(source) {
		pos = len(source)
	}
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}
