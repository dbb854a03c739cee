package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/postvec/internal/model"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
)

const (
	ModeLine       = "line"
	ModeStructured = "structured"
)

type Splitter interface {
	Split(ctx context.Context, docID int64, text string) ([]model.Chunk, error)
	Budget() int
}

// New selects the splitter for mode. An empty mode means line-greedy.
func New(mode string, budget int, counter TokenCounter) (Splitter, error) {
	if budget <= 0 {
		return nil, appErr.Invalid("token budget must be positive, got %d", budget)
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeLine:
		return NewLineSplitter(budget, counter), nil
	case ModeStructured:
		return NewStructuredSplitter(budget, counter), nil
	default:
		return nil, appErr.Invalid("unsupported chunk mode: %s", mode)
	}
}

type LineSplitter struct {
	budget  int
	counter TokenCounter
}

func NewLineSplitter(budget int, counter TokenCounter) *LineSplitter {
	return &LineSplitter{budget: budget, counter: counter}
}

func (s *LineSplitter) Budget() int {
	return s.budget
}

func (s *LineSplitter) Split(ctx context.Context, docID int64, text string) ([]model.Chunk, error) {
	chunks, err := Chunk(text, s.budget, s.counter)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].SourceDocumentID = docID
	}
	logutil.GetLogger(ctx).Debug("line chunking completed",
		zap.Int64("doc_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.String("tokenizer", s.counter.Name()),
	)
	return chunks, nil
}

// Chunk packs lines greedily into chunks of at most budget tokens. A line is
// never split, so a single line above the budget becomes its own chunk.
// Joining the returned texts gives back text unchanged.
func Chunk(text string, budget int, counter TokenCounter) ([]model.Chunk, error) {
	if counter == nil {
		return nil, appErr.ErrTokenizerUnavailable
	}
	if budget <= 0 {
		return nil, appErr.Invalid("token budget must be positive, got %d", budget)
	}
	var (
		chunks  []model.Chunk
		buf     strings.Builder
		bufToks int
	)
	emit := func() {
		chunks = append(chunks, model.Chunk{
			SequenceIndex: len(chunks),
			Text:          buf.String(),
			TokenCount:    bufToks,
		})
		buf.Reset()
		bufToks = 0
	}
	for _, line := range SplitLines(text) {
		t := counter.CountTokens(line)
		if buf.Len() > 0 && bufToks+t > budget {
			emit()
		}
		buf.WriteString(line)
		bufToks += t
	}
	if buf.Len() > 0 {
		emit()
	}
	return chunks, nil
}

// SplitLines splits text into lines, keeping each terminator on its line.
// "\r\n" is one terminator; a lone '\r', '\v', '\f', the file/group/record
// separators, NEL and the Unicode line and paragraph separators each end a
// line too.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i, r := range text {
		if i < start || !isLineBreak(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		if r == '\r' && end < len(text) && text[end] == '\n' {
			end++
		}
		lines = append(lines, text[start:end])
		start = end
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
		return true
	}
	return false
}

func joinChunks(chunks []model.Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

func renumber(chunks []model.Chunk, docID int64) []model.Chunk {
	for i := range chunks {
		chunks[i].SequenceIndex = i
		chunks[i].SourceDocumentID = docID
	}
	return chunks
}

func checkLossless(src string, chunks []model.Chunk) error {
	if joined := joinChunks(chunks); joined != src {
		return fmt.Errorf("chunking lost data: %d bytes in, %d bytes out", len(src), len(joined))
	}
	return nil
}
