package chunker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMarkdown = `intro line

# First

para one
para two

## Second

short

## Third

this section has quite a few words in it so it will not merge
and another line with several more words
`

func TestStructuredSplitter_Lossless(t *testing.T) {
	for _, budget := range []int{1, 3, 8, 20, 1000} {
		chunks, err := NewStructuredSplitter(budget, Estimator{}).Split(context.Background(), 7, sampleMarkdown)
		require.NoError(t, err)
		require.Equal(t, sampleMarkdown, joinChunks(chunks), "budget %d", budget)
		for i, c := range chunks {
			require.Equal(t, i, c.SequenceIndex)
			require.Equal(t, int64(7), c.SourceDocumentID)
			if c.TokenCount > budget {
				require.Len(t, SplitLines(c.Text), 1)
			}
		}
	}
}

func TestStructuredSplitter_MergesPeers(t *testing.T) {
	chunks, err := NewStructuredSplitter(1000, Estimator{}).Split(context.Background(), 1, sampleMarkdown)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestStructuredSplitter_CutsAtHeadings(t *testing.T) {
	chunks, err := NewStructuredSplitter(12, Estimator{}).Split(context.Background(), 1, sampleMarkdown)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	require.Equal(t, "intro line\n\n# First\n\npara one\npara two\n\n", chunks[0].Text)
	require.Equal(t, "## Second\n\nshort\n\n", chunks[1].Text)
}

func TestStructuredSplitter_Empty(t *testing.T) {
	chunks, err := NewStructuredSplitter(10, Estimator{}).Split(context.Background(), 1, "")
	require.NoError(t, err)
	require.Empty(t, chunks)
}
