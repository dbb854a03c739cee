package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	out, err := PlainText{}.Normalize(context.Background(),
		`<h1>Title</h1><p>Hello &amp; <b>world</b></p><script>alert(1)</script><p>Bye</p>`)
	require.NoError(t, err)
	require.Equal(t, "Title\n\nHello & world\n\nBye", out)
}

func TestMarkdown(t *testing.T) {
	n, err := New("")
	require.NoError(t, err)
	out, err := n.Normalize(context.Background(), `<h2>Heading</h2><p>Some <strong>bold</strong> text</p>`)
	require.NoError(t, err)
	require.Contains(t, out, "## Heading")
	require.Contains(t, out, "**bold**")
}

type failingNormalizer struct{}

func (failingNormalizer) Name() string { return "failing" }

func (failingNormalizer) Normalize(ctx context.Context, content string) (string, error) {
	return "", errors.New("boom")
}

func TestWithFallback(t *testing.T) {
	n := WithFallback(failingNormalizer{}, PlainText{})
	out, err := n.Normalize(context.Background(), "<p>kept</p>")
	require.NoError(t, err)
	require.Equal(t, "kept", out)
	require.Equal(t, "failing|text", n.Name())
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("docling")
	require.Error(t, err)
}
