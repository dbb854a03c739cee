package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/postvec/internal/config"
	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
)

type fakeEmbedder struct {
	name  string
	vec   []float32
	err   error
	delay time.Duration
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.vec, f.err
}

func (f *fakeEmbedder) ModelName() string {
	return f.name
}

func TestGroupEmbedderFallsBack(t *testing.T) {
	first := &fakeEmbedder{name: "a", err: errors.New("boom")}
	second := &fakeEmbedder{name: "b", vec: []float32{1}}
	g := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: first}, {Name: "b", Embedder: second}})

	vec, err := g.Embed(context.Background(), "hello", "")
	require.NoError(t, err)
	require.Equal(t, []float32{1}, vec)
	require.Equal(t, 1, first.calls)
	require.Equal(t, "a|b", g.ModelName())
}

func TestGroupEmbedderReportsEveryProvider(t *testing.T) {
	first := errors.New("first")
	last := errors.New("last")
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "a", Embedder: &fakeEmbedder{err: first}},
		{Name: "b", Embedder: &fakeEmbedder{err: last}},
	})
	_, err := g.Embed(context.Background(), "hello", "")
	require.ErrorIs(t, err, first)
	require.ErrorIs(t, err, last)
	require.Contains(t, err.Error(), "a: first")
	require.Contains(t, err.Error(), "b: last")
	require.Nil(t, NewGroupEmbedder(nil))
}

func TestGroupEmbedderSkipsUnconfigured(t *testing.T) {
	missing := &fakeEmbedder{err: ErrUnavailable}
	ok := &fakeEmbedder{vec: []float32{3}}
	g := NewGroupEmbedder([]EmbedderEntry{{Name: "gemini", Embedder: missing}, {Name: "openai", Embedder: ok}})
	vec, err := g.Embed(context.Background(), "hello", "")
	require.NoError(t, err)
	require.Equal(t, []float32{3}, vec)

	g = NewGroupEmbedder([]EmbedderEntry{{Name: "gemini", Embedder: missing}})
	_, err = g.Embed(context.Background(), "hello", "")
	require.ErrorIs(t, err, ErrUnavailable)

	g = NewGroupEmbedder([]EmbedderEntry{{Name: "empty"}})
	_, err = g.Embed(context.Background(), "hello", "")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGeminiConfig(t *testing.T) {
	p, err := createGeminiEmbedFactory(map[string]interface{}{"api_key": " k ", "output_dimensionality": 768})
	require.NoError(t, err)
	gp := p.(*geminiEmbedProvider)
	require.Equal(t, "k", gp.apiKey)
	cfg := gp.contentConfig("RETRIEVAL_QUERY")
	require.Equal(t, "RETRIEVAL_QUERY", cfg.TaskType)
	require.Equal(t, int32(768), *cfg.OutputDimensionality)

	p, err = createGeminiEmbedFactory(map[string]interface{}{})
	require.NoError(t, err)
	require.Nil(t, p.(*geminiEmbedProvider).contentConfig(""))
	_, err = p.Embed(context.Background(), "gemini-embedding-001", "x", "")
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = createGeminiEmbedFactory(map[string]interface{}{"output_dimensionality": -1})
	require.Error(t, err)
}

func TestWithTimeout(t *testing.T) {
	slow := &fakeEmbedder{delay: time.Second, vec: []float32{1}}
	e := WithTimeout(slow, 10*time.Millisecond)
	_, err := e.Embed(context.Background(), "x", "")
	require.ErrorIs(t, err, appErr.ErrTimeout)
	require.True(t, appErr.IsTimeout(err))

	fast := &fakeEmbedder{vec: []float32{2}}
	vec, err := WithTimeout(fast, time.Second).Embed(context.Background(), "x", "")
	require.NoError(t, err)
	require.Equal(t, []float32{2}, vec)
	require.Same(t, fast, WithTimeout(fast, 0))
}

func TestProvidersWithoutKeyAreUnavailable(t *testing.T) {
	for _, name := range []string{"openai", "gemini", "openrouter"} {
		p, err := NewEmbedProvider(name, nil)
		require.NoError(t, err)
		require.Equal(t, name, p.Name())
		_, err = p.Embed(context.Background(), "model", "text", "")
		require.ErrorIs(t, err, ErrUnavailable)
		require.True(t, appErr.IsDependencyUnavailable(err))
	}
	_, err := NewEmbedProvider("cohere", nil)
	require.Error(t, err)
}

func TestBuild(t *testing.T) {
	e, err := Build(config.EmbedderConfig{
		Provider:  "openai",
		Fallbacks: []config.EmbedderConfig{{Provider: "gemini"}},
	}, "text-embedding-3-small", map[string]string{}, time.Second)
	require.NoError(t, err)
	require.Equal(t, "openai:text-embedding-3-small|gemini:text-embedding-3-small", e.ModelName())
	_, err = e.Embed(context.Background(), "x", "")
	require.True(t, appErr.IsDependencyUnavailable(err))

	_, err = Build(config.EmbedderConfig{Provider: "nope"}, "m", nil, 0)
	require.Error(t, err)
}

func TestWithAPIKey(t *testing.T) {
	out := withAPIKey("openai", nil, map[string]string{"openai": "sk"}).(map[string]interface{})
	require.Equal(t, "sk", out["api_key"])

	out = withAPIKey("openai", map[string]interface{}{"api_key": "mine"}, map[string]string{"openai": "sk"}).(map[string]interface{})
	require.Equal(t, "mine", out["api_key"])
}
