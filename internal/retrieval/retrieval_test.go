package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitterOverlap(t *testing.T) {
	s, err := NewSplitter(12, 6)
	require.NoError(t, err)

	chunks := s.Split("alpha beta gamma delta epsilon")
	assert.Equal(t, []string{"alpha beta", "beta gamma", "gamma delta", "epsilon"}, chunks)
}

func TestSplitterKeepsChunksWithinSize(t *testing.T) {
	s, err := NewSplitter(100, 20)
	require.NoError(t, err)

	para := strings.Repeat("Revenue grew in every segment this year. ", 8)
	text := para + "\n\n" + strings.Repeat("x", 250) + "\n\nShort closing paragraph."

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100, c)
		assert.NotEmpty(t, c)
	}
	assert.Equal(t, "Short closing paragraph.", chunks[len(chunks)-1])
	assert.Nil(t, s.Split("   "))
}

func TestNewSplitterValidates(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.Error(t, err)
	_, err = NewSplitter(100, 100)
	assert.Error(t, err)
}

func TestDocumentsCarryMetadata(t *testing.T) {
	s, err := NewSplitter(12, 0)
	require.NoError(t, err)

	docs := s.Documents("AAPL-10K", "alpha beta gamma", map[string]any{"ticker": "AAPL"})
	require.Len(t, docs, 2)
	assert.Equal(t, "AAPL-10K-0", docs[0].ID)
	assert.Equal(t, "AAPL", docs[1].MetaData["ticker"])
	assert.Equal(t, 1, docs[1].MetaData["chunk"])
}

func TestLexicalRetrieverRanksByRelevance(t *testing.T) {
	r := NewLexicalRetriever(2)
	r.Add(
		&schema.Document{ID: "risk", Content: "Risk factors include supply chain disruption and currency risk."},
		&schema.Document{ID: "margin", Content: "Gross margin was 44 percent and operating margin improved."},
		&schema.Document{ID: "revenue", Content: "Total net revenue increased while services revenue grew."},
		&schema.Document{ID: "other", Content: "The board met four times."},
	)
	require.Equal(t, 4, r.Len())

	docs, err := r.Retrieve(context.Background(), "What is the company's gross margin and operating margin?")
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "margin", docs[0].ID)
	assert.Greater(t, docs[0].Score(), 0.0)

	docs, err = r.Retrieve(context.Background(), "revenue growth risk", retriever.WithTopK(1))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, []string{"revenue", "risk"}, docs[0].ID)

	docs, err = r.Retrieve(context.Background(), "dividends")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLexicalRetrieverEmpty(t *testing.T) {
	docs, err := NewLexicalRetriever(3).Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// axisEmbedder returns a fixed vector per text; unknown texts map to zero.
type axisEmbedder struct {
	vectors map[string][]float64
	short   bool
	batches [][]string
}

func (e *axisEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	e.batches = append(e.batches, texts)
	if e.short {
		return nil, nil
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, ok := e.vectors[text]
		if !ok {
			v = []float64{0, 0, 0}
		}
		out[i] = v
	}
	return out, nil
}

func TestEmbeddingRetrieverRanksByCosine(t *testing.T) {
	emb := &axisEmbedder{vectors: map[string][]float64{
		"margins":     {1, 0, 0},
		"supply":      {0, 1, 0},
		"mixed":       {1, 1, 0},
		"margin call": {2, 0, 0},
	}}
	r := NewEmbeddingRetriever(emb, 2)
	require.NoError(t, r.Add(context.Background(),
		&schema.Document{ID: "a", Content: "margins", MetaData: map[string]any{"ticker": "AAPL"}},
		&schema.Document{ID: "b", Content: "supply"},
		&schema.Document{ID: "c", Content: "mixed"},
		&schema.Document{ID: "z", Content: "blank"},
	))
	assert.Equal(t, 4, r.Len())

	docs, err := r.Retrieve(context.Background(), "margin call")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)
	assert.InDelta(t, 1.0, docs[0].Score(), 1e-9)
	assert.InDelta(t, 0.7071, docs[1].Score(), 1e-4)
	assert.Equal(t, "AAPL", docs[0].MetaData["ticker"])

	docs, err = r.Retrieve(context.Background(), "margin call", retriever.WithTopK(5), retriever.WithScoreThreshold(0.5))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Len(t, emb.batches, 3)
	assert.Len(t, emb.batches[0], 4)
}

func TestEmbeddingRetrieverBatchesAndMismatch(t *testing.T) {
	docs := make([]*schema.Document, embedBatchSize+1)
	for i := range docs {
		docs[i] = &schema.Document{Content: "chunk"}
	}
	emb := &axisEmbedder{}
	r := NewEmbeddingRetriever(emb, 3)
	require.NoError(t, r.Add(context.Background(), docs...))
	require.Len(t, emb.batches, 2)
	assert.Len(t, emb.batches[1], 1)

	short := NewEmbeddingRetriever(&axisEmbedder{short: true}, 3)
	err := short.Add(context.Background(), docs[:2]...)
	assert.True(t, errors.Is(err, ErrEmbeddingMismatch))
	assert.Zero(t, short.Len())

	out, err := NewEmbeddingRetriever(&axisEmbedder{}, 3).Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, out)
}
