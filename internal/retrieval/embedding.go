package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"gonum.org/v1/gonum/floats"
)

// embedBatchSize bounds the number of chunks sent in one embedding request.
const embedBatchSize = 64

// ErrEmbeddingMismatch is returned when an embedder answers with a different
// number of vectors than texts it was given.
var ErrEmbeddingMismatch = errors.New("embedding count mismatch")

// EmbeddingRetriever ranks documents by cosine similarity between the query
// embedding and chunk embeddings computed once in Add.
type EmbeddingRetriever struct {
	embedder embedding.Embedder
	topK     int

	mu      sync.RWMutex
	docs    []*schema.Document
	vectors [][]float64
	norms   []float64
}

var _ retriever.Retriever = (*EmbeddingRetriever)(nil)

func NewEmbeddingRetriever(embedder embedding.Embedder, topK int) *EmbeddingRetriever {
	if topK <= 0 {
		topK = 5
	}
	return &EmbeddingRetriever{embedder: embedder, topK: topK}
}

// Add embeds docs in batches and indexes them. Nothing is indexed when any
// batch fails.
func (r *EmbeddingRetriever) Add(ctx context.Context, docs ...*schema.Document) error {
	vectors := make([][]float64, 0, len(docs))
	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Content)
		}
		out, err := r.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(out) != len(texts) {
			return fmt.Errorf("%w: sent %d, got %d", ErrEmbeddingMismatch, len(texts), len(out))
		}
		vectors = append(vectors, out...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range docs {
		r.docs = append(r.docs, d)
		r.vectors = append(r.vectors, vectors[i])
		r.norms = append(r.norms, floats.Norm(vectors[i], 2))
	}
	return nil
}

func (r *EmbeddingRetriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Retrieve returns the documents closest to query, highest similarity first.
func (r *EmbeddingRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}
	if r.Len() == 0 {
		return nil, nil
	}

	out, err := r.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: sent 1, got %d", ErrEmbeddingMismatch, len(out))
	}
	q := out[0]
	qNorm := floats.Norm(q, 2)

	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		idx   int
		score float64
	}
	hits := make([]scored, 0, len(r.docs))
	for i, v := range r.vectors {
		if len(v) != len(q) || r.norms[i] == 0 || qNorm == 0 {
			continue
		}
		score := floats.Dot(q, v) / (qNorm * r.norms[i])
		if options.ScoreThreshold != nil && score < *options.ScoreThreshold {
			continue
		}
		hits = append(hits, scored{idx: i, score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	docs := make([]*schema.Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, scoredCopy(r.docs[h.idx], h.score))
	}
	return docs, nil
}

func scoredCopy(src *schema.Document, score float64) *schema.Document {
	md := make(map[string]any, len(src.MetaData)+1)
	for k, v := range src.MetaData {
		md[k] = v
	}
	d := &schema.Document{ID: src.ID, Content: src.Content, MetaData: md}
	return d.WithScore(score)
}
