package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "for": {},
	"from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "were": {}, "what": {},
	"which": {}, "with": {}, "how": {}, "does": {}, "do": {}, "company": {}, "company's": {},
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len(f) < 2 {
			continue
		}
		if _, ok := stopwords[f]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

type indexedDoc struct {
	doc    *schema.Document
	terms  map[string]int
	length int
}

// LexicalRetriever ranks documents with Okapi BM25. It serves filings when
// no embedder is configured or embedding a filing fails.
type LexicalRetriever struct {
	mu       sync.RWMutex
	docs     []indexedDoc
	df       map[string]int
	totalLen int
	topK     int
}

var _ retriever.Retriever = (*LexicalRetriever)(nil)

func NewLexicalRetriever(topK int) *LexicalRetriever {
	if topK <= 0 {
		topK = 5
	}
	return &LexicalRetriever{df: make(map[string]int), topK: topK}
}

// Add indexes docs.
func (r *LexicalRetriever) Add(docs ...*schema.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range docs {
		tokens := tokenize(d.Content)
		terms := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			terms[tok]++
		}
		for term := range terms {
			r.df[term]++
		}
		r.docs = append(r.docs, indexedDoc{doc: d, terms: terms, length: len(tokens)})
		r.totalLen += len(tokens)
	}
}

func (r *LexicalRetriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Retrieve returns the best matching documents, highest score first.
// Documents sharing no term with the query are never returned.
func (r *LexicalRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil && *options.TopK > 0 {
		topK = *options.TopK
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.docs) == 0 {
		return nil, nil
	}

	queryTerms := uniqueTerms(tokenize(query))
	n := float64(len(r.docs))
	avgLen := float64(r.totalLen) / n

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, d := range r.docs {
		score := 0.0
		for _, term := range queryTerms {
			tf := float64(d.terms[term])
			if tf == 0 {
				continue
			}
			df := float64(r.df[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(d.length)/avgLen))
			score += idf * norm
		}
		if score > 0 {
			hits = append(hits, scored{idx: i, score: score})
		}
	}
	if options.ScoreThreshold != nil {
		kept := hits[:0]
		for _, h := range hits {
			if h.score >= *options.ScoreThreshold {
				kept = append(kept, h)
			}
		}
		hits = kept
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]*schema.Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, scoredCopy(r.docs[h.idx].doc, h.score))
	}
	return out, nil
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
