// Package retrieval splits long documents into overlapping chunks and ranks
// them against a question.
package retrieval

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter breaks text on the coarsest separator that yields pieces no
// longer than Size, then packs the pieces into chunks that share up to
// Overlap characters with their predecessor.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{Size: size, Overlap: overlap, Separators: defaultSeparators}, nil
}

// Split returns the chunks of text in order.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.split(text, s.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep, rest := "", []string(nil)
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep, rest = candidate, separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = splitRunes(text, s.Size)
	} else {
		pieces = strings.SplitAfter(text, sep)
	}

	var chunks, pending []string
	for _, piece := range pieces {
		if len(piece) <= s.Size {
			pending = append(pending, piece)
			continue
		}
		chunks = append(chunks, s.merge(pending)...)
		pending = nil
		if len(rest) == 0 {
			chunks = append(chunks, strings.TrimSpace(piece))
			continue
		}
		chunks = append(chunks, s.split(piece, rest)...)
	}
	return append(chunks, s.merge(pending)...)
}

// merge packs pieces into chunks up to Size, carrying a tail of at most
// Overlap characters into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks, window []string
	total := 0
	for _, piece := range pieces {
		if total+len(piece) > s.Size && len(window) > 0 {
			if c := strings.TrimSpace(strings.Join(window, "")); c != "" {
				chunks = append(chunks, c)
			}
			for len(window) > 0 && (total > s.Overlap || total+len(piece) > s.Size) {
				total -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += len(piece)
	}
	if c := strings.TrimSpace(strings.Join(window, "")); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

func splitRunes(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

// Documents chunks text into eino documents carrying meta on every chunk.
func (s *Splitter) Documents(idPrefix, text string, meta map[string]any) []*schema.Document {
	chunks := s.Split(text)
	docs := make([]*schema.Document, 0, len(chunks))
	for i, c := range chunks {
		md := make(map[string]any, len(meta)+1)
		for k, v := range meta {
			md[k] = v
		}
		md["chunk"] = i
		docs = append(docs, &schema.Document{
			ID:       fmt.Sprintf("%s-%d", idPrefix, i),
			Content:  c,
			MetaData: md,
		})
	}
	return docs
}
