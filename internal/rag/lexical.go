package rag

import (
	"context"

	"github.com/greenverse/ecombot-backend/internal/search"
)

// lexicalRetriever adapts the in-memory keyword index to the Retriever
// contract. It is the always-available fallback strategy: construction only
// needs the corpus text, no remote model.
type lexicalRetriever struct {
	idx search.Index
}

// NewLexical wraps an existing search index.
func NewLexical(idx search.Index) Retriever {
	return &lexicalRetriever{idx: idx}
}

// NewLexicalFromCorpus builds the keyword index from the Markdown corpus at
// path, flattening tables into standalone facts first.
func NewLexicalFromCorpus(path string) (Retriever, error) {
	body, err := search.PrepareCorpus(path)
	if err != nil {
		return nil, err
	}
	idx := NewLexicalIndexFromBytes(body)
	return &lexicalRetriever{idx: idx}, nil
}

// NewLexicalIndexFromBytes builds the underlying index from prepared corpus
// bytes. Split out so re-indexing can reuse it.
func NewLexicalIndexFromBytes(body []byte) search.Index {
	return search.NewIndexFromStrings(splitSnippets(string(body)))
}

func (r *lexicalRetriever) Name() string { return "lexical" }

func (r *lexicalRetriever) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultTopK
	}
	results := r.idx.TopK(query, k)
	out := make([]Snippet, 0, len(results))
	for _, res := range results {
		out = append(out, Snippet{
			Content:  res.Snippet,
			Score:    res.Score,
			Metadata: map[string]string{"source": "lexical"},
		})
	}
	return out, nil
}
