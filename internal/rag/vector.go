package rag

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
)

// StoredVector is one persisted corpus snippet with its embedding. The
// repository layer maps it to/from the knowledge_vectors table; this package
// stays free of GORM.
type StoredVector struct {
	DocOrder  int
	Content   string
	Metadata  map[string]string
	Embedding []float32
	Model     string
}

// VectorStore abstracts the persisted vector index.
type VectorStore interface {
	// Load returns all stored vectors in corpus order.
	Load(ctx context.Context) ([]StoredVector, error)
	// Replace swaps the whole stored corpus atomically.
	Replace(ctx context.Context, vectors []StoredVector) error
}

// vectorRetriever answers queries by embedding them and ranking persisted
// snippet vectors by cosine similarity. The snippet set is immutable after
// construction; re-indexing builds a fresh retriever and swaps it in.
type vectorRetriever struct {
	embedder Embedder
	docs     []StoredVector

	// norms are precomputed document magnitudes, aligned with docs.
	norms []float64
}

// NewVector builds the semantic strategy from already-loaded vectors.
// It fails when the store is empty so the factory can demote to lexical.
func NewVector(embedder Embedder, docs []StoredVector) (Retriever, error) {
	if embedder == nil {
		return nil, errors.New("rag: vector retriever needs an embedder")
	}
	if len(docs) == 0 {
		return nil, errors.New("rag: vector store is empty")
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].DocOrder < docs[j].DocOrder })
	norms := make([]float64, len(docs))
	for i, d := range docs {
		norms[i] = magnitude(d.Embedding)
	}
	return &vectorRetriever{embedder: embedder, docs: docs, norms: norms}, nil
}

func (r *vectorRetriever) Name() string { return "vector" }

func (r *vectorRetriever) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	qv, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	qn := magnitude(qv)
	if qn == 0 {
		return nil, nil
	}

	type scored struct {
		i     int
		score float64
	}
	buf := make([]scored, 0, len(r.docs))
	for i, d := range r.docs {
		if r.norms[i] == 0 {
			continue
		}
		s := dot(qv, d.Embedding) / (qn * r.norms[i])
		if s > 0 {
			buf = append(buf, scored{i: i, score: s})
		}
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		return r.docs[buf[a].i].DocOrder < r.docs[buf[b].i].DocOrder
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Snippet, 0, k)
	for _, s := range buf[:k] {
		d := r.docs[s.i]
		out = append(out, Snippet{Content: d.Content, Score: s.score, Metadata: d.Metadata})
	}
	return out, nil
}

// BuildVectorCorpus embeds every snippet and persists the result through the
// store, replacing whatever was there. It returns the stored vectors so the
// caller can construct a retriever without a second Load round-trip.
func BuildVectorCorpus(ctx context.Context, embedder Embedder, store VectorStore, snippets []string, model string) ([]StoredVector, error) {
	if len(snippets) == 0 {
		return nil, errors.New("rag: empty corpus")
	}
	vecs, err := embedder.EmbedDocuments(ctx, snippets)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(snippets) {
		return nil, errors.New("rag: embedding count mismatch")
	}
	stored := make([]StoredVector, len(snippets))
	for i, s := range snippets {
		stored[i] = StoredVector{
			DocOrder:  i,
			Content:   s,
			Metadata:  map[string]string{"source": "vector"},
			Embedding: vecs[i],
			Model:     model,
		}
	}
	if store != nil {
		if err := store.Replace(ctx, stored); err != nil {
			return nil, err
		}
	}
	return stored, nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// memoryVectorStore keeps vectors in memory. It backs tests and deployments
// without a database-persisted index.
type memoryVectorStore struct {
	mu   sync.RWMutex
	docs []StoredVector
}

// NewMemoryVectorStore returns an in-memory VectorStore.
func NewMemoryVectorStore() VectorStore { return &memoryVectorStore{} }

func (m *memoryVectorStore) Load(context.Context) ([]StoredVector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoredVector, len(m.docs))
	copy(out, m.docs)
	return out, nil
}

func (m *memoryVectorStore) Replace(_ context.Context, vectors []StoredVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make([]StoredVector, len(vectors))
	copy(m.docs, vectors)
	return nil
}
