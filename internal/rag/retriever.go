// Package rag implements the retrieval-augmented generation pipeline behind
// the Ecombot question-answering paths. It defines the Retriever and Answerer
// contracts, the interchangeable retrieval strategies (semantic vector search
// with a lexical keyword fallback and an empty stub), the prompt composer,
// and the orchestration pipeline with its explicit ordered fallback chain.
package rag

import (
	"context"
)

// DefaultTopK bounds the number of context snippets fed to the Answerer.
const DefaultTopK = 4

// Retrieval status tags surfaced to health checks and the ask endpoint.
const (
	StatusActive       = "active"        // retrieval ran and produced snippets
	StatusNoDocs       = "no_docs"       // retrieval ran, nothing relevant
	StatusError        = "error"         // retrieval raised; answer degraded
	StatusNotAvailable = "not_available" // no retriever constructed (stub)
)

// Snippet is one retrieved context fragment.
type Snippet struct {
	Content  string
	Score    float64
	Metadata map[string]string
}

// Retriever returns the k most relevant corpus snippets for a query.
// Implementations must be safe for concurrent use; the engine never cares
// which strategy is active.
type Retriever interface {
	// Name identifies the strategy ("vector", "lexical", "stub") in logs
	// and health output.
	Name() string
	// Search returns at most k snippets ordered by decreasing relevance.
	Search(ctx context.Context, query string, k int) ([]Snippet, error)
}

// stubRetriever serves an empty corpus. It is the terminal fallback when no
// real strategy could be constructed: searches succeed with zero snippets so
// the pipeline degrades to general-knowledge answers instead of failing.
type stubRetriever struct{}

// NewStub returns the empty-corpus retriever.
func NewStub() Retriever { return stubRetriever{} }

func (stubRetriever) Name() string { return "stub" }

func (stubRetriever) Search(context.Context, string, int) ([]Snippet, error) {
	return nil, nil
}
