package rag

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// Embedder turns text into dense vectors. The query and document task types
// differ, so both directions are exposed.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// DefaultEmbedModel is used when no embedding model is configured.
const DefaultEmbedModel = "gemini-embedding-001"

// Embedding task types understood by the Gemini API.
const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// genaiEmbedder generates embeddings through the Gemini API.
type genaiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenAIEmbedder creates a Gemini-backed embedder. It fails when the API
// key is missing; the caller treats that as a signal to demote to the lexical
// strategy.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("rag: embedding api key is required")
	}
	if model == "" {
		model = DefaultEmbedModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	return &genaiEmbedder{client: client, model: model}, nil
}

func (e *genaiEmbedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: task,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, errors.New("rag: embedding count mismatch")
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

func (e *genaiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("rag: no embedding returned")
	}
	return vecs[0], nil
}

func (e *genaiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, taskRetrievalDocument)
}
