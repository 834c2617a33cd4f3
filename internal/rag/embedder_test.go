package rag

import (
	"context"
	"testing"
)

func TestNewGenAIEmbedder_RequiresAPIKey(t *testing.T) {
	if _, err := NewGenAIEmbedder(context.Background(), "", "gemini-embedding-001"); err == nil {
		t.Fatal("expected error without an api key")
	}
}

func TestNewGenAIEmbedder_DefaultsModel(t *testing.T) {
	emb, err := NewGenAIEmbedder(context.Background(), "kunci-uji", "")
	if err != nil {
		t.Fatalf("NewGenAIEmbedder: %v", err)
	}
	ge, ok := emb.(*genaiEmbedder)
	if !ok {
		t.Fatalf("embedder type = %T", emb)
	}
	if ge.model != DefaultEmbedModel {
		t.Fatalf("model = %q, want %q", ge.model, DefaultEmbedModel)
	}
}

func TestGenAIEmbedder_EmptyInputSkipsAPI(t *testing.T) {
	emb, err := NewGenAIEmbedder(context.Background(), "kunci-uji", "")
	if err != nil {
		t.Fatalf("NewGenAIEmbedder: %v", err)
	}
	// No texts means no request; a nil result without error is the contract
	// BuildVectorCorpus relies on.
	vecs, err := emb.EmbedDocuments(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedDocuments(nil): %v", err)
	}
	if vecs != nil {
		t.Fatalf("vecs = %v, want nil", vecs)
	}
}
