package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLexicalRetrieverSearch(t *testing.T) {
	idx := NewLexicalIndexFromBytes([]byte("Kimia hijau mengurangi limbah berbahaya.\n\nEkonomi atom adalah prinsip kedua.\n"))
	r := NewLexical(idx)
	got, err := r.Search(context.Background(), "kimia hijau", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one snippet")
	}
	if got[0].Content != "Kimia hijau mengurangi limbah berbahaya." {
		t.Fatalf("top = %q", got[0].Content)
	}
	if got[0].Metadata["source"] != "lexical" {
		t.Fatalf("metadata = %v", got[0].Metadata)
	}
}

func TestNewLexicalFromCorpusFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "materi.md")
	body := "Prinsip pertama adalah pencegahan limbah sejak awal proses.\n\nKatalisis membuat reaksi lebih efisien dan selektif.\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := NewLexicalFromCorpus(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Search(context.Background(), "katalisis", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
}

func TestNewLexicalFromCorpusMissingFile(t *testing.T) {
	if _, err := NewLexicalFromCorpus(filepath.Join(t.TempDir(), "nope.md")); err == nil {
		t.Fatal("expected error for missing corpus")
	}
}

func TestSplitSnippetsKeepsOrder(t *testing.T) {
	got := splitSnippets("satu\n\ndua\n\n\ntiga\n")
	want := []string{"satu", "dua", "tiga"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("snippet[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
