package search

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.md")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp corpus: %v", err)
	}
	return path
}

func TestPrepareCorpus_NoTableReturnsOriginal(t *testing.T) {
	body := "Kimia hijau mengurangi limbah.\n\nDaur ulang menghemat energi.\n"
	path := writeTemp(t, body)

	got, err := PrepareCorpus(path)
	if err != nil {
		t.Fatalf("PrepareCorpus: %v", err)
	}
	if string(got) != body {
		t.Fatalf("table-free corpus must round-trip unchanged:\n%q", got)
	}
}

func TestPrepareCorpus_FlattensTableRows(t *testing.T) {
	body := strings.Join([]string{
		"| Prinsip | Contoh |",
		"| --- | --- |",
		"| Pencegahan limbah | Mengompos sisa dapur |",
		"| Pelarut aman | Memakai air sebagai pelarut |",
		"",
		"Penjelasan tambahan di luar tabel.",
	}, "\n")
	path := writeTemp(t, body)

	got, err := PrepareCorpus(path)
	if err != nil {
		t.Fatalf("PrepareCorpus: %v", err)
	}
	out := string(got)
	if strings.Contains(out, "|") {
		t.Fatalf("pipes must be stripped:\n%s", out)
	}
	if !strings.Contains(out, "Pencegahan limbah Mengompos sisa dapur") {
		t.Fatalf("row cells must be joined into one fact:\n%s", out)
	}
	if strings.Contains(out, "---") {
		t.Fatalf("separator rows must be dropped:\n%s", out)
	}
	if !strings.Contains(out, "Penjelasan tambahan di luar tabel.") {
		t.Fatalf("non-table lines must be preserved:\n%s", out)
	}
	if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n\n") {
		t.Fatalf("output should end with a single newline:\n%q", out)
	}
}

func TestPrepareCorpus_MissingFile(t *testing.T) {
	if _, err := PrepareCorpus(filepath.Join(t.TempDir(), "absent.md")); err == nil {
		t.Fatalf("missing corpus must error")
	}
}
