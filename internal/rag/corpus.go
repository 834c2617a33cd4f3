package rag

import (
	"regexp"
	"strings"

	"github.com/greenverse/ecombot-backend/internal/search"
)

var snippetSplitRE = regexp.MustCompile(`\n\s*\n`)

// CorpusSnippets reads and prepares the Markdown corpus at path and returns
// its blank-line-separated snippets in source order. Both retrieval
// strategies index the same snippet set.
func CorpusSnippets(path string) ([]string, error) {
	body, err := search.PrepareCorpus(path)
	if err != nil {
		return nil, err
	}
	return splitSnippets(string(body)), nil
}

// splitSnippets cuts a prepared corpus into blank-line-separated snippets,
// keeping source order.
func splitSnippets(body string) []string {
	chunks := snippetSplitRE.Split(body, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
