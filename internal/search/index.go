// Package search provides a simple, deterministic, concurrency-safe in-memory
// lexical index over a fixed snippet corpus. It is intentionally small and
// dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Clear, documented types and functional options (Option pattern)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and ordering (ties resolved by corpus order)
//
// Scoring is keyword overlap with an exact-phrase bonus: each query token
// found in a snippet adds one point, and a snippet containing the whole
// normalized query as a substring receives a bonus large enough to dominate
// any token-overlap score. Ties keep the original document order.
package search

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Result is a ranked snippet with its lexical score.
type Result struct {
	Snippet string
	Score   float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// substringBonus dominates any realistic token-overlap count, so a snippet
// carrying the exact query phrase always outranks overlap-only matches.
const substringBonus = 1000.0

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minSnippetRunes int
	stopwords       map[string]struct{}
	maxDocs         int
}

func defaultConfig() config {
	return config{
		minSnippetRunes: 20,
		stopwords:       nil,
		maxDocs:         0,
	}
}

// WithMinSnippetRunes drops corpus snippets shorter than n runes.
func WithMinSnippetRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minSnippetRunes = n
		}
	}
}

// WithStopwords removes the given words from both snippets and queries
// before overlap scoring.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps the number of snippets kept in the index.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	text  string
	lower string
	toks  map[string]struct{}
	order int // position in the source corpus; ties keep this order
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndexFromMarkdown builds an Index by reading the Markdown at path
// and delegating to NewIndexFromReader (in-memory).
func NewIndexFromMarkdown(path string, opts ...Option) (Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return &index{cfg: defaultConfig(), docs: nil}, err
	}
	return NewIndexFromReader(bytes.NewReader(b), opts...)
}

// NewIndexFromReader builds an Index from UTF-8 text provided by r.
// The reader is fully consumed; snippets are split on blank lines.
func NewIndexFromReader(r io.Reader, opts ...Option) (Index, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	all, err := io.ReadAll(r)
	if err != nil {
		return &index{cfg: cfg, docs: nil}, err
	}
	return buildIndex(splitParas(string(all)), cfg), nil
}

// NewIndexFromStrings builds an Index directly from a slice of snippets.
// Snippet order is preserved and used for tie-breaking.
func NewIndexFromStrings(snippets []string, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return buildIndex(snippets, cfg)
}

func buildIndex(snippets []string, cfg config) *index {
	docs := make([]doc, 0, len(snippets))
	for _, raw := range snippets {
		t := strings.TrimSpace(normalizeWhitespace(raw))
		if t == "" {
			continue
		}
		if cfg.minSnippetRunes > 0 && utf8.RuneCountInString(t) < cfg.minSnippetRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{
			text:  t,
			lower: strings.ToLower(t),
			toks:  toks,
			order: len(docs),
		})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// TopK returns up to k best-matching snippets.
//
// A snippet containing the whole normalized query as a substring receives the
// dominant exact-phrase bonus; every shared token adds one point on top.
// Snippets with zero score are omitted. Ties keep corpus order.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 {
		return nil
	}
	qNorm := strings.ToLower(strings.TrimSpace(normalizeWhitespace(q)))
	if qNorm == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qToks := tokenize(qNorm, i.cfg.stopwords)

	type scored struct {
		d     *doc
		score float64
	}
	buf := make([]scored, 0, len(i.docs))
	for di := range i.docs {
		d := &i.docs[di]
		score := 0.0
		if strings.Contains(d.lower, qNorm) {
			score += substringBonus
		}
		for t := range qToks {
			if _, ok := d.toks[t]; ok {
				score++
			}
		}
		if score > 0 {
			buf = append(buf, scored{d: d, score: score})
		}
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		return buf[a].d.order < buf[b].d.order
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{Snippet: buf[n].d.text, Score: buf[n].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

var paraSplitRE = regexp.MustCompile(`\n\s*\n`)

func splitParas(raw string) []string {
	chunks := paraSplitRE.Split(raw, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
