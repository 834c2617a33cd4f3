package rag

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// RetrieverFactory attempts to construct one retriever tier. Factories are
// tried in preference order; a failing tier demotes to the next one.
type RetrieverFactory struct {
	Name  string
	Build func(ctx context.Context) (Retriever, error)
}

// BuildRetriever walks the factory chain and returns the first retriever
// that constructs successfully, together with the retrieval status it
// implies. Every demotion is logged so a degraded deployment is visible.
// With no working tier the stub retriever is returned with StatusNotAvailable.
func BuildRetriever(ctx context.Context, factories ...RetrieverFactory) (Retriever, string) {
	for i, f := range factories {
		r, err := f.Build(ctx)
		if err != nil {
			log.Warn().Err(err).Str("tier", f.Name).Msg("retriever tier unavailable, demoting")
			continue
		}
		status := StatusActive
		if i > 0 {
			log.Info().Str("tier", f.Name).Msg("running on fallback retriever tier")
		}
		return r, status
	}
	log.Warn().Msg("no retriever tier available, answering without context")
	return NewStub(), StatusNotAvailable
}

// Answer is the outcome of one pipeline run. Text is always non-empty:
// generation failures are replaced by a class-appropriate apology.
type Answer struct {
	Text    string
	Sources []Snippet
	Status  string
	Failure FailureClass
}

// Pipeline glues retrieval and generation for a single question. The
// retriever is swappable at runtime; see Holder.
type Pipeline struct {
	answerer Answerer
	holder   *Holder
	topK     int
	history  int
}

// NewPipeline wires a pipeline. answerer may be nil, in which case every
// question gets the unknown-failure apology; that keeps the reply invariant
// intact even in a deployment with no generation credentials.
func NewPipeline(answerer Answerer, holder *Holder, topK, historyLimit int) *Pipeline {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Pipeline{answerer: answerer, holder: holder, topK: topK, history: historyLimit}
}

// Answer retrieves context for the question and generates a reply. Retrieval
// failures degrade to generation without context rather than failing the
// request; generation failures degrade to an apology. The returned Answer
// always carries text.
func (p *Pipeline) Answer(ctx context.Context, question string, history []HistoryTurn) Answer {
	retriever, status := p.holder.Get()

	var snippets []Snippet
	if status == StatusActive {
		found, err := retriever.Search(ctx, question, p.topK)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("retriever", retriever.Name()).Msg("retrieval failed, answering without context")
			status = StatusError
		case len(found) == 0:
			status = StatusNoDocs
		default:
			snippets = found
		}
	}

	if p.answerer == nil {
		return Answer{Text: Apology(FailureUnknown), Sources: snippets, Status: status, Failure: FailureUnknown}
	}

	prompt := ComposePrompt(question, snippets, history, p.history)
	text, err := p.answerer.Generate(ctx, prompt)
	if err != nil {
		class := Classify(err)
		log.Error().Err(err).Str("class", string(class)).Msg("generation failed")
		return Answer{Text: Apology(class), Sources: snippets, Status: status, Failure: class}
	}
	return Answer{Text: text, Sources: snippets, Status: status}
}

// Holder publishes the current retriever and its status for lock-free reads,
// so an in-flight request never observes a half-swapped pair.
type Holder struct {
	current atomic.Pointer[holderState]
}

type holderState struct {
	retriever Retriever
	status    string
}

// NewHolder seeds the holder. A nil retriever is replaced by the stub.
func NewHolder(r Retriever, status string) *Holder {
	if r == nil {
		r = NewStub()
		status = StatusNotAvailable
	}
	h := &Holder{}
	h.current.Store(&holderState{retriever: r, status: status})
	return h
}

// Get returns the currently published retriever and status.
func (h *Holder) Get() (Retriever, string) {
	s := h.current.Load()
	return s.retriever, s.status
}

// Swap atomically publishes a new retriever.
func (h *Holder) Swap(r Retriever, status string) {
	if r == nil {
		r = NewStub()
		status = StatusNotAvailable
	}
	h.current.Store(&holderState{retriever: r, status: status})
}

// Reload rebuilds the retriever from the factory chain in the background and
// publishes it when done. Requests keep using the previous retriever until
// the swap lands.
func (h *Holder) Reload(ctx context.Context, factories ...RetrieverFactory) {
	go func() {
		r, status := BuildRetriever(ctx, factories...)
		h.Swap(r, status)
		log.Info().Str("retriever", r.Name()).Str("status", status).Msg("retriever reloaded")
	}()
}
