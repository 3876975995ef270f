package rag

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"repoquery/internal/llm"
	"repoquery/internal/session"
	"repoquery/internal/vectordb"
)

// noAnswerText is returned when retrieval produced nothing to ground an
// answer on. This is distinct from a store failure, which is an error.
const noAnswerText = "I could not find any relevant information in the codebase for your query."

// Options tunes the retrieval pipeline.
type Options struct {
	// TwoPass enables sub-question decomposition and fan-out retrieval.
	TwoPass bool
	// TopK is the retrieval depth for the original query.
	TopK int
	// SubQuestionTopK is the retrieval depth per sub-question.
	SubQuestionTopK int
	// MaxSubQuestions caps the fan-out.
	MaxSubQuestions int
	// ContextBudget caps the combined context text in bytes.
	ContextBudget int
	// MaxPromptSize caps the assembled prompt in bytes.
	MaxPromptSize int
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.SubQuestionTopK <= 0 {
		o.SubQuestionTopK = 3
	}
	if o.MaxSubQuestions <= 0 {
		o.MaxSubQuestions = 4
	}
	return o
}

// Answer is the outcome of one question.
type Answer struct {
	Query string `json:"query"`
	Text  string `json:"answer"`
	// Sources are the citations that resolved to context chunks.
	Sources []Citation `json:"sources"`
	// SubQuestions are the decomposition queries actually used.
	SubQuestions []string `json:"sub_questions,omitempty"`
	// RetrievalNotes records non-fatal degradations: failed
	// sub-question retrievals or a failed decomposition.
	RetrievalNotes []string `json:"retrieval_notes,omitempty"`
}

// SourceChunkIDs returns the IDs of the chunks the answer cited, for
// callers that persist citations alongside conversation turns.
func (a *Answer) SourceChunkIDs() []string {
	var ids []string
	for _, c := range a.Sources {
		ids = append(ids, c.ChunkID)
	}
	return ids
}

// Engine runs the retrieval-and-synthesis pipeline against one vector
// store and one model provider.
type Engine struct {
	store    vectordb.VectorStore
	provider llm.Provider
	opts     Options
}

func NewEngine(store vectordb.VectorStore, provider llm.Provider, opts Options) *Engine {
	return &Engine{store: store, provider: provider, opts: opts.withDefaults()}
}

// Ask answers a question about a repository. Store failures on the
// seed retrieval and synthesis failures are fatal; sub-question
// failures degrade the context and are recorded in RetrievalNotes.
func (e *Engine) Ask(ctx context.Context, repoID, query string, history []session.Turn) (*Answer, error) {
	answer := &Answer{Query: query}

	seed, err := e.store.Query(ctx, repoID, query, e.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	batches := []QueryBatch{{Query: query, Results: seed}}
	if e.opts.TwoPass {
		subBatches := e.secondPass(ctx, repoID, query, seed, answer)
		batches = append(batches, subBatches...)
	}

	contextChunks := BudgetContext(MergeResults(batches...), e.opts.ContextBudget)
	if len(contextChunks) == 0 {
		answer.Text = noAnswerText
		return answer, nil
	}

	messages := buildAnswerPrompt(query, history, contextChunks, e.opts.MaxPromptSize)
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}

	answer.Text = resp.Content
	answer.Sources = resolveCitations(extractCitations(resp.Content), contextChunks)
	return answer, nil
}

// secondPass decomposes the query and retrieves per sub-question
// concurrently. Every failure here is recoverable: the pipeline falls
// back to whatever context it has.
func (e *Engine) secondPass(ctx context.Context, repoID, query string, seed []vectordb.SearchResult, answer *Answer) []QueryBatch {
	subs, err := generateSubquestions(ctx, e.provider, query, seed, e.opts.MaxSubQuestions)
	if err != nil {
		log.Printf("rag: sub-question generation failed, using single-pass context: %v", err)
		answer.RetrievalNotes = append(answer.RetrievalNotes,
			fmt.Sprintf("sub-question generation failed: %v", err))
		return nil
	}
	if len(subs) == 0 {
		return nil
	}
	answer.SubQuestions = subs

	batches := make([]QueryBatch, len(subs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(subs))
	for i, sub := range subs {
		i, sub := i, sub
		batches[i].Query = sub
		g.Go(func() error {
			results, err := e.store.Query(gctx, repoID, sub, e.opts.SubQuestionTopK)
			if err != nil {
				mu.Lock()
				answer.RetrievalNotes = append(answer.RetrievalNotes,
					fmt.Sprintf("retrieval failed for sub-question %q: %v", sub, err))
				mu.Unlock()
				return nil // partial failure, keep the other batches
			}
			batches[i].Results = results
			return nil
		})
	}
	g.Wait()

	return batches
}
