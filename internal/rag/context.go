package rag

import (
	"sort"

	"repoquery/internal/vectordb"
)

// QueryBatch pairs one retrieval query with the results it produced.
type QueryBatch struct {
	Query   string
	Results []vectordb.SearchResult
}

// ContextChunk is one deduplicated entry of the assembled context.
// MatchedBy lists the queries that retrieved the chunk, in batch order,
// so citations can say which sub-question a source satisfied.
type ContextChunk struct {
	vectordb.SearchResult
	MatchedBy []string
}

// MergeResults combines retrieval batches into one ranked context. A
// chunk retrieved by several queries appears once with its best score
// and all of its matching queries recorded. Ordering is deterministic:
// score descending, then chunk ID ascending, so the same retrievals
// always yield the same context.
func MergeResults(batches ...QueryBatch) []ContextChunk {
	best := make(map[string]*ContextChunk)
	for _, batch := range batches {
		for _, r := range batch.Results {
			entry, ok := best[r.Chunk.ID]
			if !ok {
				best[r.Chunk.ID] = &ContextChunk{SearchResult: r, MatchedBy: []string{batch.Query}}
				continue
			}
			if r.Score > entry.Score {
				entry.SearchResult = r
			}
			if !containsQuery(entry.MatchedBy, batch.Query) {
				entry.MatchedBy = append(entry.MatchedBy, batch.Query)
			}
		}
	}

	merged := make([]ContextChunk, 0, len(best))
	for _, entry := range best {
		merged = append(merged, *entry)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})
	return merged
}

func containsQuery(queries []string, q string) bool {
	for _, existing := range queries {
		if existing == q {
			return true
		}
	}
	return false
}

// BudgetContext keeps ranked chunks until the combined chunk text would
// exceed budget bytes. The first chunk that does not fit ends the
// context; chunks are never truncated mid-text, so a citation always
// refers to a complete span.
func BudgetContext(chunks []ContextChunk, budget int) []ContextChunk {
	if budget <= 0 {
		return chunks
	}

	var kept []ContextChunk
	used := 0
	for _, c := range chunks {
		if used+len(c.Chunk.Text) > budget {
			break
		}
		used += len(c.Chunk.Text)
		kept = append(kept, c)
	}
	return kept
}
