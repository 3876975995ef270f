package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"repoquery/internal/llm"
	"repoquery/internal/vectordb"
)

const subquestionSystemPrompt = `You are an AI assistant tasked with breaking down a complex user query about a codebase into more specific and focused sub-questions.
You will be provided with the original user query and an initial set of relevant code snippets.
Your goal is to generate 2-5 sub-questions that, if answered, would collectively provide a comprehensive answer to the original query.
The sub-questions should be specific, actionable, and geared towards finding information within a codebase.

Follow these rules:
1. Focus on the codebase: the sub-questions should aim to extract information typically found in source code, documentation, or configuration files.
2. Use the provided initial code context to make the sub-questions specific to the actual codebase content.
3. Respond ONLY with a JSON object of the form {"subquestions": ["sub-question 1", "sub-question 2"]}. Do not include any other text.`

type subquestionPayload struct {
	Subquestions []string `json:"subquestions"`
}

// generateSubquestions asks the model to decompose the query, informed
// by the seed retrieval. The result is deduplicated and capped at max.
// An empty slice is a valid outcome; the caller degrades to single-pass.
func generateSubquestions(ctx context.Context, provider llm.Provider, query string, seed []vectordb.SearchResult, max int) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("Original user query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nInitial code context:\n")
	if len(seed) == 0 {
		sb.WriteString("(no snippets retrieved)\n")
	}
	for _, r := range seed {
		fmt.Fprintf(&sb, "--- %s lines %d-%d ---\n%s\n",
			r.Chunk.Metadata.FilePath,
			r.Chunk.Metadata.StartLine,
			r.Chunk.Metadata.EndLine,
			r.Chunk.Text)
	}

	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: subquestionSystemPrompt},
			{Role: llm.RoleUser, Content: sb.String()},
		},
		JSONMode:    true,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("generate sub-questions: %w", err)
	}

	var payload subquestionPayload
	if err := json.Unmarshal([]byte(stripJSONFences(resp.Content)), &payload); err != nil {
		return nil, fmt.Errorf("parse sub-questions: %w", err)
	}

	return dedupeQuestions(payload.Subquestions, query, max), nil
}

// dedupeQuestions drops blanks, duplicates, and restatements of the
// original query, comparing case-insensitively with collapsed
// whitespace. At most max questions survive, in their original order.
func dedupeQuestions(questions []string, original string, max int) []string {
	seen := map[string]bool{normalizeQuestion(original): true}
	var out []string
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := normalizeQuestion(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// stripJSONFences removes a markdown code fence wrapper that some
// models emit despite JSON mode.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
