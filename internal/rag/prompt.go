package rag

import (
	"fmt"
	"strings"

	"repoquery/internal/llm"
	"repoquery/internal/session"
)

const answerSystemPrompt = `You are an AI assistant designed to answer questions about a codebase.
You will be provided with a user's question and several relevant code snippets from the repository.
Your task is to answer the question accurately and concisely, relying solely on the provided context.

Follow these rules:
1. Do NOT use your own general knowledge. If the answer is not in the provided code snippets, state that you don't have enough information.
2. Cite sources: for every piece of information you extract from the code snippets, reference the source file and line numbers in the format [FILE: <file_path>, LINES: <start_line>-<end_line>].
3. Use markdown code blocks when showing code.
4. Provide a clear, step-by-step answer if the question implies a process.
5. Directly address the user's question.`

// buildAnswerPrompt assembles the final completion messages: system
// instructions, prior conversation turns, and the user query with its
// retrieved context. When the total exceeds maxSize bytes, the oldest
// history turns are dropped first, then the lowest-ranked context
// chunks; the query itself is never cut.
func buildAnswerPrompt(query string, history []session.Turn, contextChunks []ContextChunk, maxSize int) []llm.Message {
	for {
		messages := assembleMessages(query, history, contextChunks)
		if maxSize <= 0 || messagesSize(messages) <= maxSize {
			return messages
		}
		if len(history) > 0 {
			history = history[1:]
			continue
		}
		if len(contextChunks) > 0 {
			contextChunks = contextChunks[:len(contextChunks)-1]
			continue
		}
		return messages
	}
}

func assembleMessages(query string, history []session.Turn, contextChunks []ContextChunk) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: answerSystemPrompt}}

	for _, t := range history {
		role := llm.RoleUser
		if t.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}

	var sb strings.Builder
	sb.WriteString("User query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nRelevant code context:\n")
	if len(contextChunks) == 0 {
		sb.WriteString("(no relevant code snippets were found)\n")
	}
	for _, r := range contextChunks {
		sb.WriteString(formatChunk(r))
	}
	sb.WriteString("\nBased on the provided context and your instructions, answer the user's query.")

	return append(messages, llm.Message{Role: llm.RoleUser, Content: sb.String()})
}

func formatChunk(c ContextChunk) string {
	md := c.Chunk.Metadata
	typeLine := string(md.Kind)
	if md.QualifiedName != "" {
		typeLine += " " + md.QualifiedName
	}
	return fmt.Sprintf("\n<DOC_START>\nFile: %s\nLanguage: %s\nType: %s\nLines: %d-%d\n\n%s\n<DOC_END>\n",
		md.FilePath, md.Language, typeLine, md.StartLine, md.EndLine, c.Chunk.Text)
}

func messagesSize(messages []llm.Message) int {
	size := 0
	for _, m := range messages {
		size += len(m.Content)
	}
	return size
}
