package rag

import (
	"regexp"
	"strconv"
)

var citationRegex = regexp.MustCompile(`\[FILE:\s*(.+?),\s*LINES:\s*(\d+)-(\d+)\]`)

// Citation is one source reference extracted from a model answer.
// MatchedBy carries the queries that retrieved the cited chunk.
type Citation struct {
	FilePath  string   `json:"file_path"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	ChunkID   string   `json:"chunk_id,omitempty"`
	MatchedBy []string `json:"matched_by,omitempty"`
}

type citationKey struct {
	filePath  string
	startLine int
	endLine   int
}

// extractCitations parses citation tags out of an answer, unique and in
// order of first appearance.
func extractCitations(answer string) []Citation {
	seen := make(map[citationKey]bool)
	var out []Citation
	for _, m := range citationRegex.FindAllStringSubmatch(answer, -1) {
		start, _ := strconv.Atoi(m[2])
		end, _ := strconv.Atoi(m[3])
		key := citationKey{filePath: m[1], startLine: start, endLine: end}
		if !seen[key] {
			seen[key] = true
			out = append(out, Citation{FilePath: m[1], StartLine: start, EndLine: end})
		}
	}
	return out
}

// resolveCitations matches extracted citations against the context the
// model was shown. A citation resolves when its file matches a context
// chunk and the line ranges overlap; it then carries that chunk's ID
// and the queries that retrieved it. Citations that resolve to nothing
// are dropped rather than presented as sources, since the model
// invented them.
func resolveCitations(citations []Citation, contextChunks []ContextChunk) []Citation {
	var out []Citation
	for _, c := range citations {
		for _, cc := range contextChunks {
			md := cc.Chunk.Metadata
			if md.FilePath != c.FilePath {
				continue
			}
			if c.StartLine > md.EndLine || c.EndLine < md.StartLine {
				continue
			}
			c.ChunkID = cc.Chunk.ID
			c.MatchedBy = cc.MatchedBy
			out = append(out, c)
			break
		}
	}
	return out
}
