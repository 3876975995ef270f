package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"repoquery/internal/walker"
)

// DefaultMaxChunkSize caps chunk text length in bytes when the caller
// passes no limit.
const DefaultMaxChunkSize = 6000

// Chunk is the unit of indexing and retrieval: a contiguous line span
// of one file, small enough to embed, carrying the metadata needed to
// cite it back to the source.
type Chunk struct {
	ID       string
	Text     string
	Metadata Metadata
}

// Metadata locates a chunk within its repository.
type Metadata struct {
	RepoID        string
	FilePath      string
	StartLine     int
	EndLine       int
	Language      string
	QualifiedName string
	Kind          Kind
}

// ChunkID derives a stable identifier from a chunk's coordinates.
// Re-ingesting an unchanged file reproduces the same IDs, which makes
// upserts idempotent.
func ChunkID(repoID, filePath string, startLine, endLine int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%d", repoID, filePath, startLine, endLine)))
	return hex.EncodeToString(sum[:8])
}

// Assemble converts a file's boundaries into chunks: small adjacent
// boundaries of the same kind and top-level scope are merged up to
// maxSize, oversized boundaries are split at line granularity, and each
// resulting span gets its deterministic ID. Boundaries must already
// satisfy the registry's coverage invariant; the produced chunks cover
// the same lines in the same order.
func Assemble(repoID string, file walker.SourceFile, bounds []Boundary, maxSize int) []Chunk {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}

	lines := splitLines(file.Text)
	merged := mergeBoundaries(bounds, lines, maxSize)

	var chunks []Chunk
	for _, b := range merged {
		for _, span := range splitSpan(lines, b.StartLine, b.EndLine, maxSize) {
			text := strings.Join(lines[span[0]-1:span[1]], "\n")
			chunks = append(chunks, Chunk{
				ID:   ChunkID(repoID, file.RelPath, span[0], span[1]),
				Text: text,
				Metadata: Metadata{
					RepoID:        repoID,
					FilePath:      file.RelPath,
					StartLine:     span[0],
					EndLine:       span[1],
					Language:      file.Language,
					QualifiedName: b.QualifiedName,
					Kind:          b.Kind,
				},
			})
		}
	}
	return chunks
}

// spanSize is the byte length of a line range joined with newlines.
func spanSize(lines []string, start, end int) int {
	size := 0
	for i := start - 1; i < end; i++ {
		size += len(lines[i]) + 1
	}
	if size > 0 {
		size-- // no trailing newline
	}
	return size
}

// mergeBoundaries coalesces adjacent boundaries that share a kind and a
// top-level scope as long as the combined text stays under maxSize.
// This keeps runs of short definitions (constant groups, small helpers)
// from producing one-liner chunks. The first boundary's qualified name
// survives the merge.
func mergeBoundaries(bounds []Boundary, lines []string, maxSize int) []Boundary {
	var out []Boundary
	for _, b := range bounds {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.Kind == b.Kind &&
				topScope(prev.QualifiedName) == topScope(b.QualifiedName) &&
				prev.EndLine+1 == b.StartLine &&
				spanSize(lines, prev.StartLine, b.EndLine) <= maxSize {
				prev.EndLine = b.EndLine
				if prev.QualifiedName == "" {
					prev.QualifiedName = b.QualifiedName
				}
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

// splitSpan cuts a line range into pieces no larger than maxSize,
// preferring to cut after a blank line or a closing-brace line so the
// pieces end at natural seams. A single line longer than maxSize stays
// whole; a chunk never splits mid-line.
func splitSpan(lines []string, start, end, maxSize int) [][2]int {
	if spanSize(lines, start, end) <= maxSize {
		return [][2]int{{start, end}}
	}

	var spans [][2]int
	curStart := start
	curSize := 0
	lastSeam := 0 // last natural cut line within the current piece

	for line := start; line <= end; line++ {
		lineSize := len(lines[line-1]) + 1

		// Cutting at a seam carries the lines after the seam into the
		// next piece, which together with the current line can still
		// overflow, so the check repeats until the piece fits.
		for curSize > 0 && curSize+lineSize > maxSize {
			cut := line - 1
			if lastSeam >= curStart && lastSeam < line-1 {
				cut = lastSeam
			}
			spans = append(spans, [2]int{curStart, cut})
			curStart = cut + 1
			curSize = 0
			for j := curStart; j < line; j++ {
				curSize += len(lines[j-1]) + 1
			}
			lastSeam = 0
		}

		if isSeamLine(lines[line-1]) {
			lastSeam = line
		}
		curSize += lineSize
	}

	if curStart <= end {
		spans = append(spans, [2]int{curStart, end})
	}
	return spans
}

// isSeamLine reports whether a split after this line lands on a natural
// boundary.
func isSeamLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" ||
		trimmed == "}" || trimmed == "};" ||
		trimmed == "end"
}
