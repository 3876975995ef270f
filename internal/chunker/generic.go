package chunker

import "repoquery/internal/walker"

// GenericExtractor handles languages without a registered strategy. It
// emits a single file-spanning block; the assembler's size splitting
// keeps the resulting chunks manageable.
type GenericExtractor struct{}

func (e *GenericExtractor) Extract(file walker.SourceFile) ([]Boundary, error) {
	return []Boundary{{
		StartLine: 1,
		EndLine:   len(splitLines(file.Text)),
		Kind:      KindBlock,
	}}, nil
}
