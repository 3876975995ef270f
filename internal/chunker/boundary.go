package chunker

import (
	"fmt"
	"sort"
	"strings"

	"repoquery/internal/walker"
)

// Kind classifies the syntactic unit a boundary covers.
type Kind string

const (
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindClass    Kind = "class"
	KindStruct   Kind = "struct"
	KindHeading  Kind = "heading"
	// KindBlock marks lines not owned by any definition: imports,
	// module-level statements, gaps between definitions, and whole
	// files for which no parser exists or parsing failed.
	KindBlock Kind = "block"
)

// Boundary is one syntactic unit's line span within a file. Lines are
// 1-indexed and inclusive. The boundaries for one file never overlap,
// are ordered by StartLine, and together cover every line exactly once.
type Boundary struct {
	StartLine     int
	EndLine       int
	Kind          Kind
	QualifiedName string
}

// ScopeSeparator joins enclosing scope names in a qualified name
// (e.g. "UserService.Create"). Markdown heading paths use "/" instead.
const ScopeSeparator = "."

// Extractor produces boundaries for one file. Implementations exist per
// parsing strategy; they are selected by language tag through a Registry.
type Extractor interface {
	Extract(file walker.SourceFile) ([]Boundary, error)
}

// Registry dispatches boundary extraction over per-language strategies.
// Languages without a registered strategy use the generic fallback.
type Registry struct {
	strategies map[string]Extractor
	fallback   Extractor
}

// NewRegistry returns a Registry with all built-in strategies registered:
// tree-sitter grammars for Go, Python, JavaScript, TypeScript and Rust,
// the heading strategy for Markdown, and the generic fallback for
// everything else.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[string]Extractor),
		fallback:   &GenericExtractor{},
	}
	for lang, spec := range grammars {
		r.strategies[lang] = &TreeSitterExtractor{spec: spec}
	}
	r.strategies[walker.LangMarkdown] = NewMarkdownExtractor()
	return r
}

// Register installs a strategy for a language tag, replacing any
// existing one.
func (r *Registry) Register(language string, e Extractor) {
	r.strategies[language] = e
}

// Extract returns the boundaries for the given file. The returned set
// always satisfies the coverage invariant, even when parsing fails: in
// that case the file degrades to a single file-spanning block boundary
// and the parse error is returned alongside for the ingestion report.
// Extraction never fails outright.
func (r *Registry) Extract(file walker.SourceFile) ([]Boundary, error) {
	total := len(splitLines(file.Text))

	strategy, ok := r.strategies[file.Language]
	if !ok {
		strategy = r.fallback
	}

	bounds, err := strategy.Extract(file)
	if err != nil {
		return []Boundary{{StartLine: 1, EndLine: total, Kind: KindBlock}},
			fmt.Errorf("extract %s: %w", file.RelPath, err)
	}

	return normalize(bounds, total), nil
}

// normalize sorts boundaries, clamps them to the file's line range, and
// fills every uncovered gap with a synthetic block boundary so that the
// result covers lines 1..total exactly once.
func normalize(bounds []Boundary, total int) []Boundary {
	if total < 1 {
		total = 1
	}

	var valid []Boundary
	for _, b := range bounds {
		if b.StartLine < 1 {
			b.StartLine = 1
		}
		if b.EndLine > total {
			b.EndLine = total
		}
		if b.StartLine > b.EndLine {
			continue
		}
		valid = append(valid, b)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].StartLine < valid[j].StartLine
	})

	var out []Boundary
	next := 1 // first line not yet covered
	for _, b := range valid {
		if b.EndLine < next {
			continue // fully covered by an earlier boundary
		}
		if b.StartLine < next {
			b.StartLine = next // trim overlap with the previous boundary
		}
		if b.StartLine > next {
			out = append(out, Boundary{StartLine: next, EndLine: b.StartLine - 1, Kind: KindBlock})
		}
		out = append(out, b)
		next = b.EndLine + 1
	}
	if next <= total {
		out = append(out, Boundary{StartLine: next, EndLine: total, Kind: KindBlock})
	}

	return out
}

// splitLines splits text into lines without a spurious trailing empty
// line when the text ends with a newline. An empty text still counts as
// one line so every file has a representable span.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// topScope returns the first segment of a qualified name, used to keep
// chunk merging from crossing definition scopes.
func topScope(qualifiedName string) string {
	if i := strings.IndexAny(qualifiedName, ScopeSeparator+"/"); i >= 0 {
		return qualifiedName[:i]
	}
	return qualifiedName
}
