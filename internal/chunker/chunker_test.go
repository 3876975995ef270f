package chunker

import (
	"strings"
	"testing"

	"repoquery/internal/walker"
)

// checkCoverage asserts the boundary set covers lines 1..total exactly
// once, in order.
func checkCoverage(t *testing.T, bounds []Boundary, total int) {
	t.Helper()
	next := 1
	for _, b := range bounds {
		if b.StartLine != next {
			t.Fatalf("boundary starts at %d, want %d (gap or overlap): %+v", b.StartLine, next, bounds)
		}
		if b.EndLine < b.StartLine {
			t.Fatalf("inverted boundary: %+v", b)
		}
		next = b.EndLine + 1
	}
	if next != total+1 {
		t.Fatalf("boundaries end at %d, want %d", next-1, total)
	}
}

func TestLayout_GapsBecomeBlocks(t *testing.T) {
	defs := []definition{
		{startLine: 1, endLine: 15, kind: KindFunction, name: "parse", depth: 0},
		{startLine: 18, endLine: 40, kind: KindFunction, name: "render", depth: 0},
	}

	bounds := layout(defs, 40)
	checkCoverage(t, bounds, 40)

	if len(bounds) != 3 {
		t.Fatalf("expected 3 boundaries, got %d: %+v", len(bounds), bounds)
	}
	if bounds[0].Kind != KindFunction || bounds[0].QualifiedName != "parse" {
		t.Errorf("first boundary: %+v", bounds[0])
	}
	if bounds[1].Kind != KindBlock || bounds[1].StartLine != 16 || bounds[1].EndLine != 17 {
		t.Errorf("gap boundary: %+v", bounds[1])
	}
	if bounds[2].Kind != KindFunction || bounds[2].QualifiedName != "render" {
		t.Errorf("last boundary: %+v", bounds[2])
	}
}

func TestLayout_NestedDefinitionSplitsParent(t *testing.T) {
	defs := []definition{
		{startLine: 1, endLine: 20, kind: KindClass, name: "Service", depth: 0},
		{startLine: 5, endLine: 10, kind: KindMethod, name: "Service.run", depth: 1},
	}

	bounds := layout(defs, 20)
	checkCoverage(t, bounds, 20)

	if len(bounds) != 3 {
		t.Fatalf("expected 3 boundaries, got %d: %+v", len(bounds), bounds)
	}
	if bounds[0].Kind != KindClass || bounds[0].EndLine != 4 {
		t.Errorf("leading class piece: %+v", bounds[0])
	}
	if bounds[1].Kind != KindMethod || bounds[1].QualifiedName != "Service.run" {
		t.Errorf("method piece: %+v", bounds[1])
	}
	if bounds[2].Kind != KindClass || bounds[2].StartLine != 11 || bounds[2].QualifiedName != "Service" {
		t.Errorf("trailing class piece: %+v", bounds[2])
	}
}

func TestRegistry_UnknownLanguageFallsBack(t *testing.T) {
	r := NewRegistry()
	file := walker.SourceFile{
		RelPath:  "data.csv",
		Language: walker.LangUnknown,
		Text:     "a,b\n1,2\n3,4\n",
	}

	bounds, err := r.Extract(file)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	checkCoverage(t, bounds, 3)
	if len(bounds) != 1 || bounds[0].Kind != KindBlock {
		t.Errorf("expected single block boundary, got %+v", bounds)
	}
}

func TestTreeSitter_GoDefinitions(t *testing.T) {
	src := `package demo

import "fmt"

// Server handles requests.
type Server struct {
	addr string
}

// Start begins serving.
func (s *Server) Start() error {
	fmt.Println(s.addr)
	return nil
}

func Hello(name string) string {
	return "hi " + name
}
`
	file := walker.SourceFile{RelPath: "demo.go", Language: walker.LangGo, Text: src}

	r := NewRegistry()
	bounds, err := r.Extract(file)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	checkCoverage(t, bounds, len(splitLines(src)))

	byName := make(map[string]Boundary)
	for _, b := range bounds {
		byName[b.QualifiedName] = b
	}

	if b, ok := byName["Server"]; !ok || b.Kind != KindStruct {
		t.Errorf("Server boundary missing or wrong kind: %+v", byName)
	}
	if b, ok := byName["Server.Start"]; !ok || b.Kind != KindMethod {
		t.Errorf("Server.Start boundary missing or wrong kind: %+v", byName)
	}
	if b, ok := byName["Hello"]; !ok || b.Kind != KindFunction {
		t.Errorf("Hello boundary missing or wrong kind: %+v", byName)
	}

	// The import block belongs to no definition.
	foundBlock := false
	for _, b := range bounds {
		if b.Kind == KindBlock {
			foundBlock = true
		}
	}
	if !foundBlock {
		t.Error("expected a block boundary for file preamble")
	}
}

func TestTreeSitter_PythonMethodQualifiedName(t *testing.T) {
	src := `class UserService:
    def create(self, name):
        return name

def standalone():
    pass
`
	file := walker.SourceFile{RelPath: "svc.py", Language: walker.LangPython, Text: src}

	r := NewRegistry()
	bounds, err := r.Extract(file)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	checkCoverage(t, bounds, len(splitLines(src)))

	var sawMethod, sawFunc bool
	for _, b := range bounds {
		if b.QualifiedName == "UserService.create" && b.Kind == KindMethod {
			sawMethod = true
		}
		if b.QualifiedName == "standalone" && b.Kind == KindFunction {
			sawFunc = true
		}
	}
	if !sawMethod {
		t.Errorf("expected UserService.create method boundary: %+v", bounds)
	}
	if !sawFunc {
		t.Errorf("expected standalone function boundary: %+v", bounds)
	}
}

func TestMarkdown_HeadingSections(t *testing.T) {
	src := `Intro text before any heading.

# Install

Run the installer.

## From source

` + "```" + `
# this is a comment inside a fence, not a heading
make build
` + "```" + `

# Usage

Call it.
`
	file := walker.SourceFile{RelPath: "README.md", Language: walker.LangMarkdown, Text: src}

	r := NewRegistry()
	bounds, err := r.Extract(file)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	checkCoverage(t, bounds, len(splitLines(src)))

	var names []string
	for _, b := range bounds {
		if b.Kind == KindHeading {
			names = append(names, b.QualifiedName)
		}
	}

	want := []string{"Install", "Install/From source", "Usage"}
	if len(names) != len(want) {
		t.Fatalf("heading sections: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("section %d: got %q, want %q", i, names[i], want[i])
		}
	}

	if bounds[0].Kind != KindBlock || bounds[0].StartLine != 1 {
		t.Errorf("expected preamble block boundary, got %+v", bounds[0])
	}
}

func TestMarkdown_HeadingInsideBlockquote(t *testing.T) {
	src := `# Top

Body.

> ## Quoted heading
> Quoted body.

Tail after the quote.
`
	file := walker.SourceFile{RelPath: "notes.md", Language: walker.LangMarkdown, Text: src}

	r := NewRegistry()
	bounds, err := r.Extract(file)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	checkCoverage(t, bounds, len(splitLines(src)))

	var names []string
	for _, b := range bounds {
		if b.Kind == KindHeading {
			names = append(names, b.QualifiedName)
		}
	}
	want := []string{"Top", "Top/Quoted heading"}
	if len(names) != len(want) {
		t.Fatalf("heading sections: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("section %d: got %q, want %q", i, names[i], want[i])
		}
	}
}

func TestAssemble_MergesSmallAdjacentBoundaries(t *testing.T) {
	lines := []string{"const a = 1", "const b = 2", "const c = 3", "const d = 4"}
	file := walker.SourceFile{
		RelPath:  "consts.go",
		Language: walker.LangGo,
		Text:     strings.Join(lines, "\n"),
	}
	bounds := []Boundary{
		{StartLine: 1, EndLine: 2, Kind: KindBlock},
		{StartLine: 3, EndLine: 4, Kind: KindBlock},
	}

	chunks := Assemble("repo1", file, bounds, 1000)
	if len(chunks) != 1 {
		t.Fatalf("expected merged single chunk, got %d", len(chunks))
	}
	if chunks[0].Metadata.StartLine != 1 || chunks[0].Metadata.EndLine != 4 {
		t.Errorf("merged span: %+v", chunks[0].Metadata)
	}
}

func TestAssemble_DoesNotMergeAcrossKinds(t *testing.T) {
	file := walker.SourceFile{
		RelPath:  "x.go",
		Language: walker.LangGo,
		Text:     "a\nb\nc\nd",
	}
	bounds := []Boundary{
		{StartLine: 1, EndLine: 2, Kind: KindBlock},
		{StartLine: 3, EndLine: 4, Kind: KindFunction, QualifiedName: "f"},
	}

	chunks := Assemble("repo1", file, bounds, 1000)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
}

func TestAssemble_SplitsOversizedBoundary(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		if i%10 == 9 {
			lines = append(lines, "")
		} else {
			lines = append(lines, strings.Repeat("x", 40))
		}
	}
	text := strings.Join(lines, "\n")
	file := walker.SourceFile{RelPath: "big.txt", Language: "text", Text: text}
	bounds := []Boundary{{StartLine: 1, EndLine: 30, Kind: KindBlock}}

	maxSize := 300
	chunks := Assemble("repo1", file, bounds, maxSize)
	if len(chunks) < 2 {
		t.Fatalf("expected oversized boundary to split, got %d chunks", len(chunks))
	}

	next := 1
	for _, c := range chunks {
		if len(c.Text) > maxSize {
			t.Errorf("chunk %s exceeds max size: %d > %d", c.ID, len(c.Text), maxSize)
		}
		if c.Metadata.StartLine != next {
			t.Errorf("chunk coverage gap at line %d", next)
		}
		next = c.Metadata.EndLine + 1
	}
	if next != 31 {
		t.Errorf("chunks end at line %d, want 30", next-1)
	}
}

func TestAssemble_SplitAfterSeamStaysUnderMax(t *testing.T) {
	// A blank-line seam followed by a long line: the lines carried past
	// the seam plus the long line overflow again, forcing a second cut.
	lines := []string{
		strings.Repeat("a", 100),
		"",
		strings.Repeat("b", 100),
		strings.Repeat("c", 240),
		strings.Repeat("d", 100),
	}
	text := strings.Join(lines, "\n")
	file := walker.SourceFile{RelPath: "seam.txt", Language: "text", Text: text}
	bounds := []Boundary{{StartLine: 1, EndLine: 5, Kind: KindBlock}}

	maxSize := 250
	chunks := Assemble("repo1", file, bounds, maxSize)

	next := 1
	for _, c := range chunks {
		if len(c.Text) > maxSize {
			t.Errorf("chunk %d-%d has %d bytes, max %d",
				c.Metadata.StartLine, c.Metadata.EndLine, len(c.Text), maxSize)
		}
		if c.Metadata.StartLine != next {
			t.Errorf("chunk coverage gap at line %d", next)
		}
		next = c.Metadata.EndLine + 1
	}
	if next != 6 {
		t.Errorf("chunks end at line %d, want 5", next-1)
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	src := "package p\n\nfunc a() {}\n\nfunc b() {}\n"
	file := walker.SourceFile{RelPath: "p.go", Language: walker.LangGo, Text: src}

	r := NewRegistry()
	bounds, err := r.Extract(file)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	first := Assemble("repo1", file, bounds, 6000)
	second := Assemble("repo1", file, bounds, 6000)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d ID changed between runs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestChunkID_DependsOnCoordinates(t *testing.T) {
	a := ChunkID("repo1", "a.go", 1, 10)
	b := ChunkID("repo1", "a.go", 1, 10)
	if a != b {
		t.Errorf("same coordinates produced different IDs: %s vs %s", a, b)
	}
	if ChunkID("repo1", "a.go", 1, 11) == a {
		t.Error("different line span produced identical ID")
	}
	if ChunkID("repo2", "a.go", 1, 10) == a {
		t.Error("different repo produced identical ID")
	}
}
