package walker

import (
	"path/filepath"
	"strings"
)

// Language tags understood by the chunking registry. Everything else
// falls through to the generic splitter.
const (
	LangGo         = "go"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangRust       = "rust"
	LangMarkdown   = "markdown"
	LangUnknown    = "unknown"
)

// extensionToLanguage maps file extensions to language tags.
var extensionToLanguage = map[string]string{
	".go":  LangGo,
	".py":  LangPython,
	".pyi": LangPython,

	".ts":  LangTypeScript,
	".tsx": LangTypeScript,
	".mts": LangTypeScript,

	".js":  LangJavaScript,
	".jsx": LangJavaScript,
	".mjs": LangJavaScript,
	".cjs": LangJavaScript,

	".rs": LangRust,

	".md":       LangMarkdown,
	".markdown": LangMarkdown,

	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".proto": "protobuf",
	".lua":   "lua",
	".ex":    "elixir",
	".exs":   "elixir",
	".vue":   "vue",
	".txt":   "text",
}

// filenameToLanguage maps specific filenames to language tags.
var filenameToLanguage = map[string]string{
	"Dockerfile":          "dockerfile",
	"Makefile":            "makefile",
	"Gemfile":             "ruby",
	"Rakefile":            "ruby",
	"docker-compose.yml":  "yaml",
	"docker-compose.yaml": "yaml",
}

// DetectLanguage returns the language tag for a given filename based on
// its extension or exact filename. Returns "unknown" for unrecognized
// files.
func DetectLanguage(filename string) string {
	base := filepath.Base(filename)

	if lang, ok := filenameToLanguage[base]; ok {
		return lang
	}

	ext := strings.ToLower(filepath.Ext(base))
	if lang, ok := extensionToLanguage[ext]; ok {
		return lang
	}

	return LangUnknown
}
