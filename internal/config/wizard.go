package config

import (
	"fmt"
	"path/filepath"

	"github.com/manifoldco/promptui"
)

// projectTypePatterns maps marker files to human-readable project types
// and a recommended include glob.
var projectTypePatterns = map[string]struct {
	Name    string
	Include string
}{
	"go.mod":           {Name: "Go", Include: "**/*.go"},
	"package.json":     {Name: "Node.js/TypeScript", Include: "**/*.{js,ts,jsx,tsx}"},
	"requirements.txt": {Name: "Python", Include: "**/*.py"},
	"pyproject.toml":   {Name: "Python", Include: "**/*.py"},
	"Cargo.toml":       {Name: "Rust", Include: "**/*.rs"},
}

// detectProjectType checks the current directory for well-known project markers.
func detectProjectType() (name string, include string) {
	for marker, info := range projectTypePatterns {
		matches, _ := filepath.Glob(marker)
		if len(matches) > 0 {
			return info.Name, info.Include
		}
	}
	return "", "**"
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .repoquery.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to repoquery! Let's configure your project.")
	fmt.Println()

	projType, defaultInclude := detectProjectType()
	if projType != "" {
		fmt.Printf("Detected project type: %s\n\n", projType)
	}

	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "anthropic", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)
	preset := GetPreset(provider)

	modePrompt := promptui.Select{
		Label: "Default retrieval mode",
		Items: []string{
			"two-pass    — decompose questions into sub-questions (better answers)",
			"single-pass — one retrieval per question (faster, cheaper)",
		},
	}
	modeIdx, _, err := modePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("mode selection: %w", err)
	}
	modes := []RetrievalMode{ModeTwoPass, ModeSinglePass}

	includePrompt := promptui.Prompt{
		Label:   "Include pattern",
		Default: defaultInclude,
	}
	include, err := includePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("include pattern: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Model = preset.Model
	cfg.EmbeddingModel = preset.EmbeddingModel
	if provider == ProviderOllama {
		cfg.EmbeddingProvider = ProviderOllama
	}
	cfg.Retrieval.Mode = modes[modeIdx]
	cfg.Include = []string{include}

	if key := APIKeyEnvVar(provider); key != "" {
		fmt.Printf("\nMake sure %s is set before running `repoquery ingest`.\n", key)
	}

	if err := cfg.Save(".repoquery.yml"); err != nil {
		return nil, err
	}
	fmt.Println("Configuration written to .repoquery.yml")

	return cfg, nil
}
