package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repoquery/internal/config"
	"repoquery/internal/rag"
	"repoquery/internal/session"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a natural language question about an indexed repository",
	Long: `Retrieves the most relevant code chunks for the question and
synthesizes a cited answer. Two-pass mode decomposes the question into
sub-questions and retrieves for each before answering.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("repo", "", "repository ID to query (required)")
	queryCmd.Flags().String("mode", "", "retrieval mode: single-pass or two-pass")
	queryCmd.Flags().Int("top-k", 0, "retrieval depth (overrides config)")
	queryCmd.Flags().String("session", "", "session ID to continue a conversation")
	queryCmd.Flags().Bool("new-session", false, "start a new conversation session")
	queryCmd.Flags().Bool("json", false, "output the answer as JSON")
	queryCmd.MarkFlagRequired("repo")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := args[0]

	repoID, _ := cmd.Flags().GetString("repo")
	mode, _ := cmd.Flags().GetString("mode")
	topK, _ := cmd.Flags().GetInt("top-k")
	sessionID, _ := cmd.Flags().GetString("session")
	newSession, _ := cmd.Flags().GetBool("new-session")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := ragOptions(cfg)
	switch mode {
	case "":
	case string(config.ModeSinglePass):
		opts.TwoPass = false
	case string(config.ModeTwoPass):
		opts.TwoPass = true
	default:
		return fmt.Errorf("invalid mode %q: must be single-pass or two-pass", mode)
	}
	if topK > 0 {
		opts.TopK = topK
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	store, err := openStore(ctx, cfg, embedder)
	if err != nil {
		return err
	}
	if store.Count(repoID) == 0 {
		fmt.Printf("Repository %q is not indexed. Run `repoquery ingest` first.\n", repoID)
		return nil
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()
	sessions := session.NewStore(database)

	var history []session.Turn
	if newSession {
		sess, err := sessions.Create(ctx, repoID)
		if err != nil {
			return err
		}
		sessionID = sess.ID
	} else if sessionID != "" {
		history, err = sessions.History(ctx, sessionID, cfg.Retrieval.HistoryTurns)
		if err != nil {
			return err
		}
	}

	engine := rag.NewEngine(store, provider, opts)
	answer, err := engine.Ask(ctx, repoID, question, history)
	if err != nil {
		return err
	}

	if sessionID != "" {
		if err := sessions.AppendTurn(ctx, sessionID, session.RoleUser, question, nil); err != nil {
			return err
		}
		if err := sessions.AppendTurn(ctx, sessionID, session.RoleAssistant, answer.Text, answer.SourceChunkIDs()); err != nil {
			return err
		}
	}

	if jsonOutput {
		return printAnswerJSON(sessionID, answer)
	}
	printAnswer(sessionID, answer)
	return nil
}

func printAnswerJSON(sessionID string, answer *rag.Answer) error {
	out := struct {
		SessionID string `json:"session_id,omitempty"`
		*rag.Answer
	}{SessionID: sessionID, Answer: answer}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printAnswer(sessionID string, answer *rag.Answer) {
	fmt.Println(answer.Text)

	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, c := range answer.Sources {
			fmt.Printf("  %s:%d-%d\n", c.FilePath, c.StartLine, c.EndLine)
		}
	}
	if verbose && len(answer.SubQuestions) > 0 {
		fmt.Println("\nSub-questions:")
		for _, q := range answer.SubQuestions {
			fmt.Printf("  - %s\n", q)
		}
	}
	for _, n := range answer.RetrievalNotes {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", n)
	}
	if sessionID != "" {
		fmt.Printf("\nSession: %s\n", sessionID)
	}
}
