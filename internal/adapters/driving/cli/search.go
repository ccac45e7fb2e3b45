package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	searchTopK     int
	searchMinScore float64
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [domain] [query]",
	Short: "Search a domain",
	Long: `Embeds the query, collects the nearest passages from the domain's vector
partition and re-ranks them. Hits are grouped by document and shown in
document order.`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "n", domain.DefaultTopK, "maximum number of passages")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum re-rank score (0 = configured default)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	results, err := retrievalService.Search(context.Background(), args[0], args[1], domain.SearchOptions{
		TopK:     searchTopK,
		MinScore: searchMinScore,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, toSearchJSON(results))
	}
	outputSearchResults(cmd, results)
	return nil
}

type searchHitJSON struct {
	AtomID string  `json:"atom_id"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

type searchDocumentJSON struct {
	Key  string          `json:"key"`
	Hits []searchHitJSON `json:"hits"`
}

func toSearchJSON(results domain.SearchResults) []searchDocumentJSON {
	out := make([]searchDocumentJSON, 0, len(results))
	for _, key := range results.Keys() {
		doc := searchDocumentJSON{Key: key}
		for _, h := range results[key] {
			doc.Hits = append(doc.Hits, searchHitJSON{AtomID: h.AtomID.String(), Score: h.Score, Text: h.Text})
		}
		out = append(out, doc)
	}
	return out
}

func outputSearchResults(cmd *cobra.Command, results domain.SearchResults) {
	if results.Len() == 0 {
		cmd.Println("No results found.")
		return
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Heading("Results:"))
	cmd.Println()
	for i, key := range results.Keys() {
		cmd.Printf("  [%d] %s (%s)\n", i+1, st.Key(key), st.Score(results.BestScore(key)))
		for _, h := range results[key] {
			cmd.Printf("      %s %s\n", st.Muted(h.AtomID.String()), snippet(h.Text, 160))
		}
		cmd.Println()
	}
}

// snippet flattens whitespace and cuts text to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
