package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	expertiseTopK int
	expertiseJSON bool
)

var expertiseCmd = &cobra.Command{
	Use:   "expertise",
	Short: "Index the expertise folder",
	Long: `Mirror the configured expertise folder into domains.

Every subdirectory becomes a domain named after it and every matching file
below it becomes a document. Set the folder with:

  sercha-rag config set expertise.dir ~/expertise`,
}

var expertiseSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the expertise folder once",
	Args:  cobra.NoArgs,
	RunE:  runExpertiseSync,
}

var expertiseWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the expertise folder in sync until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runExpertiseWatch,
}

var expertiseSearchCmd = &cobra.Command{
	Use:   "search [domain] [query]",
	Short: "Search one expertise domain",
	Args:  cobra.ExactArgs(2),
	RunE:  runExpertiseSearch,
}

func init() {
	expertiseSearchCmd.Flags().IntVarP(&expertiseTopK, "top-k", "n", domain.DefaultTopK, "maximum number of passages")
	expertiseSearchCmd.Flags().BoolVar(&expertiseJSON, "json", false, "output results as JSON")
	expertiseCmd.AddCommand(expertiseSyncCmd)
	expertiseCmd.AddCommand(expertiseWatchCmd)
	expertiseCmd.AddCommand(expertiseSearchCmd)
	rootCmd.AddCommand(expertiseCmd)
}

func runExpertiseSync(cmd *cobra.Command, _ []string) error {
	if expertiseService == nil {
		return errors.New("expertise service not configured")
	}

	report, err := expertiseService.Sync(cmd.Context())
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	printSyncReport(cmd, report)
	return nil
}

func runExpertiseWatch(cmd *cobra.Command, _ []string) error {
	if expertiseService == nil {
		return errors.New("expertise service not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Println("Watching expertise folder (Ctrl+C to stop)")
	return expertiseService.Watch(ctx, func(report *domain.SyncReport) {
		printSyncReport(cmd, report)
	})
}

func runExpertiseSearch(cmd *cobra.Command, args []string) error {
	if expertiseService == nil {
		return errors.New("expertise service not configured")
	}

	results, err := expertiseService.Search(context.Background(), args[0], args[1], expertiseTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if expertiseJSON {
		return printJSON(cmd, toSearchJSON(results))
	}
	outputSearchResults(cmd, results)
	return nil
}

func printSyncReport(cmd *cobra.Command, report *domain.SyncReport) {
	st := newStyles(cmd.OutOrStdout())
	cmd.Printf("Synced %d domain(s): %d indexed, %d removed, %d unchanged\n",
		len(report.Domains), report.Indexed, report.Removed, report.Unchanged)
	for _, f := range report.Failures {
		cmd.Println(st.Warn(fmt.Sprintf("  failed: %s: %v", f.Path, f.Err)))
	}
}
