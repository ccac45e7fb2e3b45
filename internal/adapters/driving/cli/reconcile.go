package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [domain]",
	Short: "Rebuild a domain's vector partition from the database",
	Long: `Reload every stored passage of the domain into its vector partition and
report how far the partition had drifted from the database.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	ctx := context.Background()
	d, err := retrievalService.GetDomain(ctx, args[0])
	if err != nil {
		return err
	}
	report, err := retrievalService.Reconcile(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	cmd.Printf("Domain %s: %d passages indexed (was %d)\n", d.Key, report.Indexed, report.Before)
	if report.InSync() {
		cmd.Println("Partition was in sync.")
		return nil
	}
	cmd.Printf("Restored %d missing, dropped %d stale.\n", report.Missing, report.Stale)
	return nil
}
