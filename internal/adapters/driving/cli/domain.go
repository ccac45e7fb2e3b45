package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

var (
	domainTemporary   bool
	domainDescription string
	domainJSON        bool
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage retrieval domains",
	Long: `A domain is a named collection of documents searched together.
Domains are referenced by key or by numeric id.`,
}

var domainAddCmd = &cobra.Command{
	Use:   "add [key]",
	Short: "Create a domain",
	Long: `Create a domain, or report the existing one when the key is taken.

Temporary domains are removed the next time sercha-rag starts.`,
	Args: cobra.ExactArgs(1),
	RunE: runDomainAdd,
}

var domainScratchCmd = &cobra.Command{
	Use:   "scratch [query]",
	Short: "Create a temporary domain for a query",
	Long: `Create a temporary domain whose key is derived from the query, so the
same query always maps to the same scratch domain until the next start-up.`,
	Args: cobra.ExactArgs(1),
	RunE: runDomainScratch,
}

var domainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains",
	Args:  cobra.NoArgs,
	RunE:  runDomainList,
}

var domainRemoveCmd = &cobra.Command{
	Use:   "remove [domain]",
	Short: "Remove a domain and all of its documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runDomainRemove,
}

func init() {
	domainAddCmd.Flags().BoolVar(&domainTemporary, "temporary", false, "purge the domain on next start-up")
	domainAddCmd.Flags().StringVarP(&domainDescription, "description", "d", "", "free-form description")
	domainListCmd.Flags().BoolVar(&domainJSON, "json", false, "output domains as JSON")
	domainCmd.AddCommand(domainAddCmd)
	domainCmd.AddCommand(domainScratchCmd)
	domainCmd.AddCommand(domainListCmd)
	domainCmd.AddCommand(domainRemoveCmd)
	rootCmd.AddCommand(domainCmd)
}

func runDomainAdd(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	d, err := retrievalService.AddDomain(context.Background(), args[0], domainTemporary, domainDescription)
	if err != nil {
		return fmt.Errorf("failed to add domain: %w", err)
	}
	cmd.Printf("Domain %s (id %d)\n", d.Key, d.ID)
	return nil
}

func runDomainScratch(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	key := services.TemporaryDomainKey(args[0])
	d, err := retrievalService.AddDomain(context.Background(), key, true, args[0])
	if err != nil {
		return fmt.Errorf("failed to add scratch domain: %w", err)
	}
	cmd.Printf("Domain %s (id %d)\n", d.Key, d.ID)
	return nil
}

type domainJSONOutput struct {
	ID          uint16 `json:"id"`
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
	Temporary   bool   `json:"temporary"`
	Created     string `json:"created"`
}

func runDomainList(cmd *cobra.Command, _ []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	domains, err := retrievalService.ListDomains(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}

	if domainJSON {
		out := make([]domainJSONOutput, len(domains))
		for i, d := range domains {
			out[i] = domainJSONOutput{
				ID:          d.ID,
				Key:         d.Key,
				Description: d.Meta,
				Temporary:   d.Temporary,
				Created:     d.Created.UTC().Format(timeLayout),
			}
		}
		return printJSON(cmd, out)
	}

	if len(domains) == 0 {
		cmd.Println("No domains.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	for _, d := range domains {
		line := fmt.Sprintf("  [%d] %s", d.ID, st.Key(d.Key))
		if d.Temporary {
			line += " " + st.Muted("(temporary)")
		}
		if d.Meta != "" {
			line += " - " + d.Meta
		}
		cmd.Println(line)
	}
	return nil
}

func runDomainRemove(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	removed, err := retrievalService.RemoveDomain(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to remove domain: %w", err)
	}
	if !removed {
		return fmt.Errorf("domain %q: %w", args[0], domain.ErrNotFound)
	}
	cmd.Printf("Removed domain %s\n", args[0])
	return nil
}
