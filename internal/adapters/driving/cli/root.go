// Package cli implements the sercha-rag command line interface.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var verbose bool

// Services wired by main. Commands check for nil before use.
var (
	settingsService    driving.SettingsService
	retrievalService   driving.RetrievalService
	expertiseService   driving.ExpertiseService
	configStore        driven.ConfigStore
	normaliserRegistry driven.NormaliserRegistry

	// startup runs after flags are parsed and before any command.
	startup func(ctx context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "sercha-rag",
	Short: "Semantic retrieval over local documents",
	Long: `sercha-rag indexes documents into named domains and answers natural
language queries with re-ranked passages.

Documents are segmented, embedded and stored in SQLite. Each domain keeps an
in-memory vector partition that is rebuilt from the database on start-up.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if startup == nil {
			return nil
		}
		return startup(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Deps holds the services the commands run against.
type Deps struct {
	Settings    driving.SettingsService
	Retrieval   driving.RetrievalService
	Expertise   driving.ExpertiseService
	ConfigStore driven.ConfigStore
	Normalisers driven.NormaliserRegistry

	// Startup is run once flags are parsed, so it logs at the chosen verbosity.
	Startup func(ctx context.Context) error
}

// SetDeps installs the services used by all commands.
func SetDeps(d Deps) {
	settingsService = d.Settings
	retrievalService = d.Retrieval
	expertiseService = d.Expertise
	configStore = d.ConfigStore
	normaliserRegistry = d.Normalisers
	startup = d.Startup
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
