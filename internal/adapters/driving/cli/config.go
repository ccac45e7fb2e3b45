package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write configuration keys",
	Long: `Read and write keys in the TOML configuration file.

Keys use dot notation, for example:
  embedding.provider          ollama | openai
  embedding.model             model name
  embedding.requests_per_second
  rerank.provider             cosine | tei
  rerank.min_score            0.0 - 1.0
  pipeline.processors         comma separated, e.g. sentence,merge
  expertise.dir               folder of expertise domains`,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Integers, decimals and booleans are stored as
such; values containing commas are stored as lists.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	value, ok := configStore.Get(args[0])
	if !ok {
		return fmt.Errorf("config key %q: %w", args[0], domain.ErrNotFound)
	}
	switch v := value.(type) {
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		cmd.Println(strings.Join(parts, ","))
	case []string:
		cmd.Println(strings.Join(v, ","))
	default:
		cmd.Println(fmt.Sprint(v))
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key := strings.TrimSpace(args[0])
	if key == "" {
		return fmt.Errorf("%w: empty config key", domain.ErrValidation)
	}
	if err := configStore.Set(key, parseConfigValue(key, args[1])); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	cmd.Printf("%s updated\n", key)

	if settingsService != nil {
		if err := settingsService.Validate(); err != nil {
			cmd.Printf("Warning: %v\n", err)
		}
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}
	cmd.Println(configStore.Path())
	return nil
}

// listKeys are always stored as lists, even with a single item.
var listKeys = map[string]bool{
	"pipeline.processors":  true,
	"expertise.extensions": true,
}

// parseConfigValue converts command line text into the TOML value it denotes.
func parseConfigValue(key, raw string) any {
	raw = strings.TrimSpace(raw)
	if listKeys[key] || strings.Contains(raw, ",") {
		items := []string{}
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
