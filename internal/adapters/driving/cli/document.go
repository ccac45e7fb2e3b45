package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

const timeLayout = time.RFC3339

var (
	documentKey  string
	documentJSON bool
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage indexed documents",
}

var documentAddCmd = &cobra.Command{
	Use:   "add [domain] [file]",
	Short: "Index a file into a domain",
	Long: `Read, normalise, segment and embed a file, storing it under a key.

The key defaults to the file's absolute path. Adding a key that already
exists replaces its passages and keeps its document id.`,
	Args: cobra.ExactArgs(2),
	RunE: runDocumentAdd,
}

var documentListCmd = &cobra.Command{
	Use:   "list [domain]",
	Short: "List documents in a domain",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentList,
}

var documentRemoveCmd = &cobra.Command{
	Use:   "remove [domain] [key]",
	Short: "Remove a document",
	Args:  cobra.ExactArgs(2),
	RunE:  runDocumentRemove,
}

func init() {
	documentAddCmd.Flags().StringVarP(&documentKey, "key", "k", "", "document key (default: absolute file path)")
	documentListCmd.Flags().BoolVar(&documentJSON, "json", false, "output documents as JSON")
	documentCmd.AddCommand(documentAddCmd)
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentRemoveCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentAdd(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}
	if normaliserRegistry == nil {
		return errors.New("normaliser registry not configured")
	}

	ctx := context.Background()
	d, err := retrievalService.GetDomain(ctx, args[0])
	if err != nil {
		return err
	}

	path := args[1]
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result, err := normaliserRegistry.Normalise(ctx, path, content)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	key := documentKey
	if key == "" {
		if key, err = filepath.Abs(path); err != nil {
			return err
		}
	}

	doc, err := retrievalService.AddDocument(ctx, d.ID, key, result.Content, info.ModTime().Truncate(time.Second), result.Title)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	cmd.Printf("Indexed %s (domain %d, document %d)\n", doc.Key, doc.DomainID, doc.ID)
	return nil
}

type documentJSONOutput struct {
	ID          uint16 `json:"id"`
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
	Mtime       string `json:"mtime"`
}

func runDocumentList(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	ctx := context.Background()
	d, err := retrievalService.GetDomain(ctx, args[0])
	if err != nil {
		return err
	}
	docs, err := retrievalService.ListDocuments(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if documentJSON {
		out := make([]documentJSONOutput, len(docs))
		for i, doc := range docs {
			out[i] = documentJSONOutput{
				ID:          doc.ID,
				Key:         doc.Key,
				Description: doc.Meta,
				Mtime:       doc.Mtime.UTC().Format(timeLayout),
			}
		}
		return printJSON(cmd, out)
	}

	if len(docs) == 0 {
		cmd.Println("No documents.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	for _, doc := range docs {
		cmd.Printf("  [%d] %s %s\n", doc.ID, st.Key(doc.Key), st.Muted(doc.Mtime.UTC().Format(timeLayout)))
	}
	return nil
}

func runDocumentRemove(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	ctx := context.Background()
	d, err := retrievalService.GetDomain(ctx, args[0])
	if err != nil {
		return err
	}
	doc, err := retrievalService.GetDocument(ctx, d.ID, args[1])
	if err != nil {
		return err
	}
	removed, err := retrievalService.RemoveDocument(ctx, d.ID, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	if !removed {
		return fmt.Errorf("document %q: %w", args[1], domain.ErrNotFound)
	}
	cmd.Printf("Removed %s\n", doc.Key)
	return nil
}
