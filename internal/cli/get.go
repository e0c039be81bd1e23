package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/specrepo/internal/document"
)

// ErrDocumentNotFound is returned when no document has the requested ID.
var ErrDocumentNotFound = errors.New("document not found")

// newGetCmd creates the get command.
func newGetCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "get <id>",
		Short:   "Show one document",
		Example: `  specrepo get 01HZX3A6QJ8V6T5R4N2M1K0P9Y -o yaml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			doc, err := loadDocument(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			return renderDocument(cmd.OutOrStdout(), output, doc)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table, json or yaml")
	return cmd
}

func loadDocument(ctx context.Context, a *app, id string) (*document.Document, error) {
	repo, err := a.repository(ctx)
	if err != nil {
		return nil, err
	}
	doc, found, err := repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return doc, nil
}
