package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDeleteCmd creates the delete command.
func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Short:   "Remove one document",
		Example: `  specrepo delete 01HZX3A6QJ8V6T5R4N2M1K0P9Y`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := loadDocument(ctx, a, args[0])
			if err != nil {
				return err
			}
			if err := a.repo.Remove(ctx, doc); err != nil {
				return err
			}
			if err := a.repo.SaveChanges(ctx); err != nil {
				return fmt.Errorf("deleting document %s: %w", doc.ID, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", doc.ID)
			return err
		},
	}
}
