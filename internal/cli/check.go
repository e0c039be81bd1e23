package cli

import (
	"github.com/spf13/cobra"
)

// newCheckCmd creates the check command, which explains whether one
// document satisfies a combined specification.
func newCheckCmd(a *app) *cobra.Command {
	var (
		where []string
		anyOf bool
	)

	cmd := &cobra.Command{
		Use:   "check <id>",
		Short: "Explain whether a document satisfies conditions",
		Long: `Evaluate the --where conditions against one document and list every
condition it does not meet. With --any the document passes when one condition
holds, but every failing condition is still listed.`,
		Example: `  specrepo check 01HZX3A6QJ8V6T5R4N2M1K0P9Y --where "data.age>=18" --where "data.active=true"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(where) == 0 {
				return ErrNoConditions
			}
			s, err := buildSpecification(where, anyOf)
			if err != nil {
				return err
			}
			doc, err := loadDocument(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			satisfied, unmet := evaluate(s, doc)
			return renderCheck(cmd.OutOrStdout(), doc.ID, satisfied, unmet)
		},
	}

	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "condition to check (repeatable)")
	cmd.Flags().BoolVar(&anyOf, "any", false, "pass when any condition holds")
	return cmd
}
