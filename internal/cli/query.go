package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/specrepo/internal/sortfield"
)

type queryFlags struct {
	where    []string
	anyOf    bool
	sort     []string
	page     int
	pageSize int
	output   string
}

// newQueryCmd creates the query command, which pages through documents
// matching the --where conditions.
func newQueryCmd(a *app) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find documents matching conditions",
		Long: `Find documents matching every --where condition, or any of them with --any.

Conditions have the form <path><op><value>. Paths are dotted field names such
as kind or data.address.city. Operators: = != > >= < <= ~ (contains) ^= (prefix).
Values are typed: "quoted" strings, true/false, null, integers, decimals.`,
		Example: `  # Adults, oldest first
  specrepo query --where "data.age>=18" --sort data.age:desc

  # Second page of 10 people or robots
  specrepo query --where "kind=person" --where "kind=robot" --any --page 2 --page-size 10

  # Machine-readable output
  specrepo query --where "data.tags~admin" -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("page-size") {
				flags.pageSize = a.cfg.Query.DefaultPageSize
			}
			return runQuery(cmd, a, flags)
		},
	}

	cmd.Flags().StringArrayVarP(&flags.where, "where", "w", nil, "condition a document must satisfy (repeatable)")
	cmd.Flags().BoolVar(&flags.anyOf, "any", false, "match documents satisfying any condition instead of all")
	cmd.Flags().StringArrayVarP(&flags.sort, "sort", "s", nil, "sort by field[:asc|desc] (repeatable, first wins)")
	cmd.Flags().IntVar(&flags.page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&flags.pageSize, "page-size", 0, "documents per page (default from config)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", outputTable, "output format: table, json or yaml")

	return cmd
}

func runQuery(cmd *cobra.Command, a *app, flags queryFlags) error {
	if err := validateOutput(flags.output); err != nil {
		return err
	}
	s, err := buildSpecification(flags.where, flags.anyOf)
	if err != nil {
		return err
	}
	sorts, err := sortfield.ParseAll(flags.sort)
	if err != nil {
		return fmt.Errorf("parsing --sort: %w", err)
	}

	ctx := cmd.Context()
	repo, err := a.repository(ctx)
	if err != nil {
		return err
	}
	result, err := repo.FindPage(ctx, s, sorts, flags.page, flags.pageSize)
	if err != nil {
		return fmt.Errorf("querying documents: %w", err)
	}
	return renderPage(cmd.OutOrStdout(), flags.output, result)
}
