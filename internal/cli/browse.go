package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rshade/specrepo/internal/document"
	"github.com/rshade/specrepo/internal/paging"
	"github.com/rshade/specrepo/internal/sortfield"
	"github.com/rshade/specrepo/internal/tui"
)

// ErrNotTerminal is returned when browse runs without an interactive terminal.
var ErrNotTerminal = errors.New("browse needs an interactive terminal; use query instead")

type browseFlags struct {
	where    []string
	anyOf    bool
	sort     []string
	pageSize int
}

// newBrowseCmd creates the browse command, an interactive pager over query
// results.
func newBrowseCmd(a *app) *cobra.Command {
	var flags browseFlags

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Page through matching documents interactively",
		Long: `Open an interactive table of the documents matching the --where conditions.

Keys: n/p or arrows change page, enter shows a document, / adds a condition,
c clears conditions, q quits.`,
		Example: `  specrepo browse --where "kind=person" --sort data.age:desc`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("page-size") {
				flags.pageSize = a.cfg.Query.DefaultPageSize
			}
			return runBrowse(cmd, a, flags)
		},
	}

	cmd.Flags().StringArrayVarP(&flags.where, "where", "w", nil, "initial condition (repeatable)")
	cmd.Flags().BoolVar(&flags.anyOf, "any", false, "match documents satisfying any condition instead of all")
	cmd.Flags().StringArrayVarP(&flags.sort, "sort", "s", nil, "sort by field[:asc|desc] (repeatable, first wins)")
	cmd.Flags().IntVar(&flags.pageSize, "page-size", 0, "documents per page (default from config)")
	return cmd
}

func runBrowse(cmd *cobra.Command, a *app, flags browseFlags) error {
	out, ok := cmd.OutOrStdout().(*os.File)
	if !ok || !isTerminal(out) {
		return ErrNotTerminal
	}
	// Reject bad initial conditions before the screen takes over.
	if _, err := buildSpecification(flags.where, flags.anyOf); err != nil {
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

	load := func(ctx context.Context, conditions []string, page int) (*paging.Result[*document.Document], error) {
		s, err := buildSpecification(conditions, flags.anyOf)
		if err != nil {
			return nil, err
		}
		return repo.FindPage(ctx, s, sorts, page, flags.pageSize)
	}

	model := tui.NewBrowseModel(ctx, load, flags.where)
	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running browser: %w", err)
	}
	return nil
}
