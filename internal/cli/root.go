// Package cli implements the specrepo command line: document storage and
// specification queries over the configured backend.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewRootCmd creates the root Cobra command for the specrepo CLI.
func NewRootCmd(ver string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "specrepo",
		Short:         "Query stored documents with composable specifications",
		Long:          "specrepo stores schemaless documents and finds them with filter, sort and page specifications.",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.cleanup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.flags.configPath, "config", "", "config file (default ~/.specrepo/config.yaml)")
	flags.BoolVar(&a.flags.debug, "debug", false, "enable debug logging")
	flags.StringVar(&a.flags.backend, "backend", "", "storage backend: memory, jsonfile or sqlite")
	flags.StringVar(&a.flags.storePath, "store-path", "", "snapshot file or database file for the backend")
	flags.StringVar(&a.flags.table, "table", "", "sqlite table name")
	flags.BoolVar(&a.flags.metrics, "metrics", false, "print operation counters to stderr when done")

	cmd.AddCommand(
		newQueryCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newDeleteCmd(a),
		newCheckCmd(a),
		newBrowseCmd(a),
	)
	return cmd
}

const rootCmdExample = `  # Import documents into a snapshot file
  specrepo put --file people.yaml --backend jsonfile --store-path people.json

  # Find adults, oldest first, 20 per page
  specrepo query --where "data.age>=18" --sort data.age:desc --page 1 --page-size 20

  # Match either condition
  specrepo query --where "kind=person" --where "data.name^=Al" --any

  # Explain why a document does not match
  specrepo check 01HZX3A6 --where "data.age>=18" --where "data.active=true"`
