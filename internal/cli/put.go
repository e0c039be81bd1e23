package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/specrepo/internal/batch"
	"github.com/rshade/specrepo/internal/document"
	"github.com/rshade/specrepo/internal/logging"
)

// Put errors.
var (
	ErrMissingFile = errors.New("--file is required (use - for stdin)")
	ErrStdinTwice  = errors.New("stdin (-) can be read only once")
)

// defaultReadWorkers bounds how many input files are decoded at once.
const defaultReadWorkers = 4

type putFlags struct {
	files     []string
	batchSize int
	workers   int
}

// newPutCmd creates the put command, which imports documents from YAML.
func newPutCmd(a *app) *cobra.Command {
	var flags putFlags

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Store documents from YAML files",
		Long: `Store documents read from one or more YAML files. Files are decoded in
parallel and stored in the order given. A file may hold several YAML
documents, each either one document mapping or a list of them:

  kind: person
  data:
    name: Alice
    age: 34

Documents without an id get a new ULID. Documents are committed in batches;
a failed batch stops the import and earlier batches stay stored.`,
		Example: `  specrepo put --file people.yaml
  specrepo put -f people.yaml -f robots.yaml --workers 2
  cat people.yaml | specrepo put --file - --batch-size 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPut(cmd, a, flags)
		},
	}

	cmd.Flags().StringArrayVarP(&flags.files, "file", "f", nil, "YAML file to import, - for stdin (repeatable)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", batch.DefaultBatchSize, "documents per commit")
	cmd.Flags().IntVar(&flags.workers, "workers", defaultReadWorkers, "files decoded at once")
	return cmd
}

func runPut(cmd *cobra.Command, a *app, flags putFlags) error {
	if len(flags.files) == 0 {
		return ErrMissingFile
	}
	ctx := cmd.Context()
	docs, err := readAll(ctx, cmd.InOrStdin(), flags.files, flags.workers)
	if err != nil {
		return err
	}

	repo, err := a.repository(ctx)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx)

	processor, err := batch.NewProcessor[*document.Document](flags.batchSize)
	if err != nil {
		return err
	}
	processor.WithProgress(func(s batch.Snapshot) {
		log.Debug().
			Str("component", "cli.put").
			Int("processed", s.ProcessedItems).
			Int("total", s.TotalItems).
			Float64("percent", s.PercentComplete()).
			Msg("import progress")
	})

	stored := 0
	err = processor.Process(ctx, docs, func(ctx context.Context, chunk []*document.Document, _ int) error {
		for _, d := range chunk {
			if err := repo.Add(ctx, d); err != nil {
				return err
			}
		}
		if err := repo.SaveChanges(ctx); err != nil {
			return err
		}
		stored += len(chunk)
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing documents (%d stored): %w", stored, err)
	}

	p := message.NewPrinter(language.English)
	_, err = p.Fprintf(cmd.OutOrStdout(), "Stored %d documents\n", stored)
	return err
}

// readAll decodes every file concurrently and returns their documents in
// file order. Every file is read even when some fail.
func readAll(ctx context.Context, stdin io.Reader, paths []string, workers int) ([]*document.Document, error) {
	if n := slices.Index(paths, "-"); n >= 0 && slices.Index(paths[n+1:], "-") >= 0 {
		return nil, ErrStdinTwice
	}

	perFile, err := batch.NewProcessor[string](1)
	if err != nil {
		return nil, err
	}
	decoded := make([][]*document.Document, len(paths))
	err = perFile.ProcessConcurrent(ctx, paths, func(_ context.Context, chunk []string, index int) error {
		docs, err := readDocuments(stdin, chunk[0])
		if err != nil {
			return fmt.Errorf("%s: %w", chunk[0], err)
		}
		decoded[index] = docs
		return nil
	}, workers)
	if err != nil {
		return nil, err
	}
	return slices.Concat(decoded...), nil
}

func readDocuments(stdin io.Reader, path string) ([]*document.Document, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	return document.Decode(r, time.Now())
}
