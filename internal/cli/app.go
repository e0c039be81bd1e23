package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/specrepo/internal/cache"
	"github.com/rshade/specrepo/internal/config"
	"github.com/rshade/specrepo/internal/document"
	"github.com/rshade/specrepo/internal/logging"
	"github.com/rshade/specrepo/internal/metrics"
	"github.com/rshade/specrepo/internal/repository"
	"github.com/rshade/specrepo/internal/store"
	"github.com/rshade/specrepo/internal/store/jsonfile"
	"github.com/rshade/specrepo/internal/store/memory"
	"github.com/rshade/specrepo/internal/store/sqlite"
)

// documentRepository is the repository every command works against.
type documentRepository = repository.Repository[*document.Document, string]

type rootFlags struct {
	configPath string
	debug      bool
	backend    string
	storePath  string
	table      string
	metrics    bool
}

// app holds the state shared by one command invocation.
type app struct {
	flags     rootFlags
	cfg       *config.Config
	logResult *logging.LogPathResult
	logger    zerolog.Logger
	registry  *prometheus.Registry
	repo      *documentRepository
}

// setup loads configuration, applies flag overrides and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	a.cfg = cfg

	loggingCfg := cfg.ToLoggingConfig()
	if a.flags.debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = logging.FormatConsole
		loggingCfg.File = ""
	}
	result := logging.NewLoggerWithPath(loggingCfg)
	a.logResult = &result
	a.logger = logging.ComponentLogger(result.Logger, "cli")
	if result.UsingFile {
		logging.PrintLogPathMessage(cmd.ErrOrStderr(), result.FilePath)
	} else if result.FallbackUsed {
		logging.PrintFallbackWarning(cmd.ErrOrStderr(), result.FallbackReason)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithTrace(ctx, a.logger)
	cmd.SetContext(ctx)

	if cfg.Query.Metrics || a.flags.metrics {
		a.registry = prometheus.NewRegistry()
	}

	logging.FromContext(ctx).Debug().
		Str("command", cmd.Name()).
		Str("backend", cfg.Store.Backend).
		Msg("command started")
	return nil
}

func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, required := a.flags.configPath, true
	if path == "" {
		path, required = config.DefaultPath(), false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, err
	}

	changed := false
	if cmd.Flags().Changed("backend") {
		cfg.Store.Backend, changed = a.flags.backend, true
	}
	if cmd.Flags().Changed("store-path") {
		cfg.Store.Path, changed = a.flags.storePath, true
	}
	if cmd.Flags().Changed("table") {
		cfg.Store.Table, changed = a.flags.table, true
	}
	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// repository opens the configured backend on first use.
func (a *app) repository(ctx context.Context) (*documentRepository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	provider, err := openProvider(ctx, a.cfg.Store)
	if err != nil {
		return nil, err
	}

	opts := []repository.Option[*document.Document, string]{
		repository.WithName[*document.Document, string]("document"),
		repository.WithMaxPageSize[*document.Document, string](a.cfg.Query.MaxPageSize),
	}
	if a.registry != nil {
		recorder, err := metrics.NewRecorder(a.registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, repository.WithMetrics[*document.Document, string](recorder))
	}
	if ttl := a.cfg.Query.CountCacheTTL; ttl > 0 {
		counts, err := cache.New[int](ttl)
		if err != nil {
			return nil, err
		}
		opts = append(opts, repository.WithCountCache[*document.Document, string](counts))
	}

	repo, err := repository.New[*document.Document, string](provider, opts...)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	return repo, nil
}

func openProvider(ctx context.Context, cfg config.StoreConfig) (store.Provider[*document.Document, string], error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New[*document.Document, string](), nil
	case config.BackendJSONFile:
		file, err := jsonfile.New[*document.Document](cfg.Path)
		if err != nil {
			return nil, err
		}
		s, err := memory.Open[*document.Document, string](ctx, file)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendSQLite:
		s, err := sqlite.Open[*document.Document, string](ctx, cfg.Path, cfg.Table)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}

// cleanup closes the repository, prints metrics and releases the log file.
func (a *app) cleanup(cmd *cobra.Command) error {
	var errs []error
	if a.repo != nil {
		if err := a.repo.Close(cmd.Context()); err != nil {
			errs = append(errs, fmt.Errorf("closing repository: %w", err))
		}
	}
	if a.registry != nil {
		if err := printMetrics(cmd.ErrOrStderr(), a.registry); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logResult != nil {
		if err := a.logResult.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
