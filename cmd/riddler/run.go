package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-riddler/infrastructure/matching"
	"github.com/ahrav/go-riddler/infrastructure/report"
	"github.com/ahrav/go-riddler/infrastructure/riddle"
	"github.com/ahrav/go-riddler/internal/application"
	"github.com/ahrav/go-riddler/internal/domain"
)

const (
	defaultConfigPath = "riddler.yaml"
	// stdinConfigPath reads the configuration from standard input.
	stdinConfigPath = "-"
)

// runOptions are the flags of the run command. Zero values keep the
// configuration file's settings.
type runOptions struct {
	configPath  string
	rounds      int
	output      string
	summaryJSON string
	metricsAddr string
	traceFile   string

	stdin io.Reader
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play a tournament and write the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts.stdin = cmd.InOrStdin()
			return runTournament(ctx, opts, cmd.OutOrStdout(), global.logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "tournament configuration file, or - for stdin")
	flags.IntVarP(&opts.rounds, "rounds", "r", 0, "override rounds per participant")
	flags.StringVarP(&opts.output, "output", "o", "", "override the CSV ledger path")
	flags.StringVar(&opts.summaryJSON, "summary-json", "", "also write the summary as JSON to this path")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running, e.g. :9090")
	flags.StringVar(&opts.traceFile, "trace-file", "", "write OpenTelemetry spans as JSON to this path")

	return cmd
}

// loadConfig reads path, or stdin when path is "-", and applies the
// command-line overrides.
func loadConfig(path string, stdin io.Reader, rounds int, output string) (*application.Config, error) {
	loader, err := application.NewLoader()
	if err != nil {
		return nil, err
	}

	var cfg *application.Config
	if path == stdinConfigPath {
		if stdin == nil {
			stdin = os.Stdin
		}
		cfg, err = loader.LoadFromReader(stdin)
	} else {
		cfg, err = loader.LoadFromFile(path)
	}
	if err != nil {
		return nil, err
	}

	if rounds == 0 && output == "" {
		return cfg, nil
	}
	if rounds != 0 {
		cfg.RoundsPerParticipant = rounds
	}
	if output != "" {
		cfg.Output.Path = output
	}
	if err := loader.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runTournament plays one tournament and writes its report. An interrupted
// run still writes the results gathered so far and is not an error.
func runTournament(ctx context.Context, opts *runOptions, out io.Writer, logger *slog.Logger) (err error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := loadConfig(opts.configPath, opts.stdin, opts.rounds, opts.output)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	var listener net.Listener
	if opts.metricsAddr != "" {
		listener, err = net.Listen("tcp", opts.metricsAddr)
		if err != nil {
			return &domain.ConfigurationError{Err: fmt.Errorf("metrics address %s: %w", opts.metricsAddr, err)}
		}
	}

	tp, shutdownTracing, err := newTracerProvider(opts.traceFile)
	if err != nil {
		if listener != nil {
			closeQuietly(listener)
		}
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if serr := shutdownTracing(shutdownCtx); serr != nil {
			logger.Warn("trace shutdown failed", "error", serr)
		}
	}()

	metrics := newMetrics()
	registry, err := buildRegistry(cfg.LLM, metrics, tp)
	if err != nil {
		return &domain.ConfigurationError{Err: err}
	}
	resolver, err := riddle.NewResolver(registry, cfg.Source, logger)
	if err != nil {
		return &domain.ConfigurationError{Err: err}
	}
	filter, err := matching.NewUniquenessFilter(cfg.Uniqueness)
	if err != nil {
		return &domain.ConfigurationError{Err: err}
	}
	validator, err := matching.NewAnswerValidator(cfg.Validation)
	if err != nil {
		return &domain.ConfigurationError{Err: err}
	}

	tournament, err := application.NewTournament(resolver, application.TournamentConfig{
		MaxAcquireAttempts: cfg.MaxAcquireAttempts,
		Filter:             filter,
		Validator:          validator,
		Fallback:           application.NewFallbackGenerator(cfg.Seed),
		Metrics:            metrics,
		TracerProvider:     tp,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	logger.Info("tournament starting",
		"name", cfg.Name,
		"participants", len(cfg.Participants),
		"rounds_per_participant", cfg.RoundsPerParticipant)

	started := time.Now()
	var (
		results []domain.MatchResult
		runErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	if listener != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		logger.Info("serving metrics", "addr", listener.Addr().String())
	}

	g.Go(func() error {
		defer close(done)
		results, runErr = tournament.Run(gctx, cfg.Participants, cfg.RoundsPerParticipant)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	interrupted := runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded))
	if runErr != nil && !interrupted {
		return runErr
	}
	if interrupted {
		logger.Warn("tournament interrupted, writing partial report", "results", len(results))
	}

	meta := report.Meta{
		RunID:        runID,
		Name:         cfg.Name,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		Rounds:       cfg.RoundsPerParticipant,
		Participants: len(cfg.Participants),
		Results:      len(results),
		Interrupted:  interrupted,
	}
	summary := domain.Summarize(results, cfg.Participants, cfg.RoundsPerParticipant)

	if err := report.WriteLedgerFile(cfg.Output.Path, results); err != nil {
		return err
	}
	logger.Info("ledger written", "path", cfg.Output.Path, "rows", len(results))

	if opts.summaryJSON != "" {
		if err := writeSummaryJSON(opts.summaryJSON, meta, summary); err != nil {
			return err
		}
		logger.Info("summary written", "path", opts.summaryJSON)
	}

	_, err = fmt.Fprintln(out, report.RenderSummary(meta, summary))
	return err
}

func writeSummaryJSON(path string, meta report.Meta, summary domain.Summary) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create summary directory: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return report.WriteSummaryJSON(f, meta, summary)
}
